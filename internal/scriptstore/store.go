// Package scriptstore keeps script bodies addressable by their SHA1 digest,
// backing JSSCRIPT LOAD and EVALJSSHA. Scripts live in SQLite (in memory by
// default, or a file to survive restarts) with a read-through cache in front.
package scriptstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/cryguy/evaljs/internal/core"
)

// MemoryPath keeps the store in memory.
const MemoryPath = ":memory:"

// Script is one stored body.
type Script struct {
	SHA       string `gorm:"primaryKey;size:40"`
	Body      string `gorm:"not null"`
	Program   string // transpiled definition program; empty when not transpiled
	CreatedAt time.Time
}

// TableName pins the table name.
func (Script) TableName() string { return "evaljs_scripts" }

// Compiler builds the definition program cached next to a body.
type Compiler func(body string) (string, error)

// Store is safe for concurrent use.
type Store struct {
	db      *gorm.DB
	compile Compiler
	cache   sync.Map // sha -> *Script
}

// Option configures a Store.
type Option func(*Store)

// WithCompiler transpiles bodies once on Load and stores the result.
func WithCompiler(c Compiler) Option {
	return func(s *Store) {
		s.compile = c
	}
}

// Open opens (or creates) the store at path. An empty path or MemoryPath
// keeps everything in memory.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating script store directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening script store %q: %w", path, err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("opening script store: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&Script{}); err != nil {
		return nil, fmt.Errorf("migrating script store: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Digest returns the lower-case hex SHA1 of body.
func Digest(body string) string {
	sum := sha1.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Load stores body and returns its digest. Loading the same body twice is a
// no-op. A body that fails to compile is not stored.
func (s *Store) Load(ctx context.Context, body string) (string, error) {
	sha := Digest(body)
	if _, ok := s.cache.Load(sha); ok {
		return sha, nil
	}

	sc := &Script{SHA: sha, Body: body}
	if s.compile != nil {
		program, err := s.compile(body)
		if err != nil {
			return "", err
		}
		sc.Program = program
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sc).Error
	if err != nil {
		return "", fmt.Errorf("storing script %s: %w", sha, err)
	}
	s.cache.Store(sha, sc)
	return sha, nil
}

// Get returns the script with the given digest, or core.ErrNoScript.
func (s *Store) Get(ctx context.Context, sha string) (*Script, error) {
	sha = strings.ToLower(sha)
	if v, ok := s.cache.Load(sha); ok {
		return v.(*Script), nil
	}

	var sc Script
	err := s.db.WithContext(ctx).Where("sha = ?", sha).Take(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNoScript
	}
	if err != nil {
		return nil, fmt.Errorf("reading script %s: %w", sha, err)
	}
	s.cache.Store(sha, &sc)
	return &sc, nil
}

// Exists reports, for each digest, whether it is stored.
func (s *Store) Exists(ctx context.Context, shas ...string) ([]bool, error) {
	out := make([]bool, len(shas))
	for i, sha := range shas {
		_, err := s.Get(ctx, sha)
		switch {
		case err == nil:
			out[i] = true
		case errors.Is(err, core.ErrNoScript):
		default:
			return nil, err
		}
	}
	return out, nil
}

// Count returns the number of stored scripts.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Script{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting scripts: %w", err)
	}
	return n, nil
}

// Flush removes every stored script.
func (s *Store) Flush(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&Script{}).Error
	if err != nil {
		return fmt.Errorf("flushing scripts: %w", err)
	}
	s.cache.Range(func(k, _ any) bool {
		s.cache.Delete(k)
		return true
	})
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
