// Package host connects the execution core to the backing Redis server.
// Scripts share one dedicated connection; the host call bridge serializes
// access to it.
package host

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryguy/evaljs/internal/core"
)

// Options describe the backing server.
type Options struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Redis is a single go-redis connection implementing core.Host.
type Redis struct {
	client *redis.Client

	mu   sync.Mutex // guards conn
	conn *redis.Conn
}

var _ core.Host = (*Redis)(nil)

// Dial opens the connection and checks it with PING.
func Dial(ctx context.Context, opts Options) (*Redis, error) {
	r := New(redis.NewClient(clientOptions(opts)))
	if err := r.Ping(ctx); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("connecting to %s: %w", opts.Addr, err)
	}
	return r, nil
}

// clientOptions configures go-redis for script traffic. Socket I/O is
// bounded only by the caller's context, so blocking commands can wait as
// long as the host call budget allows, and nothing is retried: a command
// that timed out may already have run.
func clientOptions(opts Options) *redis.Options {
	return &redis.Options{
		Addr:                  opts.Addr,
		Username:              opts.Username,
		Password:              opts.Password,
		DB:                    opts.DB,
		DialTimeout:           opts.DialTimeout,
		Protocol:              2,
		PoolSize:              1,
		ContextTimeoutEnabled: true,
		ReadTimeout:           -1,
		WriteTimeout:          -1,
		MaxRetries:            -1,
	}
}

// New takes one dedicated connection from client.
func New(client *redis.Client) *Redis {
	return &Redis{client: client, conn: client.Conn()}
}

// Do issues name with args. Error replies from the server come back as an
// error Value; only transport failures return an error. After a transport
// failure the connection is replaced, so the next call dials again.
func (r *Redis) Do(ctx context.Context, name string, args []string) (core.Value, error) {
	cmd := make([]any, 0, len(args)+1)
	cmd = append(cmd, name)
	for _, a := range args {
		cmd = append(cmd, a)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := redis.NewCmd(ctx, cmd...)
	_ = r.conn.Process(ctx, c)
	v, err := c.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Null(), nil
		}
		var rerr redis.Error
		if errors.As(err, &rerr) {
			return core.ErrorValue(rerr.Error()), nil
		}
		r.reset()
		return core.Value{}, err
	}
	return FromReply(v), nil
}

// reset drops the current connection. The caller holds mu.
func (r *Redis) reset() {
	_ = r.conn.Close()
	r.conn = r.client.Conn()
}

// FromReply converts a decoded go-redis reply. go-redis returns simple
// strings and bulk strings alike as string, so both become bulk strings.
// Map replies have no script form and become null.
func FromReply(v any) core.Value {
	switch v := v.(type) {
	case nil:
		return core.Null()
	case string:
		return core.String(v)
	case []byte:
		return core.String(string(v))
	case int64:
		return core.Int(v)
	case float64:
		return core.Float(v)
	case bool:
		return core.Bool(v)
	case *big.Int:
		return core.String(v.String())
	case []any:
		items := make([]core.Value, len(v))
		for i, item := range v {
			items[i] = FromReply(item)
		}
		return core.Array(items...)
	case redis.Error:
		return core.ErrorValue(v.Error())
	default:
		return core.Null()
	}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Ping(ctx).Err()
}

// Close releases the connection and the client.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cerr := r.conn.Close()
	if err := r.client.Close(); err != nil {
		return err
	}
	return cerr
}
