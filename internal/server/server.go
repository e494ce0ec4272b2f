// Package server is the RESP front end: it accepts EVALJS and the script
// cache commands over the Redis protocol and replies with each
// evaluation's result.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/redcon"

	"github.com/cryguy/evaljs/internal/core"
	"github.com/cryguy/evaljs/internal/executor"
	"github.com/cryguy/evaljs/internal/reply"
	"github.com/cryguy/evaljs/internal/scriptstore"
)

// Server serves one executor.
type Server struct {
	exec    *executor.Executor
	scripts *scriptstore.Store
	logger  *slog.Logger
	version string
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	srv  *redcon.Server
	done chan error
}

// Option configures a Server.
type Option func(*Server)

// WithScripts enables JSSCRIPT and EVALJSSHA.
func WithScripts(s *scriptstore.Store) Option {
	return func(srv *Server) {
		srv.scripts = s
	}
}

// WithLogger sets the connection logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		srv.logger = l
	}
}

// WithVersion sets the version INFO reports.
func WithVersion(v string) Option {
	return func(srv *Server) {
		srv.version = v
	}
}

// New returns a server for exec. It does not listen until Start.
func New(exec *executor.Executor, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		exec:    exec,
		logger:  slog.Default(),
		version: "dev",
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("server already started")
	}

	srv := redcon.NewServer(addr, s.handle, s.accept, s.closed)
	signal := make(chan error, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenServeAndSignal(signal)
	}()
	if err := <-signal; err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.srv = srv
	s.done = done
	s.started = time.Now()
	s.logger.Info("listening", "addr", srv.Addr().String())
	return nil
}

// ListenAndServe starts the server and blocks until ctx is done or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Start(addr); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-s.done:
		return err
	}
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	return s.srv.Addr()
}

// Close stops accepting connections. In-flight evaluations finish on their
// workers; shutting down the executor is the caller's job.
func (s *Server) Close() error {
	s.cancel()
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}

func (s *Server) accept(conn redcon.Conn) bool {
	s.logger.Debug("client connected", "remote", conn.RemoteAddr())
	return true
}

func (s *Server) closed(conn redcon.Conn, err error) {
	if err != nil {
		s.logger.Debug("client disconnected", "remote", conn.RemoteAddr(), "error", err)
	}
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	tokens := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		tokens[i] = string(a)
	}
	name := strings.ToLower(tokens[0])

	switch name {
	case "evaljs":
		s.evaljs(conn, tokens)
	case "evaljssha":
		s.evaljssha(conn, tokens)
	case "jsscript":
		s.jsscript(conn, tokens)
	case "ping":
		switch len(tokens) {
		case 1:
			conn.WriteString("PONG")
		case 2:
			conn.WriteBulkString(tokens[1])
		default:
			conn.WriteError(arityError(name))
		}
	case "info":
		conn.WriteBulkString(s.info())
	case "command":
		conn.WriteArray(0)
	case "client":
		conn.WriteString("OK")
	case "quit":
		conn.WriteString("OK")
		_ = conn.Close()
	default:
		conn.WriteError(fmt.Sprintf("ERR unknown command '%s'", tokens[0]))
	}
}

func (s *Server) evaljs(conn redcon.Conn, tokens []string) {
	req, err := core.ParseRequest(tokens)
	if err != nil {
		writeRequestError(conn, tokens[0], err)
		return
	}
	s.run(conn, req)
}

func (s *Server) evaljssha(conn redcon.Conn, tokens []string) {
	req, err := core.ParseRequest(tokens)
	if err != nil {
		writeRequestError(conn, tokens[0], err)
		return
	}
	if s.scripts == nil {
		conn.WriteError(core.ReplyError(core.ErrNoScript))
		return
	}
	sc, err := s.scripts.Get(s.ctx, req.Code)
	if err != nil {
		conn.WriteError(core.ReplyError(err))
		return
	}
	req.Code = sc.Body
	req.Program = sc.Program
	s.run(conn, req)
}

// run parks this connection until the evaluation replies. Other
// connections keep being served on their own goroutines.
func (s *Server) run(conn redcon.Conn, req core.Request) {
	w := reply.NewWaiter()
	s.exec.Submit(s.ctx, req, w)
	writeValue(conn, w.Wait())
}

func (s *Server) jsscript(conn redcon.Conn, tokens []string) {
	if len(tokens) < 2 {
		conn.WriteError(arityError("jsscript"))
		return
	}
	if s.scripts == nil {
		conn.WriteError("ERR script cache disabled")
		return
	}

	switch sub := strings.ToLower(tokens[1]); sub {
	case "load":
		if len(tokens) != 3 {
			conn.WriteError(arityError("jsscript|load"))
			return
		}
		sha, err := s.scripts.Load(s.ctx, tokens[2])
		if err != nil {
			conn.WriteError(core.ReplyError(err))
			return
		}
		conn.WriteBulkString(sha)
	case "exists":
		if len(tokens) < 3 {
			conn.WriteError(arityError("jsscript|exists"))
			return
		}
		found, err := s.scripts.Exists(s.ctx, tokens[2:]...)
		if err != nil {
			conn.WriteError(core.ReplyError(err))
			return
		}
		conn.WriteArray(len(found))
		for _, ok := range found {
			if ok {
				conn.WriteInt(1)
			} else {
				conn.WriteInt(0)
			}
		}
	case "flush":
		if err := s.scripts.Flush(s.ctx); err != nil {
			conn.WriteError(core.ReplyError(err))
			return
		}
		conn.WriteString("OK")
	default:
		conn.WriteError(fmt.Sprintf("ERR unknown subcommand '%s'. Try JSSCRIPT LOAD, EXISTS or FLUSH.", tokens[1]))
	}
}

func (s *Server) info() string {
	st := s.exec.Stats()
	var b strings.Builder
	b.WriteString("# Server\r\n")
	fmt.Fprintf(&b, "evaljs_version:%s\r\n", s.version)
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(s.started).Seconds()))
	b.WriteString("\r\n# Engine\r\n")
	fmt.Fprintf(&b, "workers:%d\r\n", st.Workers)
	fmt.Fprintf(&b, "busy_workers:%d\r\n", st.Busy)
	fmt.Fprintf(&b, "queued:%d\r\n", st.Queued)
	fmt.Fprintf(&b, "pending_replies:%d\r\n", st.Pending)
	fmt.Fprintf(&b, "completed:%d\r\n", st.Completed)
	fmt.Fprintf(&b, "contexts_built:%d\r\n", st.ContextsBuilt)
	fmt.Fprintf(&b, "contexts_live:%d\r\n", st.ContextsLive)
	fmt.Fprintf(&b, "host_calls:%d\r\n", st.HostCalls)
	if s.scripts != nil {
		if n, err := s.scripts.Count(s.ctx); err == nil {
			fmt.Fprintf(&b, "scripts:%d\r\n", n)
		}
	}
	return b.String()
}

func writeRequestError(conn redcon.Conn, name string, err error) {
	if errors.Is(err, core.ErrWrongArity) {
		conn.WriteError(arityError(strings.ToLower(name)))
		return
	}
	conn.WriteError(core.ReplyError(err))
}

func arityError(name string) string {
	return fmt.Sprintf("ERR wrong number of arguments for '%s' command", name)
}

// writeValue writes v in RESP2. Booleans become 1 or 0 and floats are sent
// as bulk strings.
func writeValue(conn redcon.Conn, v core.Value) {
	switch v.Kind {
	case core.KindNull:
		conn.WriteNull()
	case core.KindBool:
		if v.Bool {
			conn.WriteInt(1)
		} else {
			conn.WriteInt(0)
		}
	case core.KindInteger:
		conn.WriteInt64(v.Int)
	case core.KindFloat:
		conn.WriteBulkString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case core.KindStatus:
		conn.WriteString(v.Str)
	case core.KindString:
		conn.WriteBulkString(v.Str)
	case core.KindError:
		conn.WriteError(v.Str)
	case core.KindArray:
		conn.WriteArray(len(v.Array))
		for _, item := range v.Array {
			writeValue(conn, item)
		}
	default:
		conn.WriteNull()
	}
}
