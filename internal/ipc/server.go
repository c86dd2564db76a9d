package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Lifecycle states of the server.
const (
	StateListening = "listening"
	StateDraining  = "draining"
	StateStopped   = "stopped"
)

// Handler processes one decoded command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Session speaks the wire protocol over one accepted connection. It owns the
// connection and must close it when it returns.
type Session interface {
	Serve(ctx context.Context)
}

// SessionFactory builds the session for an accepted connection, keeping the
// server itself transport- and protocol-agnostic.
type SessionFactory func(conn net.Conn) Session

// ServerOptions carries the fixed inputs the configuration layer supplies.
type ServerOptions struct {
	Logger     *slog.Logger
	FrameLimit uint32
	// Grace bounds how long Shutdown waits for in-flight responses before
	// connections are forcibly released.
	Grace   time.Duration
	Factory SessionFactory
}

// Server accepts control-channel connections and hands each one to an
// independently scheduled session. One server owns one listener for its
// whole lifetime.
type Server struct {
	listener net.Listener
	handler  Handler
	factory  SessionFactory
	logger   *slog.Logger
	limit    uint32
	grace    time.Duration

	mu    sync.Mutex
	state string
	conns map[net.Conn]struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once
	drainOnce    sync.Once
	drainErr     error
	wg           sync.WaitGroup
}

func NewServer(listener net.Listener, handler Handler, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := opts.FrameLimit
	if limit == 0 {
		limit = DefaultFrameLimit
	}
	grace := opts.Grace
	if grace < 0 {
		grace = 0
	}

	s := &Server{
		listener: listener,
		handler:  handler,
		logger:   logger,
		limit:    limit,
		grace:    grace,
		state:    StateListening,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
	s.factory = opts.Factory
	if s.factory == nil {
		s.factory = s.newSession
	}
	return s
}

// State returns the current lifecycle state snapshot.
func (s *Server) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Serve accepts connections until shutdown or context cancellation. Each
// accepted connection is served on its own goroutine so a slow client never
// blocks acceptance of the next one.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Shutdown()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShuttingDown() || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				// Listener teardown during shutdown is the normal exit
				// signal, not an error.
				s.wg.Wait()
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// No client yet; re-evaluate the shutdown signal.
				continue
			}
			// One bad connection attempt must not take down the listener.
			s.logger.Error("accept control connection failed", "error", err.Error())
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer s.untrack(c)
			s.factory(c).Serve(ctx)
		}(conn)
	}
}

// Shutdown transitions the server to draining, waits up to the grace period
// for in-flight sessions, then releases every outstanding connection.
// Idempotent: every call observes the same result.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.state = StateDraining
		s.mu.Unlock()
		close(s.shutdown)
		_ = s.listener.Close()
	})

	s.drainOnce.Do(func() {
		s.drainErr = s.drain()
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
	})
	return s.drainErr
}

// drain gives connected clients the grace period to finish receiving their
// in-flight responses, then forcibly closes whatever remains. Release
// failures are collected so no error masks the rest; a connection the peer
// already tore down is a benign outcome.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.grace > 0 {
		select {
		case <-done:
		case <-time.After(s.grace):
			s.logger.Warn("shutdown grace period elapsed with open connections")
		}
	}

	var errs []error
	s.mu.Lock()
	pending := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		pending = append(pending, c)
	}
	s.mu.Unlock()

	for _, c := range pending {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("release connection: %w", err))
		}
	}

	<-done
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Server) isShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// session is the default frame-protocol connection handler: strict
// request/response alternation, multiple requests per connection.
type session struct {
	conn   net.Conn
	server *Server
}

func (s *Server) newSession(conn net.Conn) Session {
	return &session{conn: conn, server: s}
}

func (h *session) Serve(ctx context.Context) {
	defer h.conn.Close()

	srv := h.server
	for {
		body, err := ReadFrame(h.conn, srv.limit)
		if err != nil {
			if !isPeerGone(err) {
				srv.logger.Warn("read request frame failed", "error", err.Error())
				h.writeResponse(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
			}
			return
		}

		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			// Malformed payload answers with a failure, never a crash;
			// the connection stays usable.
			h.writeResponse(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
			continue
		}

		resp := srv.handler.Handle(ctx, req)
		if !h.writeResponse(resp) {
			return
		}

		if req.Command == CommandShutdown && resp.OK {
			// Respond first, then bring the server down; the session ends
			// deterministically while Shutdown drains the rest.
			go func() { _ = srv.Shutdown() }()
			return
		}
	}
}

func (h *session) writeResponse(resp Response) bool {
	if err := WriteMessage(h.conn, resp, h.server.limit); err != nil {
		h.server.logger.Warn("write response failed", "error", err.Error())
		return false
	}
	return true
}

func isPeerGone(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
