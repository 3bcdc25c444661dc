package chat

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxSessions           = 1024
	DefaultAcceptWakeInterval    = time.Second
	DefaultShutdownNoticeTimeout = time.Second
)

// Options configures a Server. Zero values fall back to the package
// defaults, except WriteTimeout where zero means no timeout.
type Options struct {
	Addr               string
	MaxLineLength      int
	MaxNickLength      int
	MaxRoomNameLength  int
	MaxSessions        int
	AcceptWakeInterval time.Duration
	WriteTimeout       time.Duration
	BroadcastFanout    int

	// ShutdownNoticeTimeout bounds how long Stop waits for the shutdown
	// notice to be written before closing a connection anyway.
	ShutdownNoticeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxLineLength <= 0 {
		o.MaxLineLength = DefaultMaxLineLength
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	if o.AcceptWakeInterval <= 0 {
		o.AcceptWakeInterval = DefaultAcceptWakeInterval
	}
	if o.BroadcastFanout <= 0 {
		o.BroadcastFanout = DefaultBroadcastFanout
	}
	if o.ShutdownNoticeTimeout <= 0 {
		o.ShutdownNoticeTimeout = DefaultShutdownNoticeTimeout
	}
	return o
}

// Server accepts connections, runs one session goroutine per connection
// and coordinates shutdown.
type Server struct {
	opts     Options
	logger   *slog.Logger
	reg      *Registry
	handler  *Handler
	slots    *semaphore.Weighted
	listener *net.TCPListener

	mu         sync.Mutex
	sessions   map[*Session]struct{}
	running    atomic.Bool
	wg         sync.WaitGroup
	acceptDone chan struct{}
}

func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	reg := NewRegistry(logger)
	bc := NewBroadcaster(reg, opts.BroadcastFanout, logger)
	return &Server{
		opts:   opts,
		logger: logger,
		reg:    reg,
		handler: NewHandler(reg, bc, Limits{
			MaxNickLength:     opts.MaxNickLength,
			MaxRoomNameLength: opts.MaxRoomNameLength,
		}, logger),
		slots:      semaphore.NewWeighted(int64(opts.MaxSessions)),
		sessions:   make(map[*Session]struct{}),
		acceptDone: make(chan struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return errors.New("listener is not TCP")
	}
	s.listener = tcpLn
	s.running.Store(true)

	go s.acceptLoop()

	s.logger.Info("server started", "addr", s.Addr())
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Registry exposes the server's registry for inspection.
func (s *Server) Registry() *Registry {
	return s.reg
}

// SessionCount returns the number of open connections.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	for s.running.Load() {
		// Wake up periodically so a stop is seen without incoming traffic.
		_ = s.listener.SetDeadline(time.Now().Add(s.opts.AcceptWakeInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())
		fc := NewFramedConn(conn, s.opts.MaxLineLength, s.opts.WriteTimeout)
		if err := s.ServeConn(fc); err != nil {
			s.logger.Warn("connection refused", "addr", fc.RemoteAddr(), "error", err)
		}
	}
}

// ServeConn starts a session on conn in its own goroutine. Any transport
// producing a LineConn can use it. It fails with ErrServerFull when
// MaxSessions connections are open and ErrServerClosed after Stop; in both
// cases conn is closed.
func (s *Server) ServeConn(conn LineConn) error {
	if !s.slots.TryAcquire(1) {
		_ = conn.SendLine(ReplyServerFull)
		_ = conn.Close()
		return ErrServerFull
	}

	sess := NewSession(conn, s.logger)

	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		s.slots.Release(1)
		_ = conn.Close()
		return ErrServerClosed
	}
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	ConnectedSessions.Inc()

	go func() {
		defer s.wg.Done()
		defer s.untrack(sess)
		defer s.slots.Release(1)
		s.handler.HandleSession(sess)
	}()
	return nil
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	ConnectedSessions.Dec()
}

// Stop notifies and disconnects every live session, closes the listener
// and waits for all session goroutines to finish their cleanup. It is
// safe to call more than once and from any goroutine.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}
	live := lo.Keys(s.sessions)
	s.mu.Unlock()

	registered, rooms := s.reg.Stats()
	s.logger.Info("shutting down", "sessions", len(live), "registered", registered, "rooms", rooms)

	var g errgroup.Group
	g.SetLimit(s.opts.BroadcastFanout)
	for _, sess := range live {
		g.Go(func() error {
			notifyAndClose(sess.Conn, s.opts.ShutdownNoticeTimeout)
			return nil
		})
	}
	_ = g.Wait()

	_ = s.listener.Close()
	<-s.acceptDone

	s.wg.Wait()
	s.logger.Info("shutdown complete")
}

// notifyAndClose sends the shutdown notice and then closes conn. The close
// does not wait more than wait for the notice: a session stuck writing to
// a peer that stopped reading holds the connection's write lock, and only
// the close releases it.
func notifyAndClose(conn LineConn, wait time.Duration) {
	sent := make(chan struct{})
	go func() {
		_ = conn.SendLine(NoticeShutdown)
		close(sent)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-sent:
	case <-timer.C:
	}
	_ = conn.Close()
}
