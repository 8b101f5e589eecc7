package tcp

/**
 * A tcp server with pluggable dispatch policies and cooperative shutdown
 */

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"echod/interface/tcp"
	"echod/lib/logger"
	"echod/lib/timewheel"
)

// Config stores tcp server properties
type Config struct {
	Address     string
	MaxConnect  uint32        // max concurrently served connections, 0 for no limit
	Timeout     time.Duration // per connection processing deadline, 0 for none
	GracePeriod time.Duration // shutdown drain limit, default 10s
	Dispatch    string        // serial, concurrent (default) or pool
	PoolSize    int           // workers for the pool policy
	NonBlock    bool          // poll with non-blocking accepts instead of waiting
}

// State is a lifecycle phase of a Server
type State int32

// Lifecycle phases, in order
const (
	StateUnbound State = iota
	StateBound
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting down"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const defaultGracePeriod = 10 * time.Second

// Server owns a listener and routes accepted connections into a handler
// under the configured dispatch policy
type Server struct {
	cfg     Config
	handler tcp.Handler

	mu         sync.Mutex
	listener   *Listener
	dispatcher dispatcher
	cancel     context.CancelFunc

	state     int32
	connected int32
}

// NewServer creates an unbound server
func NewServer(cfg *Config, handler tcp.Handler) *Server {
	srv := &Server{
		cfg:     *cfg,
		handler: handler,
	}
	if srv.cfg.GracePeriod <= 0 {
		srv.cfg.GracePeriod = defaultGracePeriod
	}
	return srv
}

// NewServerWithListener creates a server in Bound state over a listener
// bound by the caller
func NewServerWithListener(cfg *Config, handler tcp.Handler, ln net.Listener) *Server {
	srv := NewServer(cfg, handler)
	srv.listener = WrapListener(ln)
	if srv.cfg.NonBlock {
		srv.listener.SetNonblock(true)
	}
	srv.setState(StateBound)
	return srv
}

// State returns the current lifecycle phase
func (s *Server) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Server) setState(state State) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Connected returns the number of connections being served
func (s *Server) Connected() int {
	return int(atomic.LoadInt32(&s.connected))
}

// Addr returns the bound address, nil before Bind
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Bind binds the configured address exclusively, moving the server from
// Unbound to Bound. Binding a server twice is an error.
func (s *Server) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.State(); st != StateUnbound {
		return fmt.Errorf("cannot bind %s server", st)
	}
	listener, err := Bind(s.cfg.Address)
	if err != nil {
		return err
	}
	if s.cfg.NonBlock {
		listener.SetNonblock(true)
	}
	s.listener = listener
	s.setState(StateBound)
	return nil
}

// Serve accepts and dispatches connections, blocking until Shutdown or a
// fatal accept error. It returns nil after a clean shutdown. The server
// reports Stopped once in-flight handlers are drained.
func (s *Server) Serve() error {
	s.mu.Lock()
	if st := s.State(); st != StateBound {
		s.mu.Unlock()
		return fmt.Errorf("cannot serve %s server", st)
	}
	d, err := newDispatcher(s.cfg.Dispatch, s.cfg.PoolSize)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.dispatcher = d
	s.cancel = cancel
	s.setState(StateRunning)
	listener := s.listener
	s.mu.Unlock()

	var fatal error
	if s.cfg.Dispatch == DispatchSerial {
		fatal = s.acceptLoop(ctx, listener)
	} else {
		fatal = s.sequenceLoop(ctx, listener)
	}
	s.finalize(fatal)
	return fatal
}

// acceptLoop drives the listener call-style: accept, handle inline, repeat
func (s *Server) acceptLoop(ctx context.Context, listener *Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				// nothing pending, poll again shortly
				time.Sleep(acceptRetryInterval)
				continue
			}
			// learn from net/http/serve.go#Serve()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("accept occurs temporary error: %v, retry in 5ms", err)
				time.Sleep(acceptRetryInterval)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.serveConn(ctx, conn)
	}
}

// sequenceLoop drives the listener iteration-style over the lazy
// connection sequence
func (s *Server) sequenceLoop(ctx context.Context, listener *Listener) error {
	for accepted := range listener.Connections() {
		if accepted.Err != nil {
			return accepted.Err
		}
		s.serveConn(ctx, accepted.Conn)
	}
	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	if max := s.cfg.MaxConnect; max > 0 && atomic.LoadInt32(&s.connected) >= int32(max) {
		logger.Warnf("refuse connection from %s: reach max connect %d", conn.RemoteAddr(), max)
		_ = conn.Close()
		return
	}
	logger.Infof("accept link from %s", conn.RemoteAddr())
	atomic.AddInt32(&s.connected, 1)
	s.dispatcher.Dispatch(func() {
		defer atomic.AddInt32(&s.connected, -1)
		if timeout := s.cfg.Timeout; timeout > 0 {
			key := deadlineKey(conn)
			timewheel.Delay(timeout, key, func() {
				logger.Warnf("connection from %s reaches %v deadline, closing", conn.RemoteAddr(), timeout)
				_ = conn.Close()
			})
			defer timewheel.Cancel(key)
		}
		s.handler.Handle(ctx, conn)
	})
}

func deadlineKey(conn net.Conn) string {
	return "conn-deadline:" + conn.RemoteAddr().String()
}

// finalize drains in-flight handlers and stops the server. A fatal accept
// error takes the same path as Shutdown.
func (s *Server) finalize(fatal error) {
	s.mu.Lock()
	if s.State() == StateRunning {
		s.setState(StateShuttingDown)
	}
	if fatal != nil {
		logger.Errorf("accept error: %v", fatal)
	}
	logger.Info("shutting down...")
	_ = s.listener.Close()
	s.mu.Unlock()

	if s.dispatcher.Drain(s.cfg.GracePeriod) {
		logger.Warn("grace period expired, closing remaining connections")
	}
	_ = s.handler.Close() // close connections
	s.cancel()
	s.setState(StateStopped)
	logger.Info("server stopped")
}

// Shutdown stops accepting new connections and lets Serve drain in-flight
// handlers up to the grace period. It returns immediately and is idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateUnbound:
		s.setState(StateStopped)
	case StateBound:
		_ = s.listener.Close()
		s.setState(StateStopped)
	case StateRunning:
		s.setState(StateShuttingDown)
		// the serve loop exits and finalizes once the listener is closed
		_ = s.listener.Close()
	default:
		// already shutting down or stopped
	}
}

// ListenAndServeWithSignal binds port and handles requests, blocking until receiving a stop signal
func ListenAndServeWithSignal(cfg *Config, handler tcp.Handler) error {
	srv := NewServer(cfg, handler)
	if err := srv.Bind(); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("bind: %s, start listening...", srv.Addr()))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info(fmt.Sprintf("get signal %v, shutting down...", sig))
		srv.Shutdown()
	}()
	return srv.Serve()
}

// ListenAndServe handles requests over a listener bound by the caller,
// blocking until closeChan is notified or the listener fails
func ListenAndServe(listener net.Listener, handler tcp.Handler, closeChan <-chan struct{}) {
	cfg := &Config{Address: listener.Addr().String()}
	srv := NewServerWithListener(cfg, handler, listener)
	go func() {
		<-closeChan
		logger.Info("get exit signal")
		srv.Shutdown()
	}()
	_ = srv.Serve() // a fatal accept error is logged during finalize
}
