package tcp

/**
 * A tcp listener producing incoming connections
 */

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"echod/lib/logger"
	"echod/lib/sync/atomic"
)

// ErrWouldBlock is returned by Accept in non-blocking mode when no connection is pending
var ErrWouldBlock = errors.New("accept would block")

var errNoDeadline = errors.New("listener does not support deadlines")

const acceptRetryInterval = 5 * time.Millisecond

// Accepted is one item of the connection sequence: a connection or an accept error
type Accepted struct {
	Conn net.Conn
	Err  error
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Listener wraps a bound endpoint and produces incoming connections,
// either per Accept call or as a lazy sequence
type Listener struct {
	ln       net.Listener
	nonblock atomic.Boolean

	done      chan struct{}
	closeOnce sync.Once

	connsOnce sync.Once
	conns     chan Accepted
}

// Bind listens on address exclusively. The address must have the
// "host:port" form, port 0 picks an ephemeral port.
func Bind(address string) (*Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", address, err)
	}
	return WrapListener(ln), nil
}

// WrapListener adopts a listener bound by the caller
func WrapListener(ln net.Listener) *Listener {
	return &Listener{
		ln:   ln,
		done: make(chan struct{}),
	}
}

// SetNonblock toggles non-blocking mode. While enabled, Accept returns
// ErrWouldBlock instead of waiting when no connection is pending.
func (l *Listener) SetNonblock(v bool) {
	l.nonblock.Set(v)
}

// Addr returns the bound address
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits for the next incoming connection. The peer address is
// available through RemoteAddr of the returned connection. After Close
// it fails with net.ErrClosed.
func (l *Listener) Accept() (net.Conn, error) {
	if l.nonblock.Get() {
		return l.tryAccept()
	}
	return l.ln.Accept()
}

func (l *Listener) tryAccept() (net.Conn, error) {
	d, ok := l.ln.(deadliner)
	if !ok {
		return nil, errNoDeadline
	}
	_ = d.SetDeadline(time.Now())
	conn, err := l.ln.Accept()
	_ = d.SetDeadline(time.Time{})
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	return conn, nil
}

// Connections returns a lazy, infinite sequence of incoming connections.
// The first call starts the single producing goroutine, every call returns
// the same channel: the sequence is not restartable. Transient accept errors
// are retried internally, any other accept error is yielded as the last item.
// The channel is closed when the listener is closed. The producer always
// blocks for the next connection regardless of non-blocking mode.
func (l *Listener) Connections() <-chan Accepted {
	l.connsOnce.Do(func() {
		l.conns = make(chan Accepted)
		go l.produce()
	})
	return l.conns
}

func (l *Listener) produce() {
	defer close(l.conns)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			// learn from net/http/serve.go#Serve()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("accept occurs temporary error: %v, retry in 5ms", err)
				time.Sleep(acceptRetryInterval)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case l.conns <- Accepted{Err: err}:
			case <-l.done:
			}
			return
		}
		select {
		case l.conns <- Accepted{Conn: conn}:
		case <-l.done:
			// nobody consumes the sequence anymore
			_ = conn.Close()
			return
		}
	}
}

// Close stops the listener: a blocked Accept returns immediately and the
// connection sequence terminates. Close is idempotent.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.ln.Close()
	})
	return err
}
