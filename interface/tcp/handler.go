package tcp

import (
	"context"
	"net"
)

// Handler represents an application server over tcp
type Handler interface {
	Handle(ctx context.Context, conn net.Conn)
	Close() error
}

// HandleFunc is an adapter to allow the use of an ordinary function as a Handler
type HandleFunc func(ctx context.Context, conn net.Conn)

// Handle calls f(ctx, conn)
func (f HandleFunc) Handle(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// Close is a no-op, a bare function has no connections to release
func (f HandleFunc) Close() error {
	return nil
}
