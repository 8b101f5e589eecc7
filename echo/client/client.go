package client

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"echod/config"
)

const (
	created = iota
	running
	closed
)

const sendTimeout = 3 * time.Second

// ErrClosed is returned when sending through a closed client
var ErrClosed = errors.New("client closed")

// Client sends requests to an echo server over one connection
type Client struct {
	conn    net.Conn
	addr    string
	bufSize int
	status  int32
}

// MakeClient dials addr and returns a connected client
func MakeClient(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		addr:    addr,
		bufSize: bufferSize(),
	}
	atomic.StoreInt32(&c.status, running)
	return c, nil
}

func bufferSize() int {
	if config.Properties != nil && config.Properties.BufferSize > 0 {
		return config.Properties.BufferSize
	}
	return 512
}

// RemoteAddr returns the address of the server end
func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes payload and reads one reply, bounded by a 3s deadline
func (c *Client) Send(payload []byte) ([]byte, error) {
	if atomic.LoadInt32(&c.status) != running {
		return nil, ErrClosed
	}
	if err := c.conn.SetDeadline(time.Now().Add(sendTimeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(payload); err != nil {
		return nil, err
	}
	buf := make([]byte, c.bufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close closes the connection, pending Sends fail
func (c *Client) Close() error {
	atomic.StoreInt32(&c.status, closed)
	return c.conn.Close()
}
