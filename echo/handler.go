package echo

/**
 * A handler answering each connection with a single request/response exchange
 */

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"echod/config"
	"echod/lib/logger"
	"echod/lib/sync/atomic"
	"echod/lib/sync/wait"
)

// defaultBufferSize bounds a single request read
const defaultBufferSize = 512

// Handler reads a request of at most the configured buffer capacity and
// writes a reply, echoing the request back unless a fixed reply is set.
// The one-shot form closes the connection after the exchange, the stream
// form keeps answering until the client closes its end.
type Handler struct {
	bufSize    int
	fixedReply []byte
	stream     bool

	activeConn sync.Map // *Client -> placeholder
	closing    atomic.Boolean
}

// Client is a connection being served by a Handler
type Client struct {
	Conn    net.Conn
	Waiting wait.Wait
}

// Close closes the connection once a pending reply is written
func (c *Client) Close() error {
	c.Waiting.WaitWithTimeout(10 * time.Second)
	_ = c.Conn.Close()
	return nil
}

// MakeHandler creates a one-shot request/response handler
func MakeHandler() *Handler {
	return &Handler{
		bufSize:    bufferSize(),
		fixedReply: fixedReply(),
	}
}

// MakeStreamHandler creates a handler answering requests until client EOF
func MakeStreamHandler() *Handler {
	h := MakeHandler()
	h.stream = true
	return h
}

func bufferSize() int {
	if config.Properties != nil && config.Properties.BufferSize > 0 {
		return config.Properties.BufferSize
	}
	return defaultBufferSize
}

func fixedReply() []byte {
	if config.Properties != nil && config.Properties.FixedReply != "" {
		return []byte(config.Properties.FixedReply)
	}
	return nil
}

// Handle serves one connection, replying to each request read
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	if h.closing.Get() {
		// closing handler refuse new connection
		_ = conn.Close()
		return
	}

	client := &Client{
		Conn: conn,
	}
	h.activeConn.Store(client, struct{}{})
	defer func() {
		_ = conn.Close()
		h.activeConn.Delete(client)
	}()

	buf := make([]byte, h.bufSize)
	for {
		// may occurs: client EOF, client timeout, server early close
		n, err := conn.Read(buf)
		if n > 0 {
			reply := buf[:n]
			if len(h.fixedReply) > 0 {
				reply = h.fixedReply
			}
			client.Waiting.Add(1)
			_, werr := conn.Write(reply)
			client.Waiting.Done()
			if werr != nil {
				logger.Warn(werr)
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				logger.Info("connection close")
			} else {
				logger.Warn(err)
			}
			return
		}
		if !h.stream {
			return
		}
	}
}

// Close stops the handler, closing the connections being served
func (h *Handler) Close() error {
	logger.Info("handler shutting down...")
	h.closing.Set(true)
	h.activeConn.Range(func(key interface{}, val interface{}) bool {
		client := key.(*Client)
		_ = client.Close()
		return true
	})
	return nil
}
