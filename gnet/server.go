package gnet

import (
	"context"
	"sync/atomic"
	"time"

	"echod/config"
	"echod/lib/logger"

	"github.com/panjf2000/gnet/v2"
)

// GnetServer answers echo exchanges from gnet event loops instead of a
// goroutine per connection
type GnetServer struct {
	gnet.BuiltinEventEngine
	eng        gnet.Engine
	booted     int32
	connected  int32
	maxConnect int32
	bufSize    int
	fixedReply []byte
	stream     bool
}

func NewGnetServer() *GnetServer {
	server := &GnetServer{
		bufSize: 512,
	}
	if config.Properties != nil {
		if config.Properties.BufferSize > 0 {
			server.bufSize = config.Properties.BufferSize
		}
		server.maxConnect = int32(config.Properties.MaxConnect)
		server.fixedReply = []byte(config.Properties.FixedReply)
		server.stream = config.Properties.Stream
	}
	return server
}

// Run serves at addr (host:port) until Close, blocking the caller
func (s *GnetServer) Run(addr string) error {
	return gnet.Run(s, "tcp://"+addr, gnet.WithMulticore(true))
}

// Close stops the event loops, active connections are dropped. Closing a
// server that never booted is a no-op.
func (s *GnetServer) Close() {
	if atomic.LoadInt32(&s.booted) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.eng.Stop(ctx); err != nil {
		logger.Errorf("stop server failed: %v", err)
	}
}

func (s *GnetServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.eng = eng
	atomic.StoreInt32(&s.booted, 1)
	return
}

// served marks connections admitted by OnOpen, refused ones carry no context
type served struct{}

func (s *GnetServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	if s.maxConnect > 0 && atomic.LoadInt32(&s.connected) >= s.maxConnect {
		logger.Warnf("refuse connection from %s: reach max connect %d", c.RemoteAddr(), s.maxConnect)
		return nil, gnet.Close
	}
	c.SetContext(served{})
	atomic.AddInt32(&s.connected, 1)
	return
}

func (s *GnetServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	if err != nil {
		logger.Infof("error occurred on connection=%s, %v\n", c.RemoteAddr().String(), err)
	}
	if _, ok := c.Context().(served); ok {
		atomic.AddInt32(&s.connected, -1)
	}
	return
}

func (s *GnetServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	buf := make([]byte, s.bufSize)
	n, err := c.Read(buf)
	if err != nil {
		logger.Infof("read request failed: %v", err)
		return gnet.Close
	}
	if n == 0 {
		return gnet.None
	}
	reply := buf[:n]
	if len(s.fixedReply) > 0 {
		reply = s.fixedReply
	}
	if _, err = c.Write(reply); err != nil {
		logger.Infof("write reply failed: %v", err)
		return gnet.Close
	}
	if s.stream {
		return gnet.None
	}
	return gnet.Close
}
