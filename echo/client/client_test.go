package client

import (
	"fmt"
	"net"
	"testing"
	"time"

	"echod/echo"
	"echod/interface/tcp"
	tcpserver "echod/tcp"

	"golang.org/x/sync/errgroup"
)

func startServer(t *testing.T, handler tcp.Handler) *tcpserver.Server {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &tcpserver.Config{
		Address:     listener.Addr().String(),
		GracePeriod: time.Second,
	}
	srv := tcpserver.NewServerWithListener(cfg, handler, listener)
	go func() {
		_ = srv.Serve()
	}()
	return srv
}

func TestClientSend(t *testing.T) {
	srv := startServer(t, echo.MakeStreamHandler())
	defer srv.Shutdown()

	c, err := MakeClient(srv.Addr().String())
	if err != nil {
		t.Error(err)
		return
	}
	for i := 0; i < 5; i++ {
		payload := []byte(fmt.Sprintf("message-%d", i))
		reply, err := c.Send(payload)
		if err != nil {
			t.Error(err)
			return
		}
		if string(reply) != string(payload) {
			t.Error("get wrong response")
			return
		}
	}
	if err := c.Close(); err != nil {
		t.Error(err)
		return
	}
	if _, err := c.Send([]byte("x")); err != ErrClosed {
		t.Errorf("expect ErrClosed, got %v", err)
	}
}

func TestPoolSend(t *testing.T) {
	srv := startServer(t, echo.MakeStreamHandler())
	defer srv.Shutdown()

	p := MakePool(srv.Addr().String(), 2, 4)
	defer p.Close()

	var group errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		group.Go(func() error {
			for round := 0; round < 3; round++ {
				payload := []byte(fmt.Sprintf("worker-%d-%d", i, round))
				reply, err := p.Send(payload)
				if err != nil {
					return err
				}
				if string(reply) != string(payload) {
					return fmt.Errorf("sent %q, got %q", payload, reply)
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Error(err)
	}
}

func TestPoolAgainstOneShotServer(t *testing.T) {
	srv := startServer(t, echo.MakeHandler())
	defer srv.Shutdown()

	p := MakePool(srv.Addr().String(), 2, 4)
	defer p.Close()

	// the server hangs up after every reply, each exchange rides a fresh dial
	for i := 0; i < 5; i++ {
		payload := []byte(fmt.Sprintf("shot-%d", i))
		reply, err := p.Send(payload)
		if err != nil {
			t.Error(err)
			return
		}
		if string(reply) != string(payload) {
			t.Error("get wrong response")
			return
		}
	}
}
