package tcp

import (
	"errors"
	"net"
	"testing"
	"time"
)

func TestBind(t *testing.T) {
	listener, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Error(err)
		return
	}
	defer listener.Close()
	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok || addr.Port == 0 {
		t.Errorf("bind did not pick a concrete port: %v", listener.Addr())
		return
	}

	// the port is held exclusively
	if _, err := Bind(addr.String()); err == nil {
		t.Error("binding a taken port should fail")
		return
	}

	if _, err := Bind("not-an-address"); err == nil {
		t.Error("binding a malformed address should fail")
	}
}

func TestAcceptPeerAddress(t *testing.T) {
	listener, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Error(err)
		return
	}
	defer listener.Close()

	dialed, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Error(err)
		return
	}
	defer dialed.Close()

	conn, err := listener.Accept()
	if err != nil {
		t.Error(err)
		return
	}
	defer conn.Close()
	if conn.RemoteAddr().String() != dialed.LocalAddr().String() {
		t.Errorf("accepted peer %s, dialed from %s", conn.RemoteAddr(), dialed.LocalAddr())
	}
}

func TestAcceptWouldBlock(t *testing.T) {
	listener, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Error(err)
		return
	}
	defer listener.Close()
	listener.SetNonblock(true)

	begin := time.Now()
	_, err = listener.Accept()
	if !errors.Is(err, ErrWouldBlock) {
		t.Errorf("expect ErrWouldBlock, got %v", err)
		return
	}
	if elapsed := time.Since(begin); elapsed > 500*time.Millisecond {
		t.Errorf("non-blocking accept took %v", elapsed)
		return
	}

	dialed, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Error(err)
		return
	}
	defer dialed.Close()

	// a pending connection is picked up within a few polls
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := listener.Accept()
		if err == nil {
			_ = conn.Close()
			return
		}
		if !errors.Is(err, ErrWouldBlock) {
			t.Error(err)
			return
		}
		if time.Now().After(deadline) {
			t.Error("pending connection never surfaced")
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnections(t *testing.T) {
	listener, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Error(err)
		return
	}

	seq := listener.Connections()
	if again := listener.Connections(); again != seq {
		t.Error("the connection sequence must not restart")
		return
	}

	for i := 0; i < 2; i++ {
		dialed, err := net.Dial("tcp", listener.Addr().String())
		if err != nil {
			t.Error(err)
			return
		}
		select {
		case accepted := <-seq:
			if accepted.Err != nil {
				t.Error(accepted.Err)
				return
			}
			if accepted.Conn.RemoteAddr().String() != dialed.LocalAddr().String() {
				t.Error("connection yielded out of order")
				return
			}
			_ = accepted.Conn.Close()
		case <-time.After(2 * time.Second):
			t.Error("sequence never yielded the connection")
			return
		}
		_ = dialed.Close()
	}

	_ = listener.Close()
	select {
	case _, ok := <-seq:
		if ok {
			t.Error("sequence yielded after close")
		}
	case <-time.After(2 * time.Second):
		t.Error("sequence did not terminate after close")
	}

	// closing twice is a no-op
	if err := listener.Close(); err != nil {
		t.Error(err)
	}

	if _, err := listener.Accept(); err == nil {
		t.Error("accept on a closed listener should fail")
	}
}
