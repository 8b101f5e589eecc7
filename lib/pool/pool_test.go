package pool

import (
	"testing"
	"time"
)

type mockConn struct {
	open bool
}

func TestPool(t *testing.T) {
	connNum := 0
	factory := func() (interface{}, error) {
		connNum++
		return &mockConn{
			open: true,
		}, nil
	}
	finalizer := func(x interface{}) {
		connNum--
		c := x.(*mockConn)
		c.open = false
	}
	cfg := Config{
		MaxIdle:   20,
		MaxActive: 40,
	}
	pool := New(factory, finalizer, cfg)
	var borrowed []*mockConn
	for i := 0; i < int(cfg.MaxActive); i++ {
		x, err := pool.Get()
		if err != nil {
			t.Error(err)
			return
		}
		c := x.(*mockConn)
		if !c.open {
			t.Error("conn is not open")
			return
		}
		borrowed = append(borrowed, c)
	}
	for _, c := range borrowed {
		pool.Put(c)
	}
	borrowed = nil
	// borrow returned
	for i := 0; i < int(cfg.MaxActive); i++ {
		x, err := pool.Get()
		if err != nil {
			t.Error(err)
			return
		}
		c := x.(*mockConn)
		if !c.open {
			t.Error("conn is not open")
			return
		}
		borrowed = append(borrowed, c)
	}
	for i, c := range borrowed {
		if i < len(borrowed)-1 {
			pool.Put(c)
		}
	}
	pool.Close()
	pool.Close() // close twice should be safe
	pool.Put(borrowed[len(borrowed)-1])
	if connNum != 0 {
		t.Errorf("%d connections has not closed", connNum)
	}
	_, err := pool.Get()
	if err != ErrClosed {
		t.Error("expect err closed")
	}
}

func TestPoolWaiting(t *testing.T) {
	factory := func() (interface{}, error) {
		return &mockConn{
			open: true,
		}, nil
	}
	finalizer := func(x interface{}) {
		c := x.(*mockConn)
		c.open = false
	}
	cfg := Config{
		MaxIdle:   2,
		MaxActive: 4,
	}
	pool := New(factory, finalizer, cfg)
	var borrowed []*mockConn
	for i := 0; i < int(cfg.MaxActive); i++ {
		x, err := pool.Get()
		if err != nil {
			t.Error(err)
			return
		}
		borrowed = append(borrowed, x.(*mockConn))
	}
	// Get blocks until an object is returned
	returned := make(chan struct{})
	go func() {
		x, err := pool.Get()
		if err != nil {
			t.Error(err)
			return
		}
		if !x.(*mockConn).open {
			t.Error("conn is not open")
		}
		close(returned)
	}()
	select {
	case <-returned:
		t.Error("get should wait for a returned object")
		return
	case <-time.After(100 * time.Millisecond):
	}
	pool.Put(borrowed[0])
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Error("get did not receive the returned object")
	}
}

func TestPoolDiscard(t *testing.T) {
	connNum := 0
	factory := func() (interface{}, error) {
		connNum++
		return &mockConn{
			open: true,
		}, nil
	}
	finalizer := func(x interface{}) {
		connNum--
		x.(*mockConn).open = false
	}
	pool := New(factory, finalizer, Config{MaxIdle: 1, MaxActive: 1})
	x, err := pool.Get()
	if err != nil {
		t.Error(err)
		return
	}
	pool.Discard(x)
	if x.(*mockConn).open {
		t.Error("discarded conn is still open")
	}
	// the active slot is released, a fresh object can be created
	y, err := pool.Get()
	if err != nil {
		t.Error(err)
		return
	}
	if !y.(*mockConn).open {
		t.Error("conn is not open")
	}
	pool.Put(y)
	pool.Close()
	if connNum != 0 {
		t.Errorf("%d connections has not closed", connNum)
	}
}
