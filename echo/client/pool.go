package client

import (
	"echod/lib/pool"
)

// Pool maintains reusable client connections to one server. A client that
// fails an exchange is finalized instead of returned, so servers closing
// the connection after each reply simply cost a fresh dial per exchange.
type Pool struct {
	backend *pool.Pool
}

// MakePool creates a client pool for addr
func MakePool(addr string, maxIdle, maxActive int32) *Pool {
	factory := func() (interface{}, error) {
		return MakeClient(addr)
	}
	finalizer := func(x interface{}) {
		c, ok := x.(*Client)
		if !ok {
			return
		}
		_ = c.Close()
	}
	return &Pool{
		backend: pool.New(factory, finalizer, pool.Config{
			MaxIdle:   maxIdle,
			MaxActive: maxActive,
		}),
	}
}

// Send borrows a client for one exchange and returns it afterwards. A failed
// exchange is retried once on a fresh connection, so a stale pooled client
// does not surface to the caller.
func (p *Pool) Send(payload []byte) ([]byte, error) {
	reply, err := p.trySend(payload)
	if err == nil {
		return reply, nil
	}
	return p.trySend(payload)
}

func (p *Pool) trySend(payload []byte) ([]byte, error) {
	x, err := p.backend.Get()
	if err != nil {
		return nil, err
	}
	c := x.(*Client)
	reply, err := c.Send(payload)
	if err != nil {
		p.backend.Discard(c)
		return nil, err
	}
	p.backend.Put(c)
	return reply, nil
}

// Close finalizes idle clients and stops lending
func (p *Pool) Close() {
	p.backend.Close()
}
