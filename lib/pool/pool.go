package pool

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Get after Close
	ErrClosed = errors.New("pool closed")
	// ErrMax is returned by Get while the pool is exhausted and closing
	ErrMax = errors.New("reach max connection limit")
)

// Config stores the bounds of a Pool
type Config struct {
	MaxIdle   int32
	MaxActive int32
}

// Pool stores objects for reusing, such as client connections
type Pool struct {
	Config
	factory     func() (interface{}, error)
	finalizer   func(x interface{})
	idles       chan interface{}
	activeCount int32 // increases during creating, decreases during destroying
	closed      atomic.Bool
}

// New creates a pool creating objects through factory and destroying them through finalizer
func New(factory func() (interface{}, error), finalizer func(x interface{}), cfg Config) *Pool {
	return &Pool{
		factory:   factory,
		finalizer: finalizer,
		idles:     make(chan interface{}, cfg.MaxIdle),
		Config:    cfg,
	}
}

// getOnNoIdle try to create a new object or wait for an object being returned
func (pool *Pool) getOnNoIdle() (interface{}, error) {
	if atomic.LoadInt32(&pool.activeCount) >= pool.MaxActive {
		// waiting for an object being returned
		x, ok := <-pool.idles
		if !ok {
			return nil, ErrMax
		}
		return x, nil
	}
	// hold a place for the new object
	atomic.AddInt32(&pool.activeCount, 1)
	x, err := pool.factory()
	if err != nil {
		// create failed, release the holding place
		atomic.AddInt32(&pool.activeCount, -1)
		return nil, err
	}
	return x, nil
}

// Get borrows an object from the pool, creating one if no idle object exists
func (pool *Pool) Get() (interface{}, error) {
	if pool.closed.Load() {
		return nil, ErrClosed
	}
	select {
	case item := <-pool.idles:
		return item, nil
	default:
		// no pooled item, create one
		return pool.getOnNoIdle()
	}
}

// Put returns a borrowed object to the pool
func (pool *Pool) Put(x interface{}) {
	if pool.closed.Load() {
		pool.finalizer(x)
		return
	}
	select {
	case pool.idles <- x:
		return
	default:
		// reach max idle, destroy the redundant item
		atomic.AddInt32(&pool.activeCount, -1)
		pool.finalizer(x)
	}
}

// Discard destroys a borrowed object instead of returning it, for broken objects
func (pool *Pool) Discard(x interface{}) {
	atomic.AddInt32(&pool.activeCount, -1)
	pool.finalizer(x)
}

// Close destroys all idle objects, Get returns ErrClosed afterwards
func (pool *Pool) Close() {
	if pool.closed.Load() {
		return
	}
	pool.closed.Store(true)
	close(pool.idles)
	for x := range pool.idles {
		pool.finalizer(x)
	}
}
