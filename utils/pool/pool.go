// Package pool provides a wrapper around sync.Pool that counts allocations.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool is a wrapper around sync.Pool that counts the items it had to create.
type Pool struct {
	Name string     // Name identifies the pool in logs.
	Pool *sync.Pool // Pool is the underlying sync.Pool instance.

	created atomic.Int64
}

// NewPool creates a new counting pool.
// The 'newFunc' is the function called to create a new item when the pool is empty.
func NewPool(name string, newFunc func() any) *Pool {
	p := &Pool{
		Name: name,
	}

	p.Pool = &sync.Pool{
		New: func() any {
			p.created.Add(1)
			return newFunc()
		},
	}
	return p
}

// Put adds x back to the pool for reuse.
func (p *Pool) Put(x any) {
	p.Pool.Put(x)
}

// Get retrieves an item from the pool.
// If the pool is empty, a new item is created using the 'newFunc' provided to NewPool.
func (p *Pool) Get() any {
	return p.Pool.Get()
}

// Created returns how many items newFunc has built.
func (p *Pool) Created() int64 {
	return p.created.Load()
}
