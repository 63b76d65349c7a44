package codec

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/richinex/counsel/model"
)

// DefaultPoolSize bounds concurrent (de)serializations when no size is given.
const DefaultPoolSize = 8

// Pool is a bounded set of Codecs. Acquire blocks while all codecs are in
// use; waiters are admitted in FIFO order.
type Pool struct {
	size int
	sem  *semaphore.Weighted

	mu   sync.Mutex
	free []*Codec
}

// NewPool creates a pool holding at most size codecs. Codecs are created
// lazily on first demand.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
		free: make([]*Codec, 0, size),
	}
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Acquire takes a codec from the pool, waiting until one is free or ctx ends.
// Every successful Acquire must be paired with Release.
func (p *Pool) Acquire(ctx context.Context) (*Codec, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		return c, nil
	}
	return New(), nil
}

// Release returns c to the pool.
func (p *Pool) Release(c *Codec) {
	c.reset()
	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Encode serializes h using a pooled codec.
func (p *Pool) Encode(ctx context.Context, h model.History) ([]byte, error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(c)
	return c.Encode(h)
}

// Decode parses data using a pooled codec.
func (p *Pool) Decode(ctx context.Context, data []byte) (model.History, error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(c)
	return c.Decode(data)
}
