package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency is used when a caller does not pick a size.
	DefaultConcurrency = 10
	// MaxConcurrency caps every pool.
	MaxConcurrency = 50
)

// ErrInvalidConcurrency is returned for sizes outside 1..MaxConcurrency.
var ErrInvalidConcurrency = errors.New("invalid concurrency")

// Pool runs indexed work items on a bounded number of goroutines.
type Pool struct {
	size int

	mu     sync.Mutex
	active int
	peak   int
}

// NewPool creates a pool of the given size. Zero selects DefaultConcurrency.
func NewPool(size int) (*Pool, error) {
	if size == 0 {
		size = DefaultConcurrency
	}
	if size < 1 || size > MaxConcurrency {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidConcurrency, size, MaxConcurrency)
	}
	return &Pool{size: size}, nil
}

// Size returns the maximum number of concurrent items.
func (p *Pool) Size() int {
	return p.size
}

// Run calls fn for every index in [0, n) with at most Size calls in flight.
// Scheduling stops once ctx is done or fn returns an error; the first error is returned.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.enter()
			defer p.leave()
			return fn(gctx, i)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Peak returns the highest number of items that ran at once over every Run.
func (p *Pool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func (p *Pool) enter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
}

func (p *Pool) leave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active > 0 {
		p.active--
	}
}
