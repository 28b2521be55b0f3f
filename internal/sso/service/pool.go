package service

import (
	"context"
	"runtime"

	"github.com/aussiebroadwan/sso/pkg/cryptox"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many password hashes run at once.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool running size jobs at once, GOMAXPROCS when size is
// not positive.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Do runs fn once a slot is free, or returns ctx.Err() if ctx ends first.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

func (p *Pool) HashPassword(ctx context.Context, password string) (string, error) {
	var hash string
	err := p.Do(ctx, func() error {
		var err error
		hash, err = cryptox.HashPassword(password)
		return err
	})
	return hash, err
}

func (p *Pool) VerifyPassword(ctx context.Context, password, hash string) error {
	return p.Do(ctx, func() error {
		return cryptox.VerifyPassword(password, hash)
	})
}
