// Package lock serializes cascades that touch the same collections across
// goroutines (LocalLocker) or worker instances (RedisLocker).
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

var ErrNotObtained = errors.New("lock not obtained")

type Releaser interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error)
}

// ObtainAll takes every key in sorted order so two callers with overlapping
// key sets cannot deadlock. On failure the keys already held are released.
func ObtainAll(ctx context.Context, l Locker, keys []string, ttl time.Duration) (Releaser, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	held := make(multi, 0, len(sorted))
	for _, k := range sorted {
		r, err := l.Obtain(ctx, k, ttl)
		if err != nil {
			_ = held.Release(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("obtain %s: %w", k, err)
		}
		held = append(held, r)
	}
	return held, nil
}

type multi []Releaser

func (m multi) Release(ctx context.Context) error {
	var errs []error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LocalLocker is an in-process mutex per key. The ttl is ignored.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]chan struct{}{}}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, _ time.Duration) (Releaser, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return localRelease(ch), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type localRelease chan struct{}

func (r localRelease) Release(context.Context) error {
	select {
	case <-r:
	default:
	}
	return nil
}

// RedisLocker uses redislock with linear retries until ctx is done or the
// retry budget is spent.
type RedisLocker struct {
	Client     *redislock.Client
	Prefix     string
	RetryEvery time.Duration
	MaxRetries int
}

func NewRedisLocker(c *redislock.Client) *RedisLocker {
	return &RedisLocker{
		Client:     c,
		Prefix:     "ops:lock:",
		RetryEvery: 100 * time.Millisecond,
		MaxRetries: 300,
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Releaser, error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.RetryEvery), l.MaxRetries),
	}
	lk, err := l.Client.Obtain(ctx, l.Prefix+key, ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, err
	}
	return lk, nil
}
