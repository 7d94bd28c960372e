package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockerSerialisesSameKey(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "drone:1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
	if len(l.locks) != 0 {
		t.Fatalf("expected lock table to be empty, got %d entries", len(l.locks))
	}
}

func TestLocalLockerDistinctKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "drone:a", func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.WithLock(ctx, "drone:b", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("other key blocked: %v", err)
	}
	close(done)
}

func TestLocalLockerContextTimeout(t *testing.T) {
	l := NewLocalLocker()
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "k", func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", func(ctx context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}

func TestLocalLockerPropagatesError(t *testing.T) {
	l := NewLocalLocker()
	boom := errors.New("boom")
	if err := l.WithLock(context.Background(), "k", func(ctx context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestNewFallsBackWithoutRedis(t *testing.T) {
	if _, ok := New(nil, "lock", time.Second).(*LocalLocker); !ok {
		t.Fatal("expected LocalLocker when redis is nil")
	}
}

func TestKeepAliveRenewsUntilReleased(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		keepAlive(ctx, time.Millisecond, func(context.Context) (bool, error) {
			if calls.Add(1) == 2 {
				return false, errors.New("redis timeout")
			}
			return true, nil
		}, cancel)
		close(done)
	}()
	for calls.Load() < 5 {
		time.Sleep(time.Millisecond)
	}
	cancel(nil)
	<-done
	if cause := context.Cause(ctx); cause != context.Canceled {
		t.Fatalf("released holder saw cause %v", cause)
	}
}

func TestKeepAliveCancelsHolderWhenLeaseIsLost(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	var calls atomic.Int32
	keepAlive(ctx, time.Millisecond, func(context.Context) (bool, error) {
		calls.Add(1)
		return false, nil
	}, cancel)
	if !errors.Is(context.Cause(ctx), ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", context.Cause(ctx))
	}
	if calls.Load() != 1 {
		t.Fatalf("expected renewal to stop after the lease was lost, got %d calls", calls.Load())
	}
}
