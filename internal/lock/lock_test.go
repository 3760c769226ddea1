package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDoctorDayKey(t *testing.T) {
	doctor := uuid.MustParse("2f1c7a5e-8d0b-4c1e-9a57-3b6f0e7d2a11")
	date := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "lock:doctor-day:2f1c7a5e-8d0b-4c1e-9a57-3b6f0e7d2a11:2026-05-04", DoctorDayKey(doctor, date))
}

func assertMutualExclusion(t *testing.T, l Locker) {
	t.Helper()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "lock:test:shared", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxSeen)
					if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker(5 * time.Second)
	assertMutualExclusion(t, l)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.slots, "idle keys should be dropped")
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker(time.Second)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := l.WithLock(context.Background(), "b", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	close(done)
}

func TestLocalLockerWaitTimeout(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

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

	err := l.WithLock(context.Background(), "k", func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	require.ErrorIs(t, err, ErrLockNotAcquired)
	close(done)
}

func TestLocalLockerContextCancel(t *testing.T) {
	l := NewLocalLocker(0)

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.WithLock(ctx, "k", func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(done)
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	l := NewRedisLocker(client, 5*time.Second, 5*time.Second, zap.NewNop())
	assertMutualExclusion(t, l)

	exists, err := client.Exists(context.Background(), "lock:test:shared").Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock key should be released")
}
