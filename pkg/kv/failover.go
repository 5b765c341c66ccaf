package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// LogFunc is a function type for structured logging
type LogFunc func(msg string, fields ...any)

// FailoverStore prefers primary and switches to fallback when primary reports
// ErrBackendUnavailable. While on fallback it probes primary and switches
// back once a ping succeeds. Keys written to one side are not copied to the other.
type FailoverStore struct {
	primary       Store
	fallback      Store
	onFallback    atomic.Bool
	probeInterval time.Duration
	logger        LogFunc

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewFailoverStore starts with primary active
func NewFailoverStore(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	if logger == nil {
		logger = func(string, ...any) {}
	}
	fs := &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		probeInterval: probeInterval,
		logger:        logger,
		closed:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	go fs.probeLoop()
	return fs
}

// NewFailoverStoreWithFallbackActive starts on fallback, used when primary failed at startup
func NewFailoverStoreWithFallbackActive(primary, fallback Store, probeInterval time.Duration, logger LogFunc) *FailoverStore {
	fs := NewFailoverStore(primary, fallback, probeInterval, logger)
	fs.onFallback.Store(true)
	return fs
}

// UsingFallback reports whether the fallback store is active
func (fs *FailoverStore) UsingFallback() bool {
	return fs.onFallback.Load()
}

func (fs *FailoverStore) active() Store {
	if fs.onFallback.Load() {
		return fs.fallback
	}
	return fs.primary
}

func (fs *FailoverStore) probeLoop() {
	defer close(fs.done)

	ticker := time.NewTicker(fs.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.closed:
			return
		case <-ticker.C:
			if !fs.onFallback.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), fs.probeInterval/2)
			err := fs.primary.Ping(ctx)
			cancel()
			if err == nil && fs.onFallback.CompareAndSwap(true, false) {
				fs.logger("Recovered to primary store", "reason", "primary_healthy")
			}
		}
	}
}

func (fs *FailoverStore) demote(err error) {
	if fs.onFallback.CompareAndSwap(false, true) {
		fs.logger("Failing over to in-memory store", "reason", "primary_unavailable", "error", err.Error())
	}
}

// do runs fn on the active store, retrying once on fallback if primary is unavailable
func do[T any](fs *FailoverStore, fn func(Store) (T, error)) (T, error) {
	store := fs.active()
	result, err := fn(store)
	if store == fs.primary && errors.Is(err, ErrBackendUnavailable) {
		fs.demote(err)
		return fn(fs.fallback)
	}
	return result, err
}

func (fs *FailoverStore) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	_, err := do(fs, func(s Store) (struct{}, error) {
		return struct{}{}, s.Set(ctx, key, value, ttl...)
	})
	return err
}

func (fs *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	return do(fs, func(s Store) ([]byte, error) {
		return s.Get(ctx, key)
	})
}

func (fs *FailoverStore) SetString(ctx context.Context, key string, value string, ttl ...time.Duration) error {
	return fs.Set(ctx, key, []byte(value), ttl...)
}

func (fs *FailoverStore) GetString(ctx context.Context, key string) (string, error) {
	data, err := fs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (fs *FailoverStore) Del(ctx context.Context, keys ...string) (int64, error) {
	return do(fs, func(s Store) (int64, error) {
		return s.Del(ctx, keys...)
	})
}

func (fs *FailoverStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	return do(fs, func(s Store) (int64, error) {
		return s.Exists(ctx, keys...)
	})
}

func (fs *FailoverStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return do(fs, func(s Store) (bool, error) {
		return s.Expire(ctx, key, ttl)
	})
}

func (fs *FailoverStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return do(fs, func(s Store) (time.Duration, error) {
		return s.TTL(ctx, key)
	})
}

// Ping succeeds while either side is usable
func (fs *FailoverStore) Ping(ctx context.Context) error {
	return fs.active().Ping(ctx)
}

func (fs *FailoverStore) Close() error {
	var err error
	fs.closeOnce.Do(func() {
		close(fs.closed)
		<-fs.done
		err = errors.Join(fs.primary.Close(), fs.fallback.Close())
	})
	return err
}
