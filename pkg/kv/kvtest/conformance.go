// Package kvtest provides conformance tests for kv.Store implementations
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkpost/inkpost-backend/pkg/kv"
)

// StoreFactory creates a fresh Store instance for testing
type StoreFactory func(t *testing.T) kv.Store

// RunConformanceTests runs all conformance tests against a Store implementation.
// Keys are prefixed with "kvtest:" so a shared Redis can be used.
func RunConformanceTests(t *testing.T, factory StoreFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, store kv.Store)
	}{
		{"SetGet", testSetGet},
		{"GetNonExistent", testGetNonExistent},
		{"SetGetString", testSetGetString},
		{"Overwrite", testOverwrite},
		{"Del", testDel},
		{"Exists", testExists},
		{"TTL", testTTL},
		{"Expiry", testExpiry},
		{"ExpireRefresh", testExpireRefresh},
		{"HealthCheck", testHealthCheck},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			tt.test(t, store)
		})
	}
}

func testSetGet(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:string"
	value := []byte("hello world")

	if err := store.Set(ctx, key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	defer store.Del(ctx, key)

	result, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(result, value) {
		t.Fatalf("Expected %q, got %q", value, result)
	}
}

func testGetNonExistent(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "kvtest:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	_, err = store.GetString(ctx, "kvtest:nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound from GetString, got %v", err)
	}
}

func testSetGetString(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:setstring"
	value := "hello string"

	if err := store.SetString(ctx, key, value); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	defer store.Del(ctx, key)

	result, err := store.GetString(ctx, key)
	if err != nil {
		t.Fatalf("GetString failed: %v", err)
	}
	if result != value {
		t.Fatalf("Expected %q, got %q", value, result)
	}
}

func testOverwrite(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:overwrite"

	if err := store.SetString(ctx, key, "first", time.Minute); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	defer store.Del(ctx, key)
	if err := store.SetString(ctx, key, "second"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}

	result, err := store.GetString(ctx, key)
	if err != nil {
		t.Fatalf("GetString failed: %v", err)
	}
	if result != "second" {
		t.Fatalf("Expected %q, got %q", "second", result)
	}

	// a plain Set clears the previous TTL
	ttl, err := store.TTL(ctx, key)
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl != -1 {
		t.Fatalf("Expected no expiry after overwrite, got %v", ttl)
	}
}

func testDel(t *testing.T, store kv.Store) {
	ctx := context.Background()

	for _, key := range []string{"kvtest:del1", "kvtest:del2"} {
		if err := store.SetString(ctx, key, "v"); err != nil {
			t.Fatalf("SetString failed: %v", err)
		}
	}

	deleted, err := store.Del(ctx, "kvtest:del1", "kvtest:del2", "kvtest:del3")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("Expected 2 deleted, got %d", deleted)
	}

	if _, err := store.Get(ctx, "kvtest:del1"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after Del, got %v", err)
	}

	deleted, err = store.Del(ctx, "kvtest:del1")
	if err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("Expected 0 deleted on second Del, got %d", deleted)
	}
}

func testExists(t *testing.T, store kv.Store) {
	ctx := context.Background()

	if err := store.SetString(ctx, "kvtest:exists", "v"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	defer store.Del(ctx, "kvtest:exists")

	n, err := store.Exists(ctx, "kvtest:exists", "kvtest:missing")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 existing key, got %d", n)
	}
}

func testTTL(t *testing.T, store kv.Store) {
	ctx := context.Background()

	if err := store.SetString(ctx, "kvtest:ttl", "v", time.Minute); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	defer store.Del(ctx, "kvtest:ttl", "kvtest:nottl")

	ttl, err := store.TTL(ctx, "kvtest:ttl")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("Expected TTL in (0, 1m], got %v", ttl)
	}

	if err := store.SetString(ctx, "kvtest:nottl", "v"); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	ttl, err = store.TTL(ctx, "kvtest:nottl")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl != -1 {
		t.Fatalf("Expected -1 for key without expiry, got %v", ttl)
	}

	if _, err := store.TTL(ctx, "kvtest:missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing key, got %v", err)
	}
}

func testExpiry(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:expiry"

	if err := store.SetString(ctx, key, "v", 100*time.Millisecond); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	if _, err := store.GetString(ctx, key); err != nil {
		t.Fatalf("Expected key before expiry: %v", err)
	}

	time.Sleep(250 * time.Millisecond)

	if _, err := store.GetString(ctx, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after expiry, got %v", err)
	}
	n, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("Expected expired key to not exist, got %d", n)
	}
}

func testExpireRefresh(t *testing.T, store kv.Store) {
	ctx := context.Background()
	key := "kvtest:refresh"

	if err := store.SetString(ctx, key, "v", 150*time.Millisecond); err != nil {
		t.Fatalf("SetString failed: %v", err)
	}
	defer store.Del(ctx, key)

	// keep extending the key past its original deadline
	for i := 0; i < 4; i++ {
		time.Sleep(75 * time.Millisecond)
		ok, err := store.Expire(ctx, key, 150*time.Millisecond)
		if err != nil {
			t.Fatalf("Expire failed: %v", err)
		}
		if !ok {
			t.Fatalf("Expected Expire to find the key on round %d", i)
		}
	}

	if _, err := store.GetString(ctx, key); err != nil {
		t.Fatalf("Expected refreshed key to be alive: %v", err)
	}

	ok, err := store.Expire(ctx, "kvtest:missing", time.Minute)
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if ok {
		t.Fatalf("Expected Expire on a missing key to report false")
	}
}

func testHealthCheck(t *testing.T, store kv.Store) {
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
