// Package kv provides a Redis-like key-value store abstraction with in-memory
// and Redis-backed implementations.
//
// Backends register themselves from init; import the ones you need:
//
//	import (
//		_ "github.com/inkpost/inkpost-backend/pkg/kv/memory"
//		_ "github.com/inkpost/inkpost-backend/pkg/kv/redis"
//	)
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	err = store.SetString(ctx, "session:abc", "authenticated", 10*time.Minute)
//
// Get, GetString and TTL return ErrNotFound for missing or expired keys. The
// Redis store wraps connection failures in ErrBackendUnavailable so a
// FailoverStore can switch to its fallback.
package kv
