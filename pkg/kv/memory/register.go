package memory

import (
	"time"

	"github.com/inkpost/inkpost-backend/pkg/kv"
)

// DefaultJanitorInterval is used when the config leaves it unset
const DefaultJanitorInterval = 30 * time.Second

func init() {
	kv.RegisterBackend(kv.BackendMemory, func(cfg kv.Config) (kv.Store, error) {
		interval := cfg.JanitorInterval
		if interval == 0 {
			interval = DefaultJanitorInterval
		}
		return New(interval), nil
	})
}

// NewStore creates a new in-memory store with the default janitor interval
func NewStore() kv.Store {
	return New(DefaultJanitorInterval)
}
