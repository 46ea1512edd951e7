// Package cache stores compiled engine plans so that converting the same
// partition twice skips the engine build.
//
// # Backends
//
//   - [NullCache]: caching disabled
//   - [FileCache]: one JSON entry file per key under a directory, used by
//     the CLI (default: $XDG_CACHE_HOME/netcut)
//   - [RedisCache]: shared cache for the API server and CI workers
//
// # Keys
//
// Keys are built by a [Keyer]. [DefaultKeyer] hashes the serialized
// intermediate model together with every build option that influences the
// engine, so a change of batch size or workspace produces a new key.
// [ScopedKeyer] prefixes keys to separate tenants sharing one backend.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value cache with per-entry expiry.
type Cache interface {
	// Get returns the value of key. A missing or expired key is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// TTLEngine is the default lifetime of a cached engine plan.
const TTLEngine = 30 * 24 * time.Hour

// KeyTypeEngine labels engine keys in cache hooks.
const KeyTypeEngine = "engine"

// EngineKeyOpts lists the build settings that change an engine plan.
type EngineKeyOpts struct {
	OpType           string `json:"op_type"`
	MaxBatchSize     int    `json:"max_batch_size"`
	MaxWorkspaceSize int64  `json:"max_workspace_size"`
	Debug            bool   `json:"debug"`
	Builder          string `json:"builder"`
}

// Keyer builds cache keys.
type Keyer interface {
	// EngineKey returns the key of the engine built from the model whose
	// content hash is modelHash.
	EngineKey(modelHash string, opts EngineKeyOpts) string
}

// DefaultKeyer builds unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a [DefaultKeyer].
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// EngineKey returns "engine:<sha256>" over the model hash and options.
func (DefaultKeyer) EngineKey(modelHash string, opts EngineKeyOpts) string {
	return hashKey("engine", modelHash, opts)
}

// Ensure DefaultKeyer implements Keyer.
var _ Keyer = DefaultKeyer{}
