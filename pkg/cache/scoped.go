package cache

// ScopedKeyer wraps a Keyer with a prefix so that several tenants can share
// one cache backend without seeing each other's engines.
//
// Example usage:
//
//	// Engines built for one device class
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "sm_86:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// EngineKey generates a prefixed key for engine caching.
func (k *ScopedKeyer) EngineKey(modelHash string, opts EngineKeyOpts) string {
	return k.prefix + k.inner.EngineKey(modelHash, opts)
}
