// Package dedup remembers recently seen event fingerprints.
package dedup

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

const (
	DefaultWindow   = 5 * time.Minute
	DefaultCapacity = 10000
)

type config struct {
	window   time.Duration
	capacity uint64
	mode     logevent.FingerprintMode
}

type Option func(*config)

// WithWindow sets how long a fingerprint is remembered after it was last seen.
func WithWindow(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithCapacity bounds the number of remembered fingerprints. The least
// recently used entry is evicted first.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = uint64(n)
		}
	}
}

func WithMode(m logevent.FingerprintMode) Option {
	return func(c *config) { c.mode = m }
}

// Cache is safe for concurrent use.
type Cache struct {
	items *ttlcache.Cache[string, struct{}]
	mode  logevent.FingerprintMode
}

func New(opts ...Option) *Cache {
	cfg := config{window: DefaultWindow, capacity: DefaultCapacity, mode: logevent.FingerprintExact}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		items: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](cfg.window),
			ttlcache.WithCapacity[string, struct{}](cfg.capacity),
		),
		mode: cfg.mode,
	}
}

// IsDuplicate records e and reports whether its fingerprint was already
// present. A hit extends the entry's expiry.
func (c *Cache) IsDuplicate(e logevent.Event) bool {
	fp := e.Fingerprint(c.mode)
	if fp == "" {
		return false
	}
	_, found := c.items.GetOrSet(fp, struct{}{})
	return found
}

// Start runs the expired-entry janitor until Stop. It blocks, so call it in
// a goroutine.
func (c *Cache) Start() { c.items.Start() }

func (c *Cache) Stop() { c.items.Stop() }

func (c *Cache) Len() int { return c.items.Len() }
