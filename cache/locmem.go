package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// NewLocMem returns a Cache in the memory of this process.
// If MaxEntries is reached, expired entries are removed first,
// then a third of the entries closest to expiry.
func NewLocMem(opts Options) *LocMem {
	return &LocMem{
		mu:         sync.Mutex{},
		entries:    map[string]entry{},
		key:        keyFunc(opts.KeyPrefix),
		timeout:    timeoutOrDefault(opts.Timeout),
		maxEntries: opts.MaxEntries,
		now:        time.Now,
	}
}

type LocMem struct {
	mu      sync.Mutex
	entries map[string]entry

	key        func(string) string
	timeout    time.Duration
	maxEntries int
	now        func() time.Time
}

type entry struct {
	expiresAt time.Time
	value     []byte
}

var (
	_ Cache  = (*LocMem)(nil)
	_ Culler = (*LocMem)(nil)
)

func (c *LocMem) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[c.key(key)]
	if !ok || !e.expiresAt.After(c.now()) {
		return nil, ErrMiss
	}

	return append([]byte(nil), e.value...), nil
}

func (c *LocMem) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(c.key(key), value, expiresAt(c.now(), ttl, c.timeout))

	return nil
}

func (c *LocMem) set(key string, value []byte, expires time.Time) {
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.cull()
	}

	c.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
}

func (c *LocMem) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, c.key(key))

	return nil
}

func (c *LocMem) Incr(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	k := c.key(key)

	e, ok := c.entries[k]
	if !ok || !e.expiresAt.After(now) {
		c.set(k, []byte(strconv.FormatInt(delta, 10)), expiresAt(now, 0, c.timeout))

		return delta, nil
	}

	val, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
	}

	val += delta
	c.entries[k] = entry{value: []byte(strconv.FormatInt(val, 10)), expiresAt: e.expiresAt}

	return val, nil
}

func (c *LocMem) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]entry{}

	return nil
}

func (c *LocMem) Cull(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeExpired(), nil
}

// Len returns the number of entries, including the expired ones not culled yet.
func (c *LocMem) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *LocMem) removeExpired() int64 {
	now := c.now()

	var n int64

	for k, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, k)
			n++
		}
	}

	return n
}

func (c *LocMem) cull() {
	if c.removeExpired() > 0 && len(c.entries) < c.maxEntries {
		return
	}

	const cullFrequency = 3

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].expiresAt.Before(c.entries[keys[j]].expiresAt)
	})

	n := len(keys)/cullFrequency + 1
	for _, k := range keys[:min(n, len(keys))] {
		delete(c.entries, k)
	}
}
