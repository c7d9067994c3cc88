// Package hostcache holds the resolver's answer to "what does this hostname
// resolve to": a map from FQDN to a cloned set of records, loaded once at
// startup from Kubernetes ingress listings and static host files, and
// consulted on every DNS query ahead of any upstream forward.
package hostcache

import (
	"sync"
	"time"

	"github.com/hydraproxy/ingressproxy/internal/dns"
)

// Entry is one cached answer: the records to return for a name, and when
// they stop being valid.
type Entry struct {
	Records   []dns.Record
	ExpiresAt time.Time
}

// clone returns a value copy of e. Record is itself a plain value type, so
// copying the slice is sufficient — no field holds a pointer or map.
func (e Entry) clone() Entry {
	records := make([]dns.Record, len(e.Records))
	copy(records, e.Records)
	return Entry{Records: records, ExpiresAt: e.ExpiresAt}
}

// Cache is a thread-safe FQDN to Entry map. Names are matched exactly as
// stored; callers are responsible for passing normalized (lowercase,
// trailing-dot-stripped) names, which is what dns.Question.Name already is.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	// now is overridden in tests to exercise exact expiry boundaries;
	// production code always leaves it nil and falls back to time.Now.
	now func() time.Time
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

func (c *Cache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Find returns a clone of the cached entry for fqdn, and whether it was
// present and unexpired. An entry whose ExpiresAt is now or earlier is
// treated as expired and removed before Find returns.
func (c *Cache) Find(fqdn string) (Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fqdn]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}
	if !entry.ExpiresAt.After(c.clock()) {
		c.mu.Lock()
		delete(c.entries, fqdn)
		c.mu.Unlock()
		return Entry{}, false
	}
	return entry.clone(), true
}

// Save inserts or overwrites the entry for fqdn, with an expiry computed
// from the maximum TTL among records.
func (c *Cache) Save(fqdn string, records []dns.Record) {
	var maxTTL uint32
	for _, r := range records {
		if r.TTL > maxTTL {
			maxTTL = r.TTL
		}
	}

	stored := make([]dns.Record, len(records))
	copy(stored, records)

	c.mu.Lock()
	c.entries[fqdn] = Entry{
		Records:   stored,
		ExpiresAt: c.clock().Add(time.Duration(maxTTL) * time.Second),
	}
	c.mu.Unlock()
}

// Len reports the current number of cached entries, for the status API.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of every cached name and its expiry, for the
// status API's /cache listing. It does not clone record payloads.
func (c *Cache) Snapshot() map[string]time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]time.Time, len(c.entries))
	for name, entry := range c.entries {
		out[name] = entry.ExpiresAt
	}
	return out
}
