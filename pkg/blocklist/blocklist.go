// Package blocklist keeps the in-memory set of blocked client IPs, each with
// its own TTL.
package blocklist

import (
	"net"
	"sort"
	"sync"
	"time"
)

// TTL bounds for a block, in seconds.
const (
	MinTTLSeconds = 1
	MaxTTLSeconds = 30 * 86400
)

// entry holds a block with its expiry.
type entry struct {
	expiresAt time.Time
}

// Blocklist is a thread-safe IP blocklist with per-entry TTL expiration.
// Expired entries are cleaned up lazily on read; there is no background
// goroutine.
type Blocklist struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty blocklist.
func New() *Blocklist {
	return &Blocklist{entries: make(map[string]*entry)}
}

// Block adds ip for ttl. Returns false when ip is not a valid address or ttl
// is out of bounds.
func (b *Blocklist) Block(ip string, ttlSeconds int) bool {
	if net.ParseIP(ip) == nil {
		return false
	}
	if ttlSeconds < MinTTLSeconds || ttlSeconds > MaxTTLSeconds {
		return false
	}
	b.mu.Lock()
	b.entries[ip] = &entry{expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second)}
	b.mu.Unlock()
	return true
}

// IsBlocked reports whether ip has an unexpired block.
func (b *Blocklist) IsBlocked(ip string) bool {
	b.mu.RLock()
	e, ok := b.entries[ip]
	b.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(e.expiresAt) {
		// Re-check under the write lock: a concurrent Block() may have
		// refreshed the entry.
		b.mu.Lock()
		if current, ok := b.entries[ip]; ok && time.Now().After(current.expiresAt) {
			delete(b.entries, ip)
		}
		b.mu.Unlock()
		return false
	}
	return true
}

// List returns the currently blocked IPs, sorted, dropping expired entries.
func (b *Blocklist) List() []string {
	now := time.Now()

	b.mu.Lock()
	ips := make([]string, 0, len(b.entries))
	for ip, e := range b.entries {
		if now.After(e.expiresAt) {
			delete(b.entries, ip)
			continue
		}
		ips = append(ips, ip)
	}
	b.mu.Unlock()

	sort.Strings(ips)
	return ips
}
