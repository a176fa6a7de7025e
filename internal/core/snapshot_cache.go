package core

import (
	"time"

	"featurecore/pkg/domain"

	gocache "github.com/patrickmn/go-cache"
)

// SnapshotCache keeps recently read registry snapshots per project. A zero
// TTL disables caching.
type SnapshotCache struct {
	cache *gocache.Cache
}

// NewSnapshotCache returns a cache expiring entries after ttl.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		return &SnapshotCache{}
	}
	return &SnapshotCache{cache: gocache.New(ttl, 2*ttl)}
}

// Get returns a copy of the cached snapshot of project.
func (c *SnapshotCache) Get(project string) (Snapshot, bool) {
	if c == nil || c.cache == nil {
		return Snapshot{}, false
	}
	v, ok := c.cache.Get(project)
	if !ok {
		return Snapshot{}, false
	}
	snap := v.(Snapshot)
	return copySnapshot(snap), true
}

// Set stores a copy of snap.
func (c *SnapshotCache) Set(snap Snapshot) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.SetDefault(snap.Project.Name, copySnapshot(snap))
}

// Invalidate drops the snapshot of project.
func (c *SnapshotCache) Invalidate(project string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Delete(project)
}

func copySnapshot(s Snapshot) Snapshot {
	entries := make([]RegistryEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		entries = append(entries, e)
	}
	return domain.NewSnapshot(s.Project, entries)
}
