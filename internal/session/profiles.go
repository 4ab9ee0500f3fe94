package session

import "circles-service/internal/models"

// ProfileCache maps user ids to display profiles. Updates arrive from several
// asynchronous sources with no ordering guarantee, so every write carries a
// logical version taken when its fetch began; a stale fetch can never
// overwrite a newer observation.
type ProfileCache struct {
	entries map[string]profileEntry
	clock   uint64
}

type profileEntry struct {
	profile models.Profile
	version uint64
}

// NewProfileCache creates an empty cache.
func NewProfileCache() *ProfileCache {
	return &ProfileCache{entries: make(map[string]profileEntry)}
}

// NextVersion stamps the start of a fetch. Results of that fetch are applied
// with ObserveAt using this version.
func (c *ProfileCache) NextVersion() uint64 {
	c.clock++
	return c.clock
}

// ObserveAt applies a profile observed by a fetch stamped with version. It is
// ignored when a newer observation already landed.
func (c *ProfileCache) ObserveAt(profile models.Profile, version uint64) bool {
	if entry, ok := c.entries[profile.UserID]; ok && entry.version > version {
		return false
	}
	c.entries[profile.UserID] = profileEntry{profile: profile, version: version}
	return true
}

// Observe applies a profile observed just now (realtime events).
func (c *ProfileCache) Observe(profile models.Profile) {
	c.ObserveAt(profile, c.NextVersion())
}

// Get returns the cached profile for a user.
func (c *ProfileCache) Get(userID string) (models.Profile, bool) {
	entry, ok := c.entries[userID]
	return entry.profile, ok
}

// Missing filters ids down to those not yet cached.
func (c *ProfileCache) Missing(userIDs []string) []string {
	var missing []string
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := c.entries[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Reset drops all state for a group switch.
func (c *ProfileCache) Reset() {
	c.entries = make(map[string]profileEntry)
}
