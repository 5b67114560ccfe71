// Package flood limits how many requests one user may send per minute.
package flood

import (
	"context"
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window for flood detection
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle entries are dropped
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long an entry may stay unused before it is dropped
	idleTimeout = 10 * time.Minute
)

// Floodgate is a per-user, per-chat sliding window limiter. A limit of zero
// or less blocks everything.
type Floodgate struct {
	limitPerMinute int
	entries        map[string]*userEntry // Key: "chatID:userID"
	mutex          sync.Mutex
	now            func() time.Time
}

type userEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

func New(limitPerMinute int) *Floodgate {
	return &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*userEntry),
		now:            time.Now,
	}
}

// Allow records a request from userID in chatID. When the user is over the
// limit it returns false and how long until the oldest request leaves the
// window.
func (fg *Floodgate) Allow(chatID, userID string) (bool, time.Duration) {
	if fg.limitPerMinute <= 0 {
		return false, windowDuration
	}

	key := chatID + ":" + userID
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[key]
	if !exists {
		entry = &userEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= fg.limitPerMinute {
		retryAfter := entry.timestamps[0].Add(windowDuration).Sub(now)
		return false, max(retryAfter, time.Second)
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, 0
}

// Run drops idle entries until ctx is done.
func (fg *Floodgate) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-ctx.Done():
			return nil
		}
	}
}

func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// GetStats returns statistics about the floodgate for monitoring/debugging
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveUsers:    len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics
type Stats struct {
	ActiveUsers    int `json:"active_users"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
