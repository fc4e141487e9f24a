package alerting

import (
	"context"
	"sync"
	"time"
)

// pruneInterval bounds how often idle windows and lapsed suppression markers
// are swept out of the maps.
const pruneInterval = time.Minute

// MemoryWindow implements WindowStore in process. Suitable for a single
// instance; use RedisWindow when several instances share the alert state.
type MemoryWindow struct {
	mu         sync.Mutex
	windows    map[string]*slidingWindow
	suppressed map[string]time.Time
	nextPrune  time.Time
}

type slidingWindow struct {
	entries []windowEntry
	window  time.Duration
}

type windowEntry struct {
	member string
	at     time.Time
}

// add records member, replacing an earlier entry with the same member, then
// drops everything at or before the cutoff.
func (sw *slidingWindow) add(member string, at time.Time, window time.Duration) int {
	cutoff := at.Add(-window)
	kept := sw.entries[:0]
	for _, e := range sw.entries {
		if e.member == member || !e.at.After(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	sw.entries = append(kept, windowEntry{member: member, at: at})
	sw.window = window
	return len(sw.entries)
}

// idle reports whether every entry has aged out of the window by now.
func (sw *slidingWindow) idle(now time.Time) bool {
	cutoff := now.Add(-sw.window)
	for _, e := range sw.entries {
		if e.at.After(cutoff) {
			return false
		}
	}
	return true
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{
		windows:    make(map[string]*slidingWindow),
		suppressed: make(map[string]time.Time),
	}
}

func (m *MemoryWindow) Add(_ context.Context, key, member string, at time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(at)
	sw, ok := m.windows[key]
	if !ok {
		sw = &slidingWindow{}
		m.windows[key] = sw
	}
	return sw.add(member, at, window), nil
}

func (m *MemoryWindow) TrySuppress(_ context.Context, key string, ttl time.Duration, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	if until, ok := m.suppressed[key]; ok && now.Before(until) {
		return false, nil
	}
	m.suppressed[key] = now.Add(ttl)
	return true, nil
}

// pruneLocked drops windows with no live entries and suppression markers that
// have lapsed. It runs at most once per pruneInterval.
func (m *MemoryWindow) pruneLocked(now time.Time) {
	if now.Before(m.nextPrune) {
		return
	}
	m.nextPrune = now.Add(pruneInterval)
	for key, sw := range m.windows {
		if sw.idle(now) {
			delete(m.windows, key)
		}
	}
	for key, until := range m.suppressed {
		if !now.Before(until) {
			delete(m.suppressed, key)
		}
	}
}
