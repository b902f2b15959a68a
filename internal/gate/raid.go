package gate

import (
	"sync"
	"time"

	"membergate/internal/metrics"
)

// RaidClass separates the two independent event streams a raid can arrive
// on: direct joins and join requests. Each (chat, class) pair has its own
// window and cooldown.
type RaidClass string

const (
	ClassJoin    RaidClass = "join"
	ClassRequest RaidClass = "request"
)

// RaidDetector is a per-(chat, class) sliding-window counter. When the
// window fills to the threshold the chat enters raid mode for a fixed
// cooldown; while armed, every call reports raid mode regardless of the
// current rate. State is process-local and lost on restart, which is
// acceptable: it suppresses abuse, it does not gate correctness.
type RaidDetector struct {
	window    time.Duration
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	hist  map[raidKey][]time.Time
	until map[raidKey]time.Time
}

type raidKey struct {
	chatId int64
	class  RaidClass
}

func NewRaidDetector(window time.Duration, threshold int, cooldown time.Duration, now func() time.Time) *RaidDetector {
	if now == nil {
		now = time.Now
	}
	return &RaidDetector{
		window:    window,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		hist:      make(map[raidKey][]time.Time),
		until:     make(map[raidKey]time.Time),
	}
}

// RecordAndCheck registers one event and reports whether the chat is in
// raid mode, including on the event that just tripped it.
func (r *RaidDetector) RecordAndCheck(chatId int64, class RaidClass) bool {
	key := raidKey{chatId: chatId, class: class}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.until[key].After(now) {
		return true
	}

	hist := append(r.hist[key], now)
	cutoff := now.Add(-r.window)
	trimmed := hist[:0]
	for _, t := range hist {
		if !t.Before(cutoff) {
			trimmed = append(trimmed, t)
		}
	}
	r.hist[key] = trimmed

	if len(trimmed) >= r.threshold {
		r.until[key] = now.Add(r.cooldown)
		metrics.RaidsTriggered.WithLabelValues(string(class)).Inc()
		return true
	}
	return false
}

// InRaidMode reports raid state without recording an event.
func (r *RaidDetector) InRaidMode(chatId int64, class RaidClass) bool {
	key := raidKey{chatId: chatId, class: class}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.until[key].After(r.now())
}
