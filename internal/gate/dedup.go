package gate

import (
	"sync"
	"time"

	"membergate/entity"
)

// Deduper suppresses repeated JOIN or LEAVE signals for the same
// (chat, user) pair inside a trailing window, regardless of which source
// delivered them. JOIN and LEAVE are deduplicated independently: a rapid
// leave-then-rejoin inside the window counts as both.
//
// The check is read-then-write under one lock, which is what gives the
// pipeline its per-(chat, user) ordering guarantee.
type Deduper struct {
	mu     sync.Mutex
	window time.Duration
	last   map[dedupKey]time.Time
}

type dedupKey struct {
	chatId int64
	userId int64
	kind   entity.TransitionKind
}

const dedupPruneSize = 4096

func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{
		window: window,
		last:   make(map[dedupKey]time.Time),
	}
}

// Allow reports whether the transition should be honored, and records it
// if so. A same-kind event inside the window is discarded.
func (d *Deduper) Allow(chatId, userId int64, kind entity.TransitionKind, at time.Time) bool {
	key := dedupKey{chatId: chatId, userId: userId, kind: kind}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.last[key]; ok && at.Sub(prev) < d.window {
		return false
	}
	if len(d.last) >= dedupPruneSize {
		d.prune(at)
	}
	d.last[key] = at
	return true
}

// prune drops entries older than the window. Caller holds the lock.
func (d *Deduper) prune(now time.Time) {
	for k, t := range d.last {
		if now.Sub(t) >= d.window {
			delete(d.last, k)
		}
	}
}
