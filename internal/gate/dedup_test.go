package gate

import (
	"testing"
	"time"

	"membergate/entity"
)

func TestDeduperSuppressesRepeatsInsideWindow(t *testing.T) {
	d := NewDeduper(5 * time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !d.Allow(10, 20, entity.TransitionJoin, base) {
		t.Fatal("first join must be allowed")
	}
	if d.Allow(10, 20, entity.TransitionJoin, base.Add(30*time.Second)) {
		t.Error("repeat join inside window must be suppressed")
	}
	if d.Allow(10, 20, entity.TransitionJoin, base.Add(4*time.Minute)) {
		t.Error("repeat join still inside window must be suppressed")
	}
	if !d.Allow(10, 20, entity.TransitionJoin, base.Add(5*time.Minute)) {
		t.Error("join after window must be allowed")
	}
}

func TestDeduperKindsAreIndependent(t *testing.T) {
	d := NewDeduper(5 * time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !d.Allow(10, 20, entity.TransitionJoin, base) {
		t.Fatal("join must be allowed")
	}
	if !d.Allow(10, 20, entity.TransitionLeave, base.Add(time.Second)) {
		t.Error("leave right after join must be allowed, kinds dedup independently")
	}
	if !d.Allow(10, 20, entity.TransitionJoin, base.Add(5*time.Minute)) {
		t.Error("rejoin after window must be allowed")
	}
}

func TestDeduperKeyedByChatAndUser(t *testing.T) {
	d := NewDeduper(5 * time.Minute)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.Allow(10, 20, entity.TransitionJoin, base)
	if !d.Allow(11, 20, entity.TransitionJoin, base) {
		t.Error("same user in another chat must be allowed")
	}
	if !d.Allow(10, 21, entity.TransitionJoin, base) {
		t.Error("another user in same chat must be allowed")
	}
}
