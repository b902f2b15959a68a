package gate

import (
	"strings"
	"testing"
	"time"

	"membergate/entity"
)

const verifyTTL = 2 * time.Minute

func newTestVerification(store *fakeStore, platform *fakePlatform) (*VerificationGate, *manualTimers, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	timers := &manualTimers{}
	g := NewVerificationGate(testLogger(), store, platform, verifyTTL, 130*time.Second, 2*time.Minute)
	g.now = func() time.Time { return now }
	g.after = timers.after
	return g, timers, &now
}

func TestAdmitPassesVerifiedUser(t *testing.T) {
	store := newFakeStore()
	store.users[20] = &entity.User{TelegramId: 20, Phone: "+100200300"}
	platform := newFakePlatform()
	g, timers, _ := newTestVerification(store, platform)

	if !g.Admit(10, 20) {
		t.Fatal("user with confirmed identity must be admitted")
	}
	if len(platform.restrictions()) != 0 {
		t.Error("verified user must not be restricted")
	}
	if len(store.pending) != 0 {
		t.Error("no pending record must be armed")
	}
	if len(timers.queued) != 0 {
		t.Error("no timers must be scheduled")
	}
}

func TestAdmitArmsUnverifiedUser(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	g, timers, now := newTestVerification(store, platform)

	if g.Admit(10, 20) {
		t.Fatal("unverified user must not be admitted")
	}

	restricted := platform.restrictions()
	if len(restricted) != 1 || restricted[0].allowed {
		t.Fatalf("user must be muted, got %+v", restricted)
	}

	pending, _ := store.GetPending(10, 20)
	if pending == nil {
		t.Fatal("pending record must be armed")
	}
	if !pending.Deadline.Equal(now.Add(verifyTTL)) {
		t.Errorf("deadline = %v, want now+ttl", pending.Deadline)
	}

	if len(platform.direct) != 1 {
		t.Fatalf("one DM prompt expected, got %d", len(platform.direct))
	}
	prompt := platform.direct[0]
	if len(prompt.actions) != 1 || !strings.Contains(prompt.actions[0].URL, "verify_20") {
		t.Errorf("prompt must carry a personal deep link, got %+v", prompt.actions)
	}

	// prompt fade and deferred ban
	if len(timers.queued) != 2 {
		t.Errorf("two timers expected, got %d", len(timers.queued))
	}
}

func TestAdmitFallsBackToChatPrompt(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	platform.directErr = errNoDm
	g, _, _ := newTestVerification(store, platform)

	g.Admit(10, 20)

	if len(platform.posted) != 1 {
		t.Fatalf("prompt must fall back to the chat, got %d chat messages", len(platform.posted))
	}
	if platform.posted[0].to != 10 {
		t.Errorf("fallback prompt sent to %d, want chat 10", platform.posted[0].to)
	}
}

func TestExpiryBansUnverifiedUser(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	platform.statuses["10"] = entity.StatusMember
	g, timers, now := newTestVerification(store, platform)

	g.Admit(10, 20)
	*now = now.Add(verifyTTL + time.Second)
	timers.fireAll()

	bans := platform.bans()
	if len(bans) != 1 || bans[0] != (pendingKey{10, 20}) {
		t.Fatalf("expired user must be banned, got %+v", bans)
	}
}

// msStore reads deadlines back at millisecond precision, the way BSON
// DateTime stores them.
type msStore struct{ *fakeStore }

func (s msStore) GetPending(chatId, userId int64) (*entity.PendingVerification, error) {
	pending, err := s.fakeStore.GetPending(chatId, userId)
	if pending != nil {
		pending.Deadline = pending.Deadline.Truncate(time.Millisecond)
	}
	return pending, err
}

func TestExpiryBansWithMillisecondDeadlines(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	platform.statuses["10"] = entity.StatusMember
	timers := &manualTimers{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 987654321, time.UTC)
	g := NewVerificationGate(testLogger(), msStore{store}, platform, verifyTTL, 130*time.Second, 2*time.Minute)
	g.now = func() time.Time { return now }
	g.after = timers.after

	g.Admit(10, 20)
	now = now.Add(verifyTTL + time.Second)
	timers.fireAll()

	if len(platform.bans()) != 1 {
		t.Fatal("a deadline read back at millisecond precision must still ban")
	}
}

func TestExpiryDoubleFireBansOnce(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	platform.statuses["10"] = entity.StatusMember
	g, timers, now := newTestVerification(store, platform)

	g.Admit(10, 20)
	dup := &manualTimers{}
	dup.queued = append(dup.queued, timers.queued...)

	*now = now.Add(verifyTTL + time.Second)
	timers.fireAll()
	platform.statuses["10"] = entity.StatusKicked
	dup.fireAll()

	if len(platform.bans()) != 1 {
		t.Fatalf("duplicate expiry must ban once, got %d bans", len(platform.bans()))
	}
}

func TestExpiryIsNoopAfterRearm(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	platform.statuses["10"] = entity.StatusMember
	g, timers, now := newTestVerification(store, platform)

	g.Admit(10, 20)
	staleTimers := &manualTimers{}
	staleTimers.queued = timers.queued
	timers.queued = nil

	// user leaves and rejoins a minute later: the record is re-armed
	*now = now.Add(time.Minute)
	g.Admit(10, 20)

	// the stale timer fires at its original deadline
	*now = now.Add(verifyTTL - time.Minute + time.Second)
	staleTimers.fireAll()

	if len(platform.bans()) != 0 {
		t.Fatal("a timer armed for a superseded deadline must not ban")
	}

	// the current timer past the new deadline does
	*now = now.Add(time.Minute)
	timers.fireAll()
	if len(platform.bans()) != 1 {
		t.Fatal("the live timer must still ban after the new deadline")
	}
}

func TestExpiryIsNoopAfterVerification(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	g, timers, now := newTestVerification(store, platform)

	g.Admit(10, 20)
	g.CompleteVerification(20)

	*now = now.Add(verifyTTL + time.Second)
	timers.fireAll()

	if len(platform.bans()) != 0 {
		t.Fatal("verified user must not be banned at the old deadline")
	}
}

func TestCompleteVerificationClearsEveryChat(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	g, _, _ := newTestVerification(store, platform)

	g.Admit(10, 20)
	g.Admit(11, 20)

	chats := g.CompleteVerification(20)
	if len(chats) != 2 {
		t.Fatalf("both chats must be cleared, got %v", chats)
	}

	unmuted := map[int64]bool{}
	for _, r := range platform.restrictions() {
		if r.allowed {
			unmuted[r.chatId] = true
		}
	}
	if !unmuted[10] || !unmuted[11] {
		t.Errorf("rights must be restored in both chats, got %v", unmuted)
	}
}

func TestCompleteVerificationIsIdempotent(t *testing.T) {
	store := newFakeStore()
	platform := newFakePlatform()
	g, _, _ := newTestVerification(store, platform)

	g.Admit(10, 20)
	first := g.CompleteVerification(20)
	second := g.CompleteVerification(20)

	if len(first) != 1 {
		t.Fatalf("first completion must clear the chat, got %v", first)
	}
	if len(second) != 0 {
		t.Errorf("second completion must find nothing to clear, got %v", second)
	}
}
