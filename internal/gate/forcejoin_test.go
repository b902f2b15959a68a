package gate

import (
	"testing"

	"membergate/entity"
)

func addTarget(store *fakeStore, scope int64, target, joinURL string) {
	store.targets[scope] = append(store.targets[scope], &entity.RequiredTarget{
		ChatId:  scope,
		Target:  target,
		JoinURL: joinURL,
	})
}

func TestEnforceChatPassesWithoutTargets(t *testing.T) {
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), newFakeStore(), platform)

	if !g.EnforceChat(10, 20, "Chat") {
		t.Fatal("no targets means no gate")
	}
	if len(platform.restrictions()) != 0 {
		t.Error("nothing must be restricted")
	}
}

func TestEnforceChatPassesMember(t *testing.T) {
	store := newFakeStore()
	addTarget(store, 10, "@news", "")
	platform := newFakePlatform()
	platform.statuses["@news"] = entity.StatusMember
	g := NewForceJoinGate(testLogger(), store, platform)

	if !g.EnforceChat(10, 20, "Chat") {
		t.Fatal("member of every target must pass")
	}
}

func TestEnforceChatGatesMissingMembership(t *testing.T) {
	store := newFakeStore()
	addTarget(store, 10, "@news", "")
	addTarget(store, 10, "@offers", "")
	platform := newFakePlatform()
	platform.statuses["@news"] = entity.StatusMember
	platform.statuses["@offers"] = entity.StatusLeft
	g := NewForceJoinGate(testLogger(), store, platform)

	if g.EnforceChat(10, 20, "Chat") {
		t.Fatal("user missing a target must be gated")
	}

	restricted := platform.restrictions()
	if len(restricted) != 1 || restricted[0].allowed {
		t.Fatalf("user must be muted, got %+v", restricted)
	}

	if len(platform.direct) != 1 {
		t.Fatalf("one DM prompt expected, got %d", len(platform.direct))
	}
	actions := platform.direct[0].actions
	// recheck button plus one open action per target
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %+v", actions)
	}
	if actions[0].Callback != RecheckChatData(10, 20) {
		t.Errorf("first action must be the recheck button, got %+v", actions[0])
	}
}

func TestEnforceChatAllOrNothing(t *testing.T) {
	// restricted membership still counts; only departure gates
	store := newFakeStore()
	addTarget(store, 10, "@news", "")
	platform := newFakePlatform()
	platform.statuses["@news"] = entity.StatusRestricted
	g := NewForceJoinGate(testLogger(), store, platform)

	if !g.EnforceChat(10, 20, "Chat") {
		t.Fatal("restricted member still belongs to the target")
	}
}

func TestEnforceChatUnqueryableTargetAlwaysPasses(t *testing.T) {
	store := newFakeStore()
	addTarget(store, 10, "https://t.me/+secretcode", "")
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	if !g.EnforceChat(10, 20, "Chat") {
		t.Fatal("invite-URL-only target cannot be checked and must pass")
	}
}

func TestEnforceChatFailsOpenOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.failTargets = true
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	if !g.EnforceChat(10, 20, "Chat") {
		t.Fatal("a store failure must never lock users out")
	}
}

func TestRecheckChatRestoresRights(t *testing.T) {
	store := newFakeStore()
	addTarget(store, 10, "@news", "")
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	g.EnforceChat(10, 20, "Chat")

	if g.RecheckChat(10, 20) {
		t.Fatal("recheck before joining must fail")
	}

	platform.statuses["@news"] = entity.StatusMember
	if !g.RecheckChat(10, 20) {
		t.Fatal("recheck after joining must pass")
	}

	restricted := platform.restrictions()
	last := restricted[len(restricted)-1]
	if !last.allowed {
		t.Errorf("rights must be restored on success, got %+v", last)
	}
}

func TestEnforceGlobalArmsGuard(t *testing.T) {
	store := newFakeStore()
	addTarget(store, entity.ScopeGlobal, "@main", "")
	addTarget(store, entity.ScopeGlobal, "@second", "")
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	if g.EnforceGlobal(20) {
		t.Fatal("user missing global targets must be gated")
	}
	if !g.GloballyGated(20) {
		t.Fatal("guard must be armed")
	}

	// global prompt enumerates every miss
	if len(platform.direct) != 1 {
		t.Fatalf("one prompt expected, got %d", len(platform.direct))
	}
	if len(platform.direct[0].actions) != 3 {
		t.Errorf("prompt must list the recheck button and both targets, got %+v", platform.direct[0].actions)
	}
}

func TestRecheckGlobalDisarmsGuard(t *testing.T) {
	store := newFakeStore()
	addTarget(store, entity.ScopeGlobal, "@main", "")
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	g.EnforceGlobal(20)
	if g.RecheckGlobal(20) {
		t.Fatal("recheck before joining must fail")
	}
	if !g.GloballyGated(20) {
		t.Fatal("guard must stay armed after a failed recheck")
	}

	platform.statuses["@main"] = entity.StatusMember
	if !g.RecheckGlobal(20) {
		t.Fatal("recheck after joining must pass")
	}
	if g.GloballyGated(20) {
		t.Error("guard must drop after a successful recheck")
	}
}

func TestRenderGlobalPromptDisarmsWhenTargetsGone(t *testing.T) {
	store := newFakeStore()
	addTarget(store, entity.ScopeGlobal, "@main", "")
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	g.EnforceGlobal(20)

	// operator removed the requirement while the user was gated
	store.targets[entity.ScopeGlobal] = nil
	g.RenderGlobalPrompt(20)

	if g.GloballyGated(20) {
		t.Error("guard must drop when no global targets remain")
	}
}

func TestEnsureGlobalRederivesAfterRestart(t *testing.T) {
	store := newFakeStore()
	addTarget(store, entity.ScopeGlobal, "@main", "")
	platform := newFakePlatform()

	// a fresh gate has no memory of who was gated before
	g := NewForceJoinGate(testLogger(), store, platform)

	if g.EnsureGlobal(20) {
		t.Fatal("user missing the global targets must be gated on first contact")
	}
	if !g.GloballyGated(20) {
		t.Error("the re-derived failure must arm the guard")
	}
	if len(platform.direct) != 1 {
		t.Errorf("one prompt expected, got %d", len(platform.direct))
	}
}

func TestEnsureGlobalRerendersForGatedUser(t *testing.T) {
	store := newFakeStore()
	addTarget(store, entity.ScopeGlobal, "@main", "")
	platform := newFakePlatform()
	g := NewForceJoinGate(testLogger(), store, platform)

	g.EnforceGlobal(20)
	if g.EnsureGlobal(20) {
		t.Fatal("gated user must stay intercepted")
	}
	if len(platform.direct) != 2 {
		t.Errorf("prompt must be re-rendered, got %d messages", len(platform.direct))
	}
}

func TestEnsureGlobalCachesPass(t *testing.T) {
	store := newFakeStore()
	addTarget(store, entity.ScopeGlobal, "@main", "")
	platform := newFakePlatform()
	platform.statuses["@main"] = entity.StatusMember
	g := NewForceJoinGate(testLogger(), store, platform)

	if !g.EnsureGlobal(20) {
		t.Fatal("member of every target must pass")
	}

	platform.statuses["@main"] = entity.StatusLeft
	if !g.EnsureGlobal(20) {
		t.Error("a pass holds for the process lifetime without re-querying")
	}
}
