package gate

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"membergate/entity"
	"membergate/internal/metrics"
	"membergate/lib/sl"
)

// Callback data prefixes for recheck buttons. Telegram caps callback data
// at 64 bytes, so the format stays short: "fj:<chatId>:<userId>" and
// "fg:<userId>". The embedded user id scopes the button to one user.
const (
	CallbackRecheckChat   = "fj:"
	CallbackRecheckGlobal = "fg:"
)

func RecheckChatData(chatId, userId int64) string {
	return fmt.Sprintf("%s%d:%d", CallbackRecheckChat, chatId, userId)
}

func RecheckGlobalData(userId int64) string {
	return fmt.Sprintf("%s%d", CallbackRecheckGlobal, userId)
}

func ParseRecheckChat(data string) (chatId, userId int64, ok bool) {
	parts := strings.Split(strings.TrimPrefix(data, CallbackRecheckChat), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	chatId, err1 := strconv.ParseInt(parts[0], 10, 64)
	userId, err2 := strconv.ParseInt(parts[1], 10, 64)
	return chatId, userId, err1 == nil && err2 == nil
}

func ParseRecheckGlobal(data string) (userId int64, ok bool) {
	userId, err := strconv.ParseInt(strings.TrimPrefix(data, CallbackRecheckGlobal), 10, 64)
	return userId, err == nil
}

// ForceJoinGate evaluates users against required external targets.
//
// Chat scope gates membership in that chat: admission must be fast, so the
// check short-circuits on the first missing target. Global scope gates
// every private interaction and enumerates all misses so the prompt is
// complete. A user failing the global check is put behind a standing guard
// that re-renders the prompt instead of routing their DM interactions.
//
// Targets with only an invite URL cannot be queried and always pass the
// membership check; they are still rendered as open actions.
type ForceJoinGate struct {
	log      *slog.Logger
	store    Store
	platform Platform

	mu      sync.RWMutex
	gated   map[int64]bool // users behind the global DM guard
	cleared map[int64]bool // users who passed the global check this process
}

func NewForceJoinGate(log *slog.Logger, store Store, platform Platform) *ForceJoinGate {
	return &ForceJoinGate{
		log:      log.With(sl.Module("gate.forcejoin")),
		store:    store,
		platform: platform,
		gated:    make(map[int64]bool),
		cleared:  make(map[int64]bool),
	}
}

// memberOf resolves live membership in a single target. Query failures
// count as not a member, the same as the platform reporting departure.
func (g *ForceJoinGate) memberOf(target *entity.RequiredTarget, userId int64) bool {
	if !target.Queryable() {
		return true
	}
	status, err := g.platform.MemberStatus(target.Target, userId)
	if err != nil {
		g.log.Debug("membership query failed", slog.String("target", target.Target), sl.User(userId), sl.Err(err))
		return false
	}
	return status.IsActive()
}

// Check evaluates the target set for a scope. With enumerate=false it
// short-circuits on the first miss; with enumerate=true it collects every
// miss. ok is true only when the user holds an active membership in all
// queryable targets.
func (g *ForceJoinGate) Check(scope, userId int64, enumerate bool) (bool, []*entity.RequiredTarget, []*entity.RequiredTarget, error) {
	targets, err := g.store.ListTargets(scope)
	if err != nil {
		return false, nil, nil, fmt.Errorf("listing required targets: %w", err)
	}
	if len(targets) == 0 {
		return true, nil, nil, nil
	}

	var missing []*entity.RequiredTarget
	for _, target := range targets {
		if g.memberOf(target, userId) {
			continue
		}
		missing = append(missing, target)
		if !enumerate {
			break
		}
	}
	return len(missing) == 0, missing, targets, nil
}

// EnforceChat gates a user joining a chat. On failure: mute, prompt with
// every target's open action plus a recheck button scoped to this
// (chat, user), prefer DM with an in-chat fallback. Returns true when the
// user may participate.
func (g *ForceJoinGate) EnforceChat(chatId, userId int64, chatTitle string) bool {
	ok, _, targets, err := g.Check(chatId, userId, false)
	if err != nil {
		g.log.Warn("force-join check", sl.Chat(chatId), sl.User(userId), sl.Err(err))
		return true // never lock users out on our own failure
	}
	if ok {
		return true
	}
	metrics.ForceJoinBlocked.WithLabelValues("chat").Inc()

	logger := g.log.With(sl.Chat(chatId), sl.User(userId))
	if err = g.platform.RestrictMessaging(chatId, userId, false); err != nil {
		logger.Warn("muting gated user", sl.Err(err))
	}

	actions := g.promptActions(targets, RecheckChatData(chatId, userId))
	text := fmt.Sprintf("To chat in %s you must first join the required channels below.", chatTitle)
	if _, err = g.platform.SendDirect(userId, text, actions); err != nil {
		logger.Debug("dm prompt failed, posting in chat", sl.Err(err))
		if _, err = g.platform.SendChat(chatId, text, actions); err != nil {
			logger.Warn("sending force-join prompt", sl.Err(err))
		}
	}

	logger.Info("user gated on required targets", slog.Int("targets", len(targets)))
	return false
}

// EnforceGlobal gates a private interaction. On failure the standing DM
// guard is armed and the full prompt rendered; on success the guard drops.
func (g *ForceJoinGate) EnforceGlobal(userId int64) bool {
	ok, _, targets, err := g.Check(entity.ScopeGlobal, userId, true)
	if err != nil {
		g.log.Warn("global force-join check", sl.User(userId), sl.Err(err))
		return true
	}
	if ok {
		g.disarmGuard(userId)
		return true
	}
	metrics.ForceJoinBlocked.WithLabelValues("global").Inc()
	g.armGuard(userId)

	actions := g.promptActions(targets, RecheckGlobalData(userId))
	if _, err = g.platform.SendDirect(userId, "Please join the required channels to continue.", actions); err != nil {
		g.log.Warn("sending global gate prompt", sl.User(userId), sl.Err(err))
	}
	return false
}

// RecheckChat is the idempotent (chat, user) recheck action. On success
// the user's full permissions are restored.
func (g *ForceJoinGate) RecheckChat(chatId, userId int64) bool {
	ok, _, _, err := g.Check(chatId, userId, false)
	if err != nil {
		g.log.Warn("rechecking chat gate", sl.Chat(chatId), sl.User(userId), sl.Err(err))
		return false
	}
	if !ok {
		return false
	}
	if err = g.platform.RestrictMessaging(chatId, userId, true); err != nil {
		g.log.Warn("unmuting after recheck", sl.Chat(chatId), sl.User(userId), sl.Err(err))
	}
	metrics.ForceJoinCleared.WithLabelValues("chat").Inc()
	g.log.Info("chat gate cleared", sl.Chat(chatId), sl.User(userId))
	return true
}

// RecheckGlobal re-evaluates the global set; on success the guard stops
// intercepting and the caller proceeds to whatever the user wanted.
func (g *ForceJoinGate) RecheckGlobal(userId int64) bool {
	ok, _, _, err := g.Check(entity.ScopeGlobal, userId, true)
	if err != nil {
		g.log.Warn("rechecking global gate", sl.User(userId), sl.Err(err))
		return false
	}
	if !ok {
		return false
	}
	g.disarmGuard(userId)
	metrics.ForceJoinCleared.WithLabelValues("global").Inc()
	g.log.Info("global gate cleared", sl.User(userId))
	return true
}

// EnsureGlobal is the guard's entry point for a private interaction.
// Gated users get the prompt re-rendered; users this process has not yet
// seen are re-evaluated live, so a restart does not silently release
// anyone. A pass is cached for the process lifetime. Returns true when
// the interaction may proceed.
func (g *ForceJoinGate) EnsureGlobal(userId int64) bool {
	g.mu.RLock()
	gated, cleared := g.gated[userId], g.cleared[userId]
	g.mu.RUnlock()

	if gated {
		g.RenderGlobalPrompt(userId)
		return false
	}
	if cleared {
		return true
	}
	return g.EnforceGlobal(userId)
}

// GloballyGated reports whether the standing DM guard holds the user.
func (g *ForceJoinGate) GloballyGated(userId int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gated[userId]
}

// RenderGlobalPrompt re-sends the gate prompt to an intercepted user.
func (g *ForceJoinGate) RenderGlobalPrompt(userId int64) {
	targets, err := g.store.ListTargets(entity.ScopeGlobal)
	if err != nil || len(targets) == 0 {
		g.disarmGuard(userId)
		return
	}
	actions := g.promptActions(targets, RecheckGlobalData(userId))
	if _, err = g.platform.SendDirect(userId, "Please join the required channels to continue.", actions); err != nil {
		g.log.Warn("re-rendering gate prompt", sl.User(userId), sl.Err(err))
	}
}

func (g *ForceJoinGate) armGuard(userId int64) {
	g.mu.Lock()
	g.gated[userId] = true
	delete(g.cleared, userId)
	g.mu.Unlock()
}

func (g *ForceJoinGate) disarmGuard(userId int64) {
	g.mu.Lock()
	delete(g.gated, userId)
	g.cleared[userId] = true
	g.mu.Unlock()
}

// promptActions renders one open action per target plus the recheck
// button on top, mirroring the keyboard layout users already know.
func (g *ForceJoinGate) promptActions(targets []*entity.RequiredTarget, recheckData string) []Action {
	actions := make([]Action, 0, len(targets)+1)
	actions = append(actions, Action{Label: "I joined", Callback: recheckData})
	for _, target := range targets {
		url := target.OpenURL()
		if url == "" {
			continue
		}
		actions = append(actions, Action{Label: "Open " + target.Label(), URL: url})
	}
	return actions
}
