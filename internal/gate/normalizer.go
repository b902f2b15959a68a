package gate

import (
	"log/slog"
	"sync"
	"time"

	"membergate/entity"
	"membergate/lib/sl"
)

// Normalizer converts raw membership signals into canonical transitions.
//
// Two signal sources exist for the same logical event: authoritative
// per-update member transitions, and degraded service messages delivered
// only for chats where the former is unavailable. Once a chat has produced
// one authoritative signal, fallback signals for it are ignored for good;
// the marker is persisted so a restart does not resurrect double counting.
type Normalizer struct {
	log   *slog.Logger
	store Store

	mu   sync.RWMutex
	seen map[int64]bool // chats with an authoritative signal observed
}

func NewNormalizer(log *slog.Logger, store Store) *Normalizer {
	return &Normalizer{
		log:   log.With(sl.Module("gate.normalizer")),
		store: store,
		seen:  make(map[int64]bool),
	}
}

// FromStatusChange classifies an authoritative (old, new) status pair.
// JOIN: new active, old not active. LEAVE: new departed, old active.
// Anything else returns nil and is ignored.
func (n *Normalizer) FromStatusChange(chatId, userId int64, oldRaw, newRaw string, at time.Time, inviteRef string) *entity.MembershipTransition {
	n.markAuthoritative(chatId)

	oldStatus := entity.NormalizeStatus(oldRaw)
	newStatus := entity.NormalizeStatus(newRaw)

	if newStatus.IsActive() && !oldStatus.IsActive() {
		return &entity.MembershipTransition{
			ChatId:     chatId,
			UserId:     userId,
			Kind:       entity.TransitionJoin,
			Source:     entity.SourceAuthoritative,
			OccurredAt: at,
			InviteRef:  inviteRef,
		}
	}
	if newStatus.IsGone() && oldStatus.IsActive() {
		return &entity.MembershipTransition{
			ChatId:     chatId,
			UserId:     userId,
			Kind:       entity.TransitionLeave,
			Source:     entity.SourceAuthoritative,
			OccurredAt: at,
		}
	}
	return nil
}

// FromServiceEvent builds a transition from a degraded service-message
// signal. Returns nil when the chat is known to emit authoritative updates.
func (n *Normalizer) FromServiceEvent(chatId, userId int64, kind entity.TransitionKind, at time.Time) *entity.MembershipTransition {
	if n.authoritativeSeen(chatId) {
		n.log.Debug("fallback signal ignored", sl.Chat(chatId), sl.User(userId))
		return nil
	}
	return &entity.MembershipTransition{
		ChatId:     chatId,
		UserId:     userId,
		Kind:       kind,
		Source:     entity.SourceFallback,
		OccurredAt: at,
	}
}

func (n *Normalizer) markAuthoritative(chatId int64) {
	n.mu.RLock()
	known := n.seen[chatId]
	n.mu.RUnlock()
	if known {
		return
	}

	n.mu.Lock()
	n.seen[chatId] = true
	n.mu.Unlock()

	if err := n.store.MarkMemberUpdatesSeen(chatId); err != nil {
		n.log.Warn("persisting authoritative marker", sl.Chat(chatId), sl.Err(err))
	}
}

func (n *Normalizer) authoritativeSeen(chatId int64) bool {
	n.mu.RLock()
	known := n.seen[chatId]
	n.mu.RUnlock()
	if known {
		return true
	}

	seen, err := n.store.MemberUpdatesSeen(chatId)
	if err != nil {
		n.log.Warn("reading authoritative marker", sl.Chat(chatId), sl.Err(err))
		return false
	}
	if seen {
		n.mu.Lock()
		n.seen[chatId] = true
		n.mu.Unlock()
	}
	return seen
}
