package gate

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"membergate/internal/metrics"
	"membergate/lib/sl"
)

// DeepLinkVerifyPrefix is the payload prefix of personal verification deep
// links: "verify_<userId>". The embedded id binds the link to one user;
// the /start handler refuses a click from anyone else.
const DeepLinkVerifyPrefix = "verify_"

// VerifyPayload builds the deep link payload for a user.
func VerifyPayload(userId int64) string {
	return fmt.Sprintf("%s%d", DeepLinkVerifyPrefix, userId)
}

// VerificationGate enforces the one-time identity gate.
//
// State machine per (chat, user): UNSEEN → PENDING → {VERIFIED, EXPIRED}.
// On join of an unverified user: mute, arm a TTL-bound pending record,
// prompt with a personal deep link, and schedule a deferred ban at the
// deadline. The deferred check carries identifiers only and re-reads the
// stored state at fire time; a record re-armed or verified in the interim
// makes it a no-op. Completing verification anywhere clears every pending
// record for the user.
type VerificationGate struct {
	log      *slog.Logger
	store    Store
	platform Platform

	ttl         time.Duration
	promptFade  time.Duration
	confirmFade time.Duration

	now   func() time.Time
	after func(d time.Duration, f func())
}

func NewVerificationGate(log *slog.Logger, store Store, platform Platform, ttl, promptFade, confirmFade time.Duration) *VerificationGate {
	return &VerificationGate{
		log:         log.With(sl.Module("gate.verification")),
		store:       store,
		platform:    platform,
		ttl:         ttl,
		promptFade:  promptFade,
		confirmFade: confirmFade,
		now:         time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Admit runs the gate for a join. Returns true when the user already has a
// confirmed identity; otherwise arms (or re-arms) the pending record,
// restricts the user and returns false. Re-joining before the deadline
// resets the deadline rather than stacking a second record, so a
// leave/rejoin buys at most one fresh TTL cycle.
func (g *VerificationGate) Admit(chatId, userId int64) bool {
	user, err := g.store.GetUser(userId)
	if err != nil {
		g.log.Warn("loading user", sl.User(userId), sl.Err(err))
	}
	if user != nil && user.HasIdentity() {
		return true
	}

	logger := g.log.With(sl.Chat(chatId), sl.User(userId))

	if err = g.platform.RestrictMessaging(chatId, userId, false); err != nil {
		logger.Warn("restricting unverified user", sl.Err(err))
	}

	deadline := g.now().Add(g.ttl)
	if err = g.store.UpsertPending(chatId, userId, deadline); err != nil {
		logger.Error("arming pending verification", sl.Err(err))
	}
	metrics.VerificationPrompts.Inc()

	g.sendPrompt(chatId, userId)
	g.scheduleExpiry(chatId, userId, deadline)

	logger.Info("verification pending", slog.Time("deadline", deadline))
	return false
}

func (g *VerificationGate) sendPrompt(chatId, userId int64) {
	actions := []Action{{
		Label: "Verify me",
		URL:   g.platform.DeepLink(VerifyPayload(userId)),
	}}
	text := fmt.Sprintf(
		"Please verify your identity within %d seconds to chat here.",
		int(g.ttl.Seconds()),
	)

	msgId, err := g.platform.SendDirect(userId, text, actions)
	promptChat := userId
	if err != nil {
		// user has never opened a private chat with the bot
		g.log.Debug("dm prompt failed, posting in chat", sl.User(userId), sl.Err(err))
		msgId, err = g.platform.SendChat(chatId, text, actions)
		promptChat = chatId
	}
	if err != nil {
		g.log.Warn("sending verification prompt", sl.Chat(chatId), sl.User(userId), sl.Err(err))
		return
	}

	// the prompt fades regardless of the outcome
	g.after(g.promptFade, func() {
		if delErr := g.platform.DeleteMessage(promptChat, msgId); delErr != nil {
			g.log.Debug("deleting verification prompt", sl.Chat(promptChat), sl.Err(delErr))
		}
	})
}

// scheduleExpiry arms the deferred ban. The timer captures the deadline it
// was armed for; at fire time the current record decides.
func (g *VerificationGate) scheduleExpiry(chatId, userId int64, deadline time.Time) {
	g.after(deadline.Sub(g.now()), func() {
		g.expire(chatId, userId, deadline)
	})
}

func (g *VerificationGate) expire(chatId, userId int64, armed time.Time) {
	logger := g.log.With(sl.Chat(chatId), sl.User(userId))

	pending, err := g.store.GetPending(chatId, userId)
	if err != nil {
		logger.Warn("reading pending record at expiry", sl.Err(err))
		return
	}
	if pending == nil || pending.Verified {
		return
	}
	// millisecond compare: BSON DateTime drops sub-ms precision, so the
	// stored deadline never equals the armed one exactly
	if pending.Deadline.UnixMilli() != armed.UnixMilli() {
		// re-armed since this timer was set; the newer timer owns it
		return
	}
	if pending.Deadline.After(g.now()) {
		return
	}

	status, statusErr := g.platform.MemberStatus(strconv.FormatInt(chatId, 10), userId)
	if statusErr == nil && status.IsGone() {
		// already removed, by a duplicate timer or otherwise
		return
	}

	if err = g.platform.BanUser(chatId, userId); err != nil {
		logger.Warn("banning expired user", sl.Err(err))
		return
	}
	metrics.VerificationBans.Inc()
	logger.Info("banned unverified user")
}

// CompleteVerification marks the user verified system-wide, clears every
// pending record in one store operation and restores rights in each
// affected chat. Returns the cleared chat ids.
func (g *VerificationGate) CompleteVerification(userId int64) []int64 {
	chats, err := g.store.MarkVerified(userId, g.now())
	if err != nil {
		g.log.Error("marking user verified", sl.User(userId), sl.Err(err))
		return nil
	}
	if len(chats) > 0 {
		metrics.VerificationCompleted.Inc()
	}

	for _, chatId := range chats {
		logger := g.log.With(sl.Chat(chatId), sl.User(userId))
		if err = g.platform.RestrictMessaging(chatId, userId, true); err != nil {
			logger.Warn("restoring rights", sl.Err(err))
		}

		confirmChat := chatId
		msgId, sendErr := g.platform.SendChat(chatId, "Identity confirmed, welcome aboard.", nil)
		if sendErr != nil {
			logger.Debug("posting confirmation", sl.Err(sendErr))
			continue
		}
		g.after(g.confirmFade, func() {
			if delErr := g.platform.DeleteMessage(confirmChat, msgId); delErr != nil {
				g.log.Debug("deleting confirmation", sl.Chat(confirmChat), sl.Err(delErr))
			}
		})
	}

	g.log.Info("verification completed", sl.User(userId), slog.Int("chats", len(chats)))
	return chats
}
