package gate

import (
	"log/slog"
	"time"

	"membergate/entity"
	"membergate/internal/metrics"
	"membergate/lib/clock"
	"membergate/lib/sl"
)

// Config carries the pipeline timings. Zero values are not defaulted here;
// cmd/server maps them from the loaded configuration.
type Config struct {
	DedupWindow   time.Duration
	RaidWindow    time.Duration
	RaidThreshold int
	RaidCooldown  time.Duration
	VerifyTTL     time.Duration
	PromptFade    time.Duration
	ConfirmFade   time.Duration
}

// Pipeline wires the gate components into the admission control flow and owns
// the ledger writes. One HandleTransition call per membership signal;
// calls for different (chat, user) pairs run concurrently on the
// dispatcher pool with no shared state beyond the keyed windows.
type Pipeline struct {
	log      *slog.Logger
	store    Store
	platform Platform

	Normalizer *Normalizer
	Dedup      *Deduper
	Raids      *RaidDetector
	Verify     *VerificationGate
	ForceJoin  *ForceJoinGate
	Campaigns  *Attributor
}

func New(log *slog.Logger, store Store, platform Platform, cfg Config) *Pipeline {
	return &Pipeline{
		log:        log.With(sl.Module("gate.pipeline")),
		store:      store,
		platform:   platform,
		Normalizer: NewNormalizer(log, store),
		Dedup:      NewDeduper(cfg.DedupWindow),
		Raids:      NewRaidDetector(cfg.RaidWindow, cfg.RaidThreshold, cfg.RaidCooldown, nil),
		Verify:     NewVerificationGate(log, store, platform, cfg.VerifyTTL, cfg.PromptFade, cfg.ConfirmFade),
		ForceJoin:  NewForceJoinGate(log, store, platform),
		Campaigns:  NewAttributor(log, store),
	}
}

// ObserveChat records a chat sighting. Best effort: downstream writes do
// not depend on it succeeding.
func (p *Pipeline) ObserveChat(chat entity.Chat) {
	if err := p.store.EnsureChat(chat); err != nil {
		p.log.Warn("ensuring chat row", sl.Chat(chat.TelegramId), sl.Err(err))
	}
}

// HandleTransition runs one canonical transition through the gates.
// chatTitle feeds the prompts; pass "" when unknown.
func (p *Pipeline) HandleTransition(tr *entity.MembershipTransition, chatTitle string) {
	if tr == nil {
		return
	}
	logger := p.log.With(sl.Chat(tr.ChatId), sl.User(tr.UserId), slog.String("kind", string(tr.Kind)))

	if !p.Dedup.Allow(tr.ChatId, tr.UserId, tr.Kind, tr.OccurredAt) {
		metrics.DuplicatesSuppressed.Inc()
		logger.Debug("duplicate transition suppressed", slog.String("source", string(tr.Source)))
		return
	}

	switch tr.Kind {
	case entity.TransitionJoin:
		p.handleJoin(tr, chatTitle, logger)
	case entity.TransitionLeave:
		p.writeLeave(tr, logger)
	}
}

func (p *Pipeline) handleJoin(tr *entity.MembershipTransition, chatTitle string, logger *slog.Logger) {
	// Abuse suppression dominates onboarding: during a raid the user is
	// removed outright and no later gate runs for this event.
	if p.Raids.RecordAndCheck(tr.ChatId, ClassJoin) {
		metrics.RaidRejections.WithLabelValues(string(ClassJoin)).Inc()
		if err := p.platform.BanUser(tr.ChatId, tr.UserId); err != nil {
			logger.Warn("removing raid join", sl.Err(err))
		}
		logger.Info("join rejected, raid mode active")
		return
	}

	p.Verify.Admit(tr.ChatId, tr.UserId)
	p.ForceJoin.EnforceChat(tr.ChatId, tr.UserId, chatTitle)

	if tr.InviteRef != "" {
		p.Campaigns.Attribute(tr.ChatId, tr.UserId, tr.InviteRef, tr.OccurredAt)
	}

	p.writeJoin(tr, logger)
}

func (p *Pipeline) writeJoin(tr *entity.MembershipTransition, logger *slog.Logger) {
	day := clock.Day(tr.OccurredAt)
	if err := p.store.IncJoin(tr.ChatId, day); err != nil {
		logger.Warn("incrementing join counter", sl.Err(err))
	}
	if err := p.store.RecordMemberEvent(&entity.MemberEvent{
		ChatId:     tr.ChatId,
		UserId:     tr.UserId,
		Kind:       string(tr.Kind),
		HappenedAt: tr.OccurredAt,
	}); err != nil {
		logger.Warn("recording member event", sl.Err(err))
	}
	if err := p.store.UpsertChatUserIndex(tr.ChatId, tr.UserId, true, tr.OccurredAt); err != nil {
		logger.Warn("updating chat user index", sl.Err(err))
	}
	metrics.JoinsTotal.WithLabelValues(string(tr.Source)).Inc()
}

func (p *Pipeline) writeLeave(tr *entity.MembershipTransition, logger *slog.Logger) {
	day := clock.Day(tr.OccurredAt)
	if err := p.store.IncLeave(tr.ChatId, day); err != nil {
		logger.Warn("incrementing leave counter", sl.Err(err))
	}
	if err := p.store.RecordMemberEvent(&entity.MemberEvent{
		ChatId:     tr.ChatId,
		UserId:     tr.UserId,
		Kind:       string(tr.Kind),
		HappenedAt: tr.OccurredAt,
	}); err != nil {
		logger.Warn("recording member event", sl.Err(err))
	}
	if err := p.store.UpsertChatUserIndex(tr.ChatId, tr.UserId, false, tr.OccurredAt); err != nil {
		logger.Warn("updating chat user index", sl.Err(err))
	}
	metrics.LeavesTotal.WithLabelValues(string(tr.Source)).Inc()
}

// HandleJoinRequest decides a request-based join: bots are declined, raid
// mode declines, everyone else is approved. Approved requesters then
// arrive as a normal join transition and pass the remaining gates there.
func (p *Pipeline) HandleJoinRequest(chatId, userId int64, isBot bool) {
	logger := p.log.With(sl.Chat(chatId), sl.User(userId))

	if isBot {
		if err := p.platform.DeclineJoinRequest(chatId, userId); err != nil {
			logger.Warn("declining bot join request", sl.Err(err))
		}
		return
	}

	if p.Raids.RecordAndCheck(chatId, ClassRequest) {
		metrics.RaidRejections.WithLabelValues(string(ClassRequest)).Inc()
		if err := p.platform.DeclineJoinRequest(chatId, userId); err != nil {
			logger.Warn("declining raid join request", sl.Err(err))
		}
		logger.Info("join request declined, raid mode active")
		return
	}

	if err := p.platform.ApproveJoinRequest(chatId, userId); err != nil {
		logger.Warn("approving join request", sl.Err(err))
	}
}

// CompleteVerification is the system-wide identity confirmation entry
// point, invoked by whatever collected the proof.
func (p *Pipeline) CompleteVerification(userId int64) []int64 {
	return p.Verify.CompleteVerification(userId)
}
