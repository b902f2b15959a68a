package gate

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"membergate/entity"
	"membergate/internal/metrics"
	"membergate/lib/sl"
)

// inviteCodeRe matches the trailing code of t.me/+CODE and
// t.me/joinchat/CODE invite forms, with or without a scheme.
var inviteCodeRe = regexp.MustCompile(`(?:joinchat/|\+)([A-Za-z0-9_-]+)$`)

// ExtractInviteCode pulls the invite code token out of an invite URL so
// links that differ only in host or prefix still match. Falls back to the
// last path segment; returns "" when nothing usable is found.
func ExtractInviteCode(inviteURL string) string {
	u := strings.TrimSpace(inviteURL)
	if u == "" {
		return ""
	}
	if m := inviteCodeRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Path == "" {
		return ""
	}
	segments := strings.Split(strings.TrimRight(parsed.Path, "/"), "/")
	seg := segments[len(segments)-1]
	if seg == "" || seg == "joinchat" {
		return ""
	}
	return seg
}

// Attributor maps the invite reference of a join to a registered campaign
// label. Best effort by contract: it never blocks or fails the join.
type Attributor struct {
	log   *slog.Logger
	store Store
}

func NewAttributor(log *slog.Logger, store Store) *Attributor {
	return &Attributor{
		log:   log.With(sl.Module("gate.campaign")),
		store: store,
	}
}

// Attribute resolves the campaign for an invite reference, exact link
// match first and invite-code fallback second, and writes one CampaignJoin
// fact on success. Returns the matched label, or "" when the join stays
// unattributed (it still counts toward membership stats).
func (a *Attributor) Attribute(chatId, userId int64, inviteRef string, at time.Time) string {
	logger := a.log.With(sl.Chat(chatId), sl.User(userId))

	link, err := a.store.FindCampaignExact(chatId, inviteRef)
	if err != nil {
		logger.Warn("campaign lookup", sl.Err(err))
		return ""
	}
	if link == nil {
		if code := ExtractInviteCode(inviteRef); code != "" {
			link, err = a.store.FindCampaignByCode(chatId, code)
			if err != nil {
				logger.Warn("campaign code lookup", sl.Err(err))
				return ""
			}
		}
	}
	if link == nil {
		logger.Debug("no campaign for invite", slog.String("invite", inviteRef))
		return ""
	}

	join := &entity.CampaignJoin{
		ChatId:     chatId,
		UserId:     userId,
		Label:      link.Label,
		HappenedAt: at,
	}
	if err = a.store.SaveCampaignJoin(join); err != nil {
		logger.Warn("recording campaign join", sl.Err(err))
		return ""
	}
	metrics.CampaignAttributions.Inc()
	logger.Info("campaign attributed", slog.String("label", link.Label))
	return link.Label
}
