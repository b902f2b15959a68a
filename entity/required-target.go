package entity

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"membergate/lib/validate"
)

// ScopeGlobal is the ChatId value marking a target as required for every
// private interaction rather than for one chat's membership gate.
const ScopeGlobal int64 = 0

// RequiredTarget is an external chat a user must already belong to before
// being granted full rights. Uniqueness is (chat_id, target); re-adding the
// same pair updates metadata idempotently.
type RequiredTarget struct {
	ChatId  int64     `json:"chat_id" bson:"chat_id"` // ScopeGlobal or the gated chat
	Target  string    `json:"target" bson:"target" validate:"required"`
	JoinURL string    `json:"join_url,omitempty" bson:"join_url,omitempty"`
	AddedBy int64     `json:"added_by" bson:"added_by"`
	AddedAt time.Time `json:"added_at" bson:"added_at"`
}

func (t *RequiredTarget) Bind(_ *http.Request) error {
	t.Target = strings.TrimSpace(t.Target)
	return validate.Struct(t)
}

// Queryable reports whether membership in the target can be checked at all.
// Public usernames and numeric chat ids resolve; bare invite URLs do not,
// and are treated as always satisfied by the gate.
func (t *RequiredTarget) Queryable() bool {
	if strings.HasPrefix(t.Target, "@") {
		return len(t.Target) > 1
	}
	_, err := strconv.ParseInt(t.Target, 10, 64)
	return err == nil
}

// OpenURL returns the best URL to present as the "open target" action.
func (t *RequiredTarget) OpenURL() string {
	if t.JoinURL != "" {
		return t.JoinURL
	}
	if strings.HasPrefix(t.Target, "@") {
		return "https://t.me/" + t.Target[1:]
	}
	if strings.HasPrefix(t.Target, "http://") || strings.HasPrefix(t.Target, "https://") {
		return t.Target
	}
	return ""
}

// Label returns a short human-readable name for prompts.
func (t *RequiredTarget) Label() string {
	if strings.HasPrefix(t.Target, "@") {
		return t.Target
	}
	if t.JoinURL != "" {
		return t.JoinURL
	}
	return t.Target
}
