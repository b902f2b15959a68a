package entity

import "time"

// TransitionKind classifies a membership transition.
type TransitionKind string

const (
	TransitionJoin  TransitionKind = "join"
	TransitionLeave TransitionKind = "leave"
)

// EventSource tags where a membership signal came from. Authoritative
// signals are per-update member transitions; fallback signals are degraded
// service messages delivered only for chats that never emit the former.
type EventSource string

const (
	SourceAuthoritative EventSource = "authoritative"
	SourceFallback      EventSource = "fallback"
)

// MembershipTransition is the canonical form of a join/leave signal after
// boundary normalization. It is an ephemeral input value, consumed by the
// pipeline and never persisted as-is.
type MembershipTransition struct {
	ChatId     int64
	UserId     int64
	Kind       TransitionKind
	Source     EventSource
	OccurredAt time.Time
	InviteRef  string // invite link URL the join used, if any
}
