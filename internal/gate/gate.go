// Package gate implements the membership gating pipeline: the decision
// machinery that runs on every join/leave signal before a user is allowed
// to participate.
//
// Control flow for a raw signal:
//
//	Normalizer (classify + source precedence) → Deduper (drop stale repeats)
//	→ on JOIN: RaidDetector (instant reject) → VerificationGate (mute + TTL
//	prompt) → ForceJoinGate (mute + prompt) → Attributor (best effort)
//	→ ledger writes
//	→ on LEAVE: ledger writes only
//
// Each step commits its own state independently; a failure in one step is
// logged and never aborts the remainder of the pipeline for that event.
// The package talks to the messaging platform and to persistence only
// through the Platform and Store interfaces declared here.
package gate

import (
	"time"

	"membergate/entity"
)

// Action is one button on a prompt: either an external URL to open or a
// callback payload routed back to the bot.
type Action struct {
	Label    string
	URL      string
	Callback string
}

// Platform is the abstract capability set the pipeline requires from the
// messaging platform. Implemented by the bot package. All calls are
// blocking I/O; implementations must not be invoked under pipeline locks.
type Platform interface {
	// MemberStatus resolves a user's membership in a chat referenced by
	// numeric id or public @username.
	MemberStatus(chatRef string, userId int64) (entity.MemberStatus, error)
	// RestrictMessaging mutes (allowed=false) or fully unmutes a member.
	RestrictMessaging(chatId, userId int64, allowed bool) error
	BanUser(chatId, userId int64) error
	// SendDirect and SendChat return the posted message id for later deletion.
	SendDirect(userId int64, text string, actions []Action) (int64, error)
	SendChat(chatId int64, text string, actions []Action) (int64, error)
	DeleteMessage(chatId, messageId int64) error
	ApproveJoinRequest(chatId, userId int64) error
	DeclineJoinRequest(chatId, userId int64) error
	// DeepLink builds a URL that opens a private conversation with the bot
	// carrying the payload.
	DeepLink(payload string) string
}

// Store is the persistence surface of the pipeline.
// Implemented by internal/database. Lookups return (nil, nil) when the
// record does not exist.
type Store interface {
	EnsureChat(chat entity.Chat) error
	MarkMemberUpdatesSeen(chatId int64) error
	MemberUpdatesSeen(chatId int64) (bool, error)

	GetUser(userId int64) (*entity.User, error)
	UpsertUser(user *entity.User) error
	SetUserPhone(userId int64, phone string) error

	UpsertPending(chatId, userId int64, deadline time.Time) error
	GetPending(chatId, userId int64) (*entity.PendingVerification, error)
	// MarkVerified flips every live pending row for the user and returns
	// the affected chat ids.
	MarkVerified(userId int64, now time.Time) ([]int64, error)

	// ListTargets returns the required targets for a chat, oldest first.
	// entity.ScopeGlobal selects the global set.
	ListTargets(chatId int64) ([]*entity.RequiredTarget, error)

	FindCampaignExact(chatId int64, inviteLink string) (*entity.CampaignLink, error)
	FindCampaignByCode(chatId int64, code string) (*entity.CampaignLink, error)
	SaveCampaignJoin(join *entity.CampaignJoin) error

	IncJoin(chatId int64, day string) error
	IncLeave(chatId int64, day string) error
	RecordMemberEvent(ev *entity.MemberEvent) error
	UpsertChatUserIndex(chatId, userId int64, isMember bool, at time.Time) error
}
