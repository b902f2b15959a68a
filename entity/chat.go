package entity

import "time"

// Chat is a group, supergroup or channel the bot has sighted. Identity is
// immutable; the title may change between sightings. Rows are created on
// first sighting and never deleted.
//
// MemberUpdatesSeen marks that the chat has delivered at least one
// authoritative member transition; once set, degraded service-message
// signals for the chat are ignored permanently.
type Chat struct {
	TelegramId        int64     `json:"telegram_id" bson:"telegram_id"`
	Kind              string    `json:"kind" bson:"kind"` // group, supergroup, channel
	Title             string    `json:"title" bson:"title"`
	MemberUpdatesSeen bool      `json:"member_updates_seen" bson:"member_updates_seen"`
	FirstSeenAt       time.Time `json:"first_seen_at" bson:"first_seen_at"`
}
