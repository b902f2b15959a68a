package entity

import "time"

// PendingVerification tracks that a user must prove identity before a
// deadline or be removed from the chat. One row per (chat, user); re-arming
// resets the deadline and clears the verified flag. Rows are never hard
// deleted: verified=true tombstones them, and a re-arm supersedes them.
type PendingVerification struct {
	ChatId   int64     `json:"chat_id" bson:"chat_id"`
	UserId   int64     `json:"user_id" bson:"user_id"`
	Deadline time.Time `json:"deadline" bson:"deadline"`
	Verified bool      `json:"verified" bson:"verified"`
}

// Expired reports whether the record is past its deadline and unverified.
func (p *PendingVerification) Expired(now time.Time) bool {
	return !p.Verified && p.Deadline.Before(now)
}
