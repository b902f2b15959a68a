package entity

import "time"

// DayStat is one row of the per-chat daily join/leave ledger.
// Day is formatted YYYY-MM-DD in UTC.
type DayStat struct {
	Day    string `json:"day" bson:"day"`
	Joins  int64  `json:"joins" bson:"joins"`
	Leaves int64  `json:"leaves" bson:"leaves"`
}

// MemberEvent is one append-only ledger entry for a honored transition.
type MemberEvent struct {
	ChatId     int64     `json:"chat_id" bson:"chat_id"`
	UserId     int64     `json:"user_id" bson:"user_id"`
	Kind       string    `json:"kind" bson:"kind"`
	HappenedAt time.Time `json:"happened_at" bson:"happened_at"`
}
