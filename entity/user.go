package entity

import "time"

// User is a person the bot has interacted with in private. The phone
// number is the one-time identity proof: once captured it is never erased,
// and its presence is what the verification gate checks on join.
//
// Token is set only for API clients and authorizes the admin/analytics
// HTTP surface.
type User struct {
	TelegramId int64     `json:"telegram_id" bson:"telegram_id"`
	Username   string    `json:"username" bson:"username"`
	FirstName  string    `json:"first_name" bson:"first_name"`
	LastName   string    `json:"last_name" bson:"last_name"`
	Phone      string    `json:"phone" bson:"phone"`
	Token      string    `json:"token,omitempty" bson:"token,omitempty"`
	FirstSeen  time.Time `json:"first_seen" bson:"first_seen"`
	LastSeen   time.Time `json:"last_seen" bson:"last_seen"`
}

// HasIdentity reports whether the user has completed identity verification.
func (u *User) HasIdentity() bool {
	return u.Phone != ""
}

// DisplayName returns the best human-readable handle for logs and notices.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}
