package entity

import (
	"net/http"
	"strings"
	"time"

	"membergate/lib/validate"
)

// CampaignLink maps an invite link to a marketing campaign label for one
// chat. Created by an operator; read-only to the gating pipeline.
type CampaignLink struct {
	Id         string    `json:"id" bson:"id"`
	ChatId     int64     `json:"chat_id" bson:"chat_id"`
	InviteLink string    `json:"invite_link" bson:"invite_link" validate:"required,url"`
	Label      string    `json:"label" bson:"label" validate:"required"`
	CreatedBy  int64     `json:"created_by" bson:"created_by"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

func (c *CampaignLink) Bind(_ *http.Request) error {
	c.InviteLink = strings.TrimSpace(c.InviteLink)
	c.Label = strings.TrimSpace(c.Label)
	return validate.Struct(c)
}

// CampaignJoin is the derived attribution fact written once a join is
// matched to a campaign link. Never updated.
type CampaignJoin struct {
	ChatId     int64     `json:"chat_id" bson:"chat_id"`
	UserId     int64     `json:"user_id" bson:"user_id"`
	Label      string    `json:"label" bson:"label"`
	HappenedAt time.Time `json:"happened_at" bson:"happened_at"`
}

// CampaignCount is a read-model row for "top campaigns" queries.
type CampaignCount struct {
	Label string `json:"label" bson:"_id"`
	Joins int64  `json:"joins" bson:"joins"`
}
