package models

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSNS      Channel = "sns"
)

// Subscription is one delivery target for reminders: a Telegram chat id or
// an SNS platform endpoint ARN.
type Subscription struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Channel   Channel   `json:"channel"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}
