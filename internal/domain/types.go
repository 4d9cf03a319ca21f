package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatID string
type UserID string
type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the single enum value returned by a classifier call.
// Labels are never persisted.
type Label string

const (
	LabelAgriculture    Label = "AGRICULTURE"
	LabelNotAgriculture Label = "NOT_AGRICULTURE"
	LabelYes            Label = "YES"
	LabelNo             Label = "NO"
)

// NowMillis returns t as epoch milliseconds, the timestamp unit of Message.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// NewID returns a random identifier for chats and messages.
func NewID() string {
	return uuid.NewString()
}
