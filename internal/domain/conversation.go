package domain

import "time"

// Message is one entry of a chat timeline. Messages are immutable once
// persisted and ordered by insertion.
type Message struct {
	ID        MessageID `json:"id"`
	ChatID    ChatID    `json:"chatId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"` // epoch ms

	// Attachment data submitted together with a user message.
	Files        []string `json:"files,omitempty"`
	HasFiles     bool     `json:"hasFiles,omitempty"`
	DocumentData string   `json:"documentData,omitempty"`
}

// Chat owns an ordered sequence of messages. It only grows by appending one
// user/assistant pair per turn.
type Chat struct {
	ID        ChatID    `json:"id"`
	UserID    UserID    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
