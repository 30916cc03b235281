// internal/models/conversation.go
package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one immutable message in a conversation, ordered by
// timestamp ascending within its conversation.
type ConversationTurn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// MentionQuery is the transient result of third-party mention resolution:
// the extracted name and the prior turns that reference it. It is recomputed
// per request and never persisted.
type MentionQuery struct {
	Name  string             `json:"name"`
	Turns []ConversationTurn `json:"turns"`
}
