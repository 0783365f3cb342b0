// Package models defines core data structures for sessions, messages, products, and replies.
package models

import "time"

// DefaultSessionTitle is assigned to sessions created without a title. The first
// user message replaces it.
const DefaultSessionTitle = "New chat"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is a conversation thread between a user and the assistant.
type Session struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	OwnerID   string    `json:"owner_id" bson:"owner_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Message is a single turn in a session. ImageURL is empty when the turn carries no image.
type Message struct {
	ID        string    `json:"id" bson:"_id"`
	SessionID string    `json:"session_id" bson:"session_id"`
	Role      string    `json:"role" bson:"role"`
	Text      string    `json:"text" bson:"text"`
	ImageURL  string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// SessionDetail is a session together with its messages, oldest first.
type SessionDetail struct {
	Session  *Session   `json:"session"`
	Messages []*Message `json:"messages"`
}
