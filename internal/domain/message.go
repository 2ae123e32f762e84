package domain

import (
	"context"
	"time"
)

// ChatMessage is a persisted direct message between two users,
// optionally about a product listing.
type ChatMessage struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	ProductID  *int64    `json:"product_id"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Involves reports whether userID is one of the two participants.
func (m *ChatMessage) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the participant that is not userID.
func (m *ChatMessage) Counterpart(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// HistoryQuery narrows a conversation read.
type HistoryQuery struct {
	Limit     int
	BeforeID  int64  // only messages with id < BeforeID; zero means latest page
	ProductID *int64 // scope to a single listing when set
}

// ConversationSummary is the latest message exchanged with one counterpart.
type ConversationSummary struct {
	OtherUserID int64        `json:"other_user_id"`
	LastMessage *ChatMessage `json:"last_message"`
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	Create(ctx context.Context, message *ChatMessage) error
	ListConversation(ctx context.Context, userA, userB int64, q HistoryQuery) ([]*ChatMessage, error)
	ListConversations(ctx context.Context, userID int64) ([]*ConversationSummary, error)
}
