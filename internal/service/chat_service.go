package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"campus-market/internal/domain"
	"campus-market/internal/observability"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	MaxContentLength    = 1000
)

type ChatService struct {
	messageRepo domain.MessageRepository
}

func NewChatService(messageRepo domain.MessageRepository) *ChatService {
	return &ChatService{messageRepo: messageRepo}
}

// SendMessage persists msg and fills in its ID and CreatedAt. A failed
// write is returned wrapped in domain.ErrStorage.
func (s *ChatService) SendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.SenderID <= 0 || msg.ReceiverID <= 0 {
		return fmt.Errorf("%w: participant ids must be positive", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(msg.Content) == "" || utf8.RuneCountInString(msg.Content) > MaxContentLength {
		return fmt.Errorf("%w: content must be 1-%d characters", domain.ErrInvalidInput, MaxContentLength)
	}
	if msg.ProductID != nil && *msg.ProductID <= 0 {
		return fmt.Errorf("%w: product id must be positive", domain.ErrInvalidInput)
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return err
	}
	observability.ChatMessagesPersisted.Inc()
	return nil
}

// History returns a page of the conversation between userID and otherID,
// oldest first. Limits outside 1..MaxHistoryLimit fall back to the default
// or are capped.
func (s *ChatService) History(ctx context.Context, userID, otherID int64, q domain.HistoryQuery) ([]*domain.ChatMessage, error) {
	if userID <= 0 || otherID <= 0 {
		return nil, domain.ErrInvalidInput
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultHistoryLimit
	case q.Limit > MaxHistoryLimit:
		q.Limit = MaxHistoryLimit
	}
	return s.messageRepo.ListConversation(ctx, userID, otherID, q)
}

func (s *ChatService) Conversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidInput
	}
	return s.messageRepo.ListConversations(ctx, userID)
}
