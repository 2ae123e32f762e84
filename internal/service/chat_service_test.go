package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"campus-market/internal/domain"
	"campus-market/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatService_SendMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     *domain.ChatMessage
		wantErr error
	}{
		{
			name: "valid_message",
			msg:  &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "is the bike still available?"},
		},
		{
			name: "self_message",
			msg:  &domain.ChatMessage{SenderID: 7, ReceiverID: 7, Content: "note"},
		},
		{
			name: "max_length_multibyte",
			msg:  &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: strings.Repeat("é", MaxContentLength)},
		},
		{
			name:    "empty_content",
			msg:     &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "   "},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "content_too_long",
			msg:     &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: strings.Repeat("a", MaxContentLength+1)},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "missing_receiver",
			msg:     &domain.ChatMessage{SenderID: 7, Content: "hi"},
			wantErr: domain.ErrInvalidInput,
		},
		{
			name: "negative_product",
			msg: func() *domain.ChatMessage {
				p := int64(-1)
				return &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "hi", ProductID: &p}
			}(),
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMockMessageRepository()
			svc := NewChatService(repo)

			err := svc.SendMessage(context.Background(), tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, repo.Stored())
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, tt.msg.ID)
			assert.False(t, tt.msg.CreatedAt.IsZero())
			assert.Len(t, repo.Stored(), 1)
		})
	}
}

func TestChatService_SendMessage_StorageFailure(t *testing.T) {
	repo := testutil.NewMockMessageRepository()
	repo.CreateFunc = func(ctx context.Context, message *domain.ChatMessage) error {
		return fmt.Errorf("failed to create message: %w: %w", domain.ErrStorage, errors.New("disk full"))
	}
	svc := NewChatService(repo)

	err := svc.SendMessage(context.Background(), &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestChatService_History(t *testing.T) {
	t.Run("clamps_limit", func(t *testing.T) {
		var gotLimits []int
		repo := testutil.NewMockMessageRepository()
		repo.ListConversationFunc = func(ctx context.Context, a, b int64, q domain.HistoryQuery) ([]*domain.ChatMessage, error) {
			gotLimits = append(gotLimits, q.Limit)
			return nil, nil
		}
		svc := NewChatService(repo)

		for _, limit := range []int{0, -5, 20, 500} {
			_, err := svc.History(context.Background(), 7, 9, domain.HistoryQuery{Limit: limit})
			require.NoError(t, err)
		}
		assert.Equal(t, []int{DefaultHistoryLimit, DefaultHistoryLimit, 20, MaxHistoryLimit}, gotLimits)
	})

	t.Run("symmetric_and_ordered", func(t *testing.T) {
		repo := testutil.NewMockMessageRepository()
		svc := NewChatService(repo)
		ctx := context.Background()

		for i, pair := range [][2]int64{{7, 9}, {9, 7}, {7, 12}, {7, 9}} {
			msg := &domain.ChatMessage{SenderID: pair[0], ReceiverID: pair[1], Content: fmt.Sprintf("m%d", i)}
			require.NoError(t, svc.SendMessage(ctx, msg))
		}

		ab, err := svc.History(ctx, 7, 9, domain.HistoryQuery{})
		require.NoError(t, err)
		ba, err := svc.History(ctx, 9, 7, domain.HistoryQuery{})
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
		require.Len(t, ab, 3)
		assert.Equal(t, "m0", ab[0].Content)
		assert.Equal(t, "m3", ab[2].Content)
		for i := 1; i < len(ab); i++ {
			assert.Less(t, ab[i-1].ID, ab[i].ID)
		}
	})

	t.Run("invalid_user", func(t *testing.T) {
		svc := NewChatService(testutil.NewMockMessageRepository())
		_, err := svc.History(context.Background(), 0, 9, domain.HistoryQuery{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestChatService_Conversations(t *testing.T) {
	repo := testutil.NewMockMessageRepository()
	svc := NewChatService(repo)
	ctx := context.Background()

	require.NoError(t, svc.SendMessage(ctx, &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "a"}))
	require.NoError(t, svc.SendMessage(ctx, &domain.ChatMessage{SenderID: 12, ReceiverID: 7, Content: "b"}))
	require.NoError(t, svc.SendMessage(ctx, &domain.ChatMessage{SenderID: 9, ReceiverID: 7, Content: "c"}))

	summaries, err := svc.Conversations(ctx, 7)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, int64(9), summaries[0].OtherUserID)
	assert.Equal(t, "c", summaries[0].LastMessage.Content)
	assert.Equal(t, int64(12), summaries[1].OtherUserID)
}
