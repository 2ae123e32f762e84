package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"campus-market/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageColumns = []string{"id", "sender_id", "receiver_id", "content", "product_id", "created_at"}

func TestNewMessageRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)

		repo, err := NewMessageRepository(db)
		require.NoError(t, err)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_create_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(createMessageQuery)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewMessageRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare create statement")
	})

	t.Run("fails_when_prepare_list_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(createMessageQuery)).WillBeClosed()
		mock.ExpectPrepare(regexp.QuoteMeta(listConversationQuery)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewMessageRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare list conversation statement")
	})
}

func TestMessageRepository_Create(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta(createMessageQuery)).
			WithArgs(int64(7), int64(9), "hi", nil).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), createdAt))

		message := &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "hi"}
		err = repo.Create(context.Background(), message)
		require.NoError(t, err)
		assert.Equal(t, int64(1), message.ID)
		assert.Equal(t, createdAt, message.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with_product_reference", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(createMessageQuery)).
			WithArgs(int64(7), int64(9), "still available?", int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), time.Now()))

		productID := int64(3)
		message := &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "still available?", ProductID: &productID}
		require.NoError(t, repo.Create(context.Background(), message))
		assert.Equal(t, int64(2), message.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database_error_is_storage_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(createMessageQuery)).
			WillReturnError(errors.New("connection reset"))

		message := &domain.ChatMessage{SenderID: 7, ReceiverID: 9, Content: "hi"}
		err = repo.Create(context.Background(), message)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrStorage)
		assert.Contains(t, err.Error(), "failed to create message")
		assert.Zero(t, message.ID)
	})
}

func TestMessageRepository_ListConversation(t *testing.T) {
	t.Run("latest_page_ascending", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta(listConversationQuery)).
			WithArgs(int64(7), int64(9), nil, nil, 50).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow(int64(1), int64(7), int64(9), "hi", nil, base).
				AddRow(int64(2), int64(9), int64(7), "hello", int64(3), base.Add(time.Second)))

		messages, err := repo.ListConversation(context.Background(), 7, 9, domain.HistoryQuery{Limit: 50})
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, int64(1), messages[0].ID)
		assert.Nil(t, messages[0].ProductID)
		assert.Equal(t, int64(2), messages[1].ID)
		require.NotNil(t, messages[1].ProductID)
		assert.Equal(t, int64(3), *messages[1].ProductID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cursor_and_product_filter", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		productID := int64(3)
		mock.ExpectQuery(regexp.QuoteMeta(listConversationQuery)).
			WithArgs(int64(7), int64(9), int64(100), int64(3), 20).
			WillReturnRows(sqlmock.NewRows(messageColumns))

		messages, err := repo.ListConversation(context.Background(), 7, 9, domain.HistoryQuery{
			Limit:     20,
			BeforeID:  100,
			ProductID: &productID,
		})
		require.NoError(t, err)
		assert.Empty(t, messages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(listConversationQuery)).
			WillReturnError(errors.New("database error"))

		messages, err := repo.ListConversation(context.Background(), 7, 9, domain.HistoryQuery{Limit: 50})
		require.Error(t, err)
		assert.Nil(t, messages)
		assert.ErrorIs(t, err, domain.ErrStorage)
	})

	t.Run("scan_error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(listConversationQuery)).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow("not-a-number", int64(7), int64(9), "hi", nil, time.Now()))

		_, err = repo.ListConversation(context.Background(), 7, 9, domain.HistoryQuery{Limit: 50})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to scan message")
	})
}

func TestMessageRepository_ListConversations(t *testing.T) {
	t.Run("orders_by_most_recent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		base := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
		mock.ExpectQuery(regexp.QuoteMeta(listConversationsQuery)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(append([]string{"other_id"}, messageColumns...)).
				AddRow(int64(9), int64(4), int64(9), int64(7), "old", nil, base).
				AddRow(int64(12), int64(8), int64(7), int64(12), "new", int64(5), base.Add(time.Hour)))

		summaries, err := repo.ListConversations(context.Background(), 7)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, int64(12), summaries[0].OtherUserID)
		assert.Equal(t, "new", summaries[0].LastMessage.Content)
		assert.Equal(t, int64(9), summaries[1].OtherUserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no_conversations", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupMessageRepositoryMocks(mock)
		repo, err := NewMessageRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(listConversationsQuery)).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(append([]string{"other_id"}, messageColumns...)))

		summaries, err := repo.ListConversations(context.Background(), 7)
		require.NoError(t, err)
		assert.Empty(t, summaries)
	})
}

func setupMessageRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(createMessageQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(listConversationQuery))
	mock.ExpectPrepare(regexp.QuoteMeta(listConversationsQuery))
}
