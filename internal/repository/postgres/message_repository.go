package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"campus-market/internal/domain"
	"campus-market/internal/observability"
)

const (
	createMessageQuery = `
		INSERT INTO messages (sender_id, receiver_id, content, product_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	// $3 and $4 are optional filters; NULL disables them.
	listConversationQuery = `
		SELECT id, sender_id, receiver_id, content, product_id, created_at
		FROM (
			SELECT id, sender_id, receiver_id, content, product_id, created_at
			FROM messages
			WHERE LEAST(sender_id, receiver_id) = LEAST($1::bigint, $2::bigint)
			  AND GREATEST(sender_id, receiver_id) = GREATEST($1::bigint, $2::bigint)
			  AND ($3::bigint IS NULL OR id < $3)
			  AND ($4::bigint IS NULL OR product_id = $4)
			ORDER BY created_at DESC, id DESC
			LIMIT $5
		) AS page
		ORDER BY created_at ASC, id ASC
	`

	listConversationsQuery = `
		SELECT DISTINCT ON (other_id)
			other_id, id, sender_id, receiver_id, content, product_id, created_at
		FROM (
			SELECT m.id, m.sender_id, m.receiver_id, m.content, m.product_id, m.created_at,
				CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS other_id
			FROM messages m
			WHERE m.sender_id = $1 OR m.receiver_id = $1
		) AS mine
		ORDER BY other_id, created_at DESC, id DESC
	`
)

// MessageRepository is the durable message store backed by PostgreSQL.
type MessageRepository struct {
	db                    *sql.DB
	createStmt            *sql.Stmt
	listConversationStmt  *sql.Stmt
	listConversationsStmt *sql.Stmt
}

// NewMessageRepository prepares the message statements.
func NewMessageRepository(db *sql.DB) (*MessageRepository, error) {
	createStmt, err := db.Prepare(createMessageQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	listConversationStmt, err := db.Prepare(listConversationQuery)
	if err != nil {
		createStmt.Close()
		return nil, fmt.Errorf("failed to prepare list conversation statement: %w", err)
	}

	listConversationsStmt, err := db.Prepare(listConversationsQuery)
	if err != nil {
		createStmt.Close()
		listConversationStmt.Close()
		return nil, fmt.Errorf("failed to prepare list conversations statement: %w", err)
	}

	return &MessageRepository{
		db:                    db,
		createStmt:            createStmt,
		listConversationStmt:  listConversationStmt,
		listConversationsStmt: listConversationsStmt,
	}, nil
}

// Close releases the prepared statements.
func (r *MessageRepository) Close() error {
	var firstErr error
	for _, stmt := range []*sql.Stmt{r.createStmt, r.listConversationStmt, r.listConversationsStmt} {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Create persists message in one statement and fills in ID and CreatedAt.
func (r *MessageRepository) Create(ctx context.Context, message *domain.ChatMessage) error {
	defer observability.ObserveQuery("insert", "messages")()

	err := r.createStmt.QueryRowContext(ctx,
		message.SenderID,
		message.ReceiverID,
		message.Content,
		nullableID(message.ProductID),
	).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w: %w", domain.ErrStorage, err)
	}
	return nil
}

// ListConversation returns one page of the conversation between userA and
// userB, oldest first. Without a cursor the page is the most recent one.
func (r *MessageRepository) ListConversation(ctx context.Context, userA, userB int64, q domain.HistoryQuery) ([]*domain.ChatMessage, error) {
	defer observability.ObserveQuery("select", "messages")()

	var before sql.NullInt64
	if q.BeforeID > 0 {
		before = sql.NullInt64{Int64: q.BeforeID, Valid: true}
	}

	rows, err := r.listConversationStmt.QueryContext(ctx, userA, userB, before, nullableID(q.ProductID), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	messages := make([]*domain.ChatMessage, 0, q.Limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w: %w", domain.ErrStorage, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w: %w", domain.ErrStorage, err)
	}

	return messages, nil
}

// ListConversations returns the latest message per counterpart of userID,
// most recently active conversation first.
func (r *MessageRepository) ListConversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	defer observability.ObserveQuery("select", "messages")()

	rows, err := r.listConversationsStmt.QueryContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()

	var summaries []*domain.ConversationSummary
	for rows.Next() {
		var (
			otherID   int64
			productID sql.NullInt64
			msg       = &domain.ChatMessage{}
		)
		err := rows.Scan(&otherID, &msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &productID, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w: %w", domain.ErrStorage, err)
		}
		msg.ProductID = idPointer(productID)
		summaries = append(summaries, &domain.ConversationSummary{OtherUserID: otherID, LastMessage: msg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w: %w", domain.ErrStorage, err)
	}

	// DISTINCT ON forces ordering by counterpart; the inbox wants recency.
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessage, summaries[j].LastMessage
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return summaries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.ChatMessage, error) {
	msg := &domain.ChatMessage{}
	var productID sql.NullInt64
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &productID, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.ProductID = idPointer(productID)
	return msg, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPointer(id sql.NullInt64) *int64 {
	if !id.Valid {
		return nil
	}
	v := id.Int64
	return &v
}
