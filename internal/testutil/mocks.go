// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the campus-market server.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-market/internal/domain"
)

// MockUserRepository implements domain.UserRepository for testing
type MockUserRepository struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	CreateFunc     func(ctx context.Context, user *domain.User) error
	GetByIDFunc    func(ctx context.Context, id int64) (*domain.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*domain.User, error)

	// In-memory storage for simple tests
	Users  map[int64]*domain.User
	nextID int64
}

// NewMockUserRepository creates a new MockUserRepository with initialized maps
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[int64]*domain.User),
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Users == nil {
		m.Users = make(map[int64]*domain.User)
	}
	for _, u := range m.Users {
		if u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}

	if user.ID == 0 {
		m.nextID++
		user.ID = m.nextID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if user, ok := m.Users[id]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.Users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// MockMessageRepository implements domain.MessageRepository in memory.
// IDs are assigned monotonically like a BIGSERIAL column.
type MockMessageRepository struct {
	mu sync.RWMutex

	CreateFunc            func(ctx context.Context, message *domain.ChatMessage) error
	ListConversationFunc  func(ctx context.Context, userA, userB int64, q domain.HistoryQuery) ([]*domain.ChatMessage, error)
	ListConversationsFunc func(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error)

	Messages []*domain.ChatMessage
	nextID   int64
}

func NewMockMessageRepository() *MockMessageRepository {
	return &MockMessageRepository{}
}

func (m *MockMessageRepository) Create(ctx context.Context, message *domain.ChatMessage) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	message.ID = m.nextID
	message.CreatedAt = time.Now().UTC()
	stored := *message
	m.Messages = append(m.Messages, &stored)
	return nil
}

func (m *MockMessageRepository) ListConversation(ctx context.Context, userA, userB int64, q domain.HistoryQuery) ([]*domain.ChatMessage, error) {
	if m.ListConversationFunc != nil {
		return m.ListConversationFunc(ctx, userA, userB, q)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*domain.ChatMessage
	for _, msg := range m.Messages {
		between := (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA)
		if !between {
			continue
		}
		if q.BeforeID > 0 && msg.ID >= q.BeforeID {
			continue
		}
		if q.ProductID != nil && (msg.ProductID == nil || *msg.ProductID != *q.ProductID) {
			continue
		}
		matched = append(matched, msg)
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	return matched, nil
}

func (m *MockMessageRepository) ListConversations(ctx context.Context, userID int64) ([]*domain.ConversationSummary, error) {
	if m.ListConversationsFunc != nil {
		return m.ListConversationsFunc(ctx, userID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[int64]*domain.ChatMessage)
	for _, msg := range m.Messages {
		if !msg.Involves(userID) {
			continue
		}
		latest[msg.Counterpart(userID)] = msg
	}

	summaries := make([]*domain.ConversationSummary, 0, len(latest))
	for other, msg := range latest {
		summaries = append(summaries, &domain.ConversationSummary{OtherUserID: other, LastMessage: msg})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessage.ID > summaries[j].LastMessage.ID
	})
	return summaries, nil
}

// Stored returns a snapshot of every persisted message.
func (m *MockMessageRepository) Stored() []*domain.ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.ChatMessage{}, m.Messages...)
}

// MockProductRepository implements domain.ProductRepository in memory.
type MockProductRepository struct {
	mu sync.RWMutex

	GetByIDFunc          func(ctx context.Context, id int64) (*domain.Product, error)
	MarkSoldFunc         func(ctx context.Context, id int64) error
	DeleteIfSoldFunc     func(ctx context.Context, id int64) (*domain.Product, error)
	DeleteSoldBeforeFunc func(ctx context.Context, cutoff time.Time) ([]*domain.Product, error)
	ListImageURLsFunc    func(ctx context.Context) ([]string, error)
	CountListingsFunc    func(ctx context.Context) (domain.ListingCounts, error)

	Products map[int64]*domain.Product
}

func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		Products: make(map[int64]*domain.Product),
	}
}

// Add stores product, replacing any product with the same id.
func (m *MockProductRepository) Add(product *domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Products[product.ID] = product
}

func (m *MockProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if product, ok := m.Products[id]; ok {
		return product, nil
	}
	return nil, domain.ErrProductNotFound
}

func (m *MockProductRepository) MarkSold(ctx context.Context, id int64) error {
	if m.MarkSoldFunc != nil {
		return m.MarkSoldFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.Products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.IsSold = true
	if product.SoldAt == nil {
		now := time.Now()
		product.SoldAt = &now
	}
	return nil
}

func (m *MockProductRepository) DeleteIfSold(ctx context.Context, id int64) (*domain.Product, error) {
	if m.DeleteIfSoldFunc != nil {
		return m.DeleteIfSoldFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.Products[id]
	if !ok || !product.IsSold {
		return nil, nil
	}
	delete(m.Products, id)
	return product, nil
}

func (m *MockProductRepository) DeleteSoldBefore(ctx context.Context, cutoff time.Time) ([]*domain.Product, error) {
	if m.DeleteSoldBeforeFunc != nil {
		return m.DeleteSoldBeforeFunc(ctx, cutoff)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []*domain.Product
	for id, product := range m.Products {
		if !product.IsSold {
			continue
		}
		soldAt := product.CreatedAt
		if product.SoldAt != nil {
			soldAt = *product.SoldAt
		}
		if soldAt.Before(cutoff) {
			removed = append(removed, product)
			delete(m.Products, id)
		}
	}
	return removed, nil
}

func (m *MockProductRepository) ListImageURLs(ctx context.Context) ([]string, error) {
	if m.ListImageURLsFunc != nil {
		return m.ListImageURLsFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var urls []string
	for _, product := range m.Products {
		if product.ImageURL != "" {
			urls = append(urls, product.ImageURL)
		}
	}
	return urls, nil
}

func (m *MockProductRepository) CountListings(ctx context.Context) (domain.ListingCounts, error) {
	if m.CountListingsFunc != nil {
		return m.CountListingsFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := domain.ListingCounts{Total: int64(len(m.Products))}
	for _, product := range m.Products {
		if product.IsSold {
			counts.Sold++
		}
	}
	return counts, nil
}

// MockCleanupScheduler records scheduled listing cleanups.
type MockCleanupScheduler struct {
	mu sync.RWMutex

	ScheduleCleanupFunc func(ctx context.Context, productID int64) error

	Scheduled []int64
}

func NewMockCleanupScheduler() *MockCleanupScheduler {
	return &MockCleanupScheduler{}
}

func (m *MockCleanupScheduler) ScheduleCleanup(ctx context.Context, productID int64) error {
	if m.ScheduleCleanupFunc != nil {
		return m.ScheduleCleanupFunc(ctx, productID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled = append(m.Scheduled, productID)
	return nil
}

// Calls returns the product ids scheduled so far.
func (m *MockCleanupScheduler) Calls() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64{}, m.Scheduled...)
}
