package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"campus-market/internal/domain"
)

var idCounter atomic.Int64

func nextID() int64 {
	return idCounter.Add(1)
}

// UserOptions allows customizing user fixture creation
type UserOptions struct {
	ID           int64
	Email        string
	FullName     string
	University   string
	PasswordHash string
	CreatedAt    time.Time
}

// NewTestUser creates a test user with sensible defaults
func NewTestUser(opts ...func(*UserOptions)) *domain.User {
	id := nextID()
	o := &UserOptions{
		ID:           id,
		Email:        fmt.Sprintf("student%d@uni.edu", id),
		FullName:     fmt.Sprintf("Student %d", id),
		University:   "State University",
		PasswordHash: "$2a$10$test.hash.for.testing.purposes.only", // bcrypt hash placeholder
		CreatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}

	domainPart := o.Email[strings.LastIndex(o.Email, "@")+1:]

	return &domain.User{
		ID:           o.ID,
		Email:        o.Email,
		FullName:     o.FullName,
		University:   o.University,
		Domain:       domainPart,
		PasswordHash: o.PasswordHash,
		CreatedAt:    o.CreatedAt,
	}
}

func WithUserID(id int64) func(*UserOptions) {
	return func(o *UserOptions) { o.ID = id }
}

func WithEmail(email string) func(*UserOptions) {
	return func(o *UserOptions) { o.Email = email }
}

func WithPasswordHash(hash string) func(*UserOptions) {
	return func(o *UserOptions) { o.PasswordHash = hash }
}

// ProductOptions allows customizing product fixture creation
type ProductOptions struct {
	ID       int64
	SellerID int64
	Name     string
	ImageURL string
	SoldAt   *time.Time
}

// NewTestProduct creates an unsold listing unless WithSoldAt is given.
func NewTestProduct(opts ...func(*ProductOptions)) *domain.Product {
	id := nextID()
	o := &ProductOptions{
		ID:       id,
		SellerID: nextID(),
		Name:     fmt.Sprintf("Listing %d", id),
		ImageURL: fmt.Sprintf("/static/images/products/listing-%d.jpg", id),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &domain.Product{
		ID:        o.ID,
		SellerID:  o.SellerID,
		Name:      o.Name,
		ImageURL:  o.ImageURL,
		IsSold:    o.SoldAt != nil,
		SoldAt:    o.SoldAt,
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
}

func WithProductID(id int64) func(*ProductOptions) {
	return func(o *ProductOptions) { o.ID = id }
}

func WithSellerID(id int64) func(*ProductOptions) {
	return func(o *ProductOptions) { o.SellerID = id }
}

func WithImageURL(url string) func(*ProductOptions) {
	return func(o *ProductOptions) { o.ImageURL = url }
}

func WithSoldAt(t time.Time) func(*ProductOptions) {
	return func(o *ProductOptions) { o.SoldAt = &t }
}

// NewTestMessage creates a persisted-looking message between two users.
func NewTestMessage(senderID, receiverID int64, content string) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:         nextID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}
