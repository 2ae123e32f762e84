package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus-market/internal/domain"
	"campus-market/internal/observability"
)

const (
	createUserQuery = `
		INSERT INTO users (email, password_hash, full_name, university, domain)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	getUserByIDQuery = `
		SELECT id, email, password_hash, full_name, university, domain, created_at
		FROM users
		WHERE id = $1
	`

	getUserByEmailQuery = `
		SELECT id, email, password_hash, full_name, university, domain, created_at
		FROM users
		WHERE email = $1
	`
)

// UserRepository implements domain.UserRepository for PostgreSQL
type UserRepository struct {
	db             *sql.DB
	createStmt     *sql.Stmt
	getByIDStmt    *sql.Stmt
	getByEmailStmt *sql.Stmt
}

// NewUserRepository creates a new PostgreSQL user repository with prepared statements
func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	createStmt, err := db.Prepare(createUserQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare create statement: %w", err)
	}

	getByIDStmt, err := db.Prepare(getUserByIDQuery)
	if err != nil {
		createStmt.Close()
		return nil, fmt.Errorf("failed to prepare get by id statement: %w", err)
	}

	getByEmailStmt, err := db.Prepare(getUserByEmailQuery)
	if err != nil {
		createStmt.Close()
		getByIDStmt.Close()
		return nil, fmt.Errorf("failed to prepare get by email statement: %w", err)
	}

	return &UserRepository{
		db:             db,
		createStmt:     createStmt,
		getByIDStmt:    getByIDStmt,
		getByEmailStmt: getByEmailStmt,
	}, nil
}

// Close releases the prepared statements.
func (r *UserRepository) Close() error {
	return errors.Join(r.createStmt.Close(), r.getByIDStmt.Close(), r.getByEmailStmt.Close())
}

// Create inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	defer observability.ObserveQuery("insert", "users")()

	err := r.createStmt.QueryRowContext(ctx,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.University,
		user.Domain,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err, "users_email_key") {
			return domain.ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	defer observability.ObserveQuery("select", "users")()
	return scanUser(r.getByIDStmt.QueryRowContext(ctx, id))
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer observability.ObserveQuery("select", "users")()
	return scanUser(r.getByEmailStmt.QueryRowContext(ctx, email))
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.University,
		&user.Domain,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
