package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campus-market/internal/domain"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// RegisterInput is the sign-up form. Password is capped at 72 bytes,
// the most bcrypt will hash.
type RegisterInput struct {
	Email      string `json:"email" validate:"required,email,max=255"`
	Password   string `json:"password" validate:"required,min=8,max=72"`
	FullName   string `json:"full_name" validate:"required,max=255"`
	University string `json:"university" validate:"required,max=255"`
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

type AuthService struct {
	userRepo domain.UserRepository
	tokens   TokenIssuer
	validate *validator.Validate
}

func NewAuthService(userRepo domain.UserRepository, tokens TokenIssuer) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	in.University = strings.TrimSpace(in.University)

	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}

	if _, err := s.userRepo.GetByEmail(ctx, in.Email); err == nil {
		return nil, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Email:        in.Email,
		PasswordHash: string(hashedPassword),
		FullName:     in.FullName,
		University:   in.University,
		Domain:       emailDomain(in.Email),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login checks the credentials and returns the user with a signed access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, "", domain.ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func emailDomain(email string) string {
	return email[strings.LastIndex(email, "@")+1:]
}

// describeValidation turns validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
