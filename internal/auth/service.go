package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when signing up with an existing email.
	ErrUserExists = errors.New("account already exists")
	// ErrMissingDetails is returned when a required signup or profile field is empty.
	ErrMissingDetails = errors.New("missing details")
	// ErrInvalidEmail is returned when the email cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password is too short.
	ErrInvalidPassword = errors.New("invalid password")
)

const minPasswordLen = 6

// SignupInput holds the fields required to create an account.
type SignupInput struct {
	FullName string
	Email    string
	Password string
	Bio      string
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Signup creates an account and returns it with a token.
func (s *Service) Signup(ctx context.Context, in SignupInput) (string, *store.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Bio = strings.TrimSpace(in.Bio)
	if in.FullName == "" || in.Email == "" || in.Password == "" || in.Bio == "" {
		return "", nil, ErrMissingDetails
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return "", nil, ErrInvalidEmail
	}
	if len(in.Password) < minPasswordLen {
		return "", nil, ErrInvalidPassword
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return "", nil, ErrUserExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return "", nil, err
	}

	user, err := s.store.CreateUser(ctx, &store.User{
		Email:        in.Email,
		FullName:     in.FullName,
		PasswordHash: hash,
		Bio:          in.Bio,
	})
	if err != nil {
		return "", nil, fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// Login validates credentials and returns the user with a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	return token, user, nil
}

// CurrentUser returns the account behind a validated user id.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*store.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// UpdateProfile changes name, bio and optionally the profile picture URL.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) (*store.User, error) {
	update.FullName = strings.TrimSpace(update.FullName)
	update.Bio = strings.TrimSpace(update.Bio)
	update.ProfilePic = strings.TrimSpace(update.ProfilePic)
	if update.FullName == "" || update.Bio == "" {
		return nil, ErrMissingDetails
	}
	return s.store.UpdateProfile(ctx, userID, update)
}

// ValidateToken validates a token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// Identify resolves the identity presented when a live connection opens.
// Every failure wraps core.ErrUnauthenticated.
func (s *Service) Identify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", fmt.Errorf("%w: missing token", core.ErrUnauthenticated)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthenticated, err)
	}

	if _, err := s.store.GetUserByID(ctx, claims.UserID); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthenticated, err)
	}
	return claims.UserID, nil
}
