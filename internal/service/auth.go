package service

import (
	"context"
	"errors"
	"time"

	"github.com/dataground/dataground-go/internal/crypto"
	"github.com/dataground/dataground-go/internal/model"
	"github.com/dataground/dataground-go/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNameRequired   = errors.New("user_name is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStore is the persistence interface the auth service depends on.
// *repository.UserRepository satisfies it.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// AuthService handles signup, login and identity lookup.
type AuthService struct {
	users     UserStore
	jwtSecret string
	jwtExpiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, secret string, expiry time.Duration) *AuthService {
	return &AuthService{
		users:     users,
		jwtSecret: secret,
		jwtExpiry: expiry,
	}
}

// Signup creates a new user account. All field validation runs before any
// storage access, so a duplicate email is only ever reported for an
// otherwise-valid payload.
func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (model.UserResponse, error) {
	if req.UserName == "" {
		return model.UserResponse{}, ErrUserNameRequired
	}
	if req.Email == "" {
		return model.UserResponse{}, ErrEmailRequired
	}
	if req.Password == "" {
		return model.UserResponse{}, ErrPasswordRequired
	}
	if req.Password != req.ConfirmPassword {
		return model.UserResponse{}, ErrPasswordMismatch
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return model.UserResponse{}, err
	}

	user := &model.User{
		UserName:     req.UserName,
		Email:        req.Email,
		PasswordHash: hash,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.UserResponse{}, ErrEmailTaken
		}
		return model.UserResponse{}, err
	}

	return model.UserResponse{
		ID:        user.ID,
		UserName:  user.UserName,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}

// Login authenticates a user and returns a bearer token response. Unknown
// email and wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.TokenResponse{}, ErrInvalidCredentials
		}
		return model.TokenResponse{}, err
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return model.TokenResponse{}, err
	}
	if !match {
		return model.TokenResponse{}, ErrInvalidCredentials
	}

	token, err := crypto.GenerateToken(user.ID, s.jwtSecret, s.jwtExpiry)
	if err != nil {
		return model.TokenResponse{}, err
	}

	return model.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	}, nil
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}

	return model.UserResponse{
		ID:        user.ID,
		UserName:  user.UserName,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}, nil
}
