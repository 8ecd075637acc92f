// Package user handles account registration and authentication for call
// participants.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/jwt"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/password"
)

// Repository persists user records
type Repository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Service handles user business logic
type Service struct {
	repo       Repository
	jwtManager *jwt.JWTManager
}

// NewService creates a new user service
func NewService(repo Repository, jwtManager *jwt.JWTManager) *Service {
	return &Service{repo: repo, jwtManager: jwtManager}
}

// Register creates a new coordinator or inspector account.
func (s *Service) Register(ctx context.Context, input *domain.UserCreate) (*domain.User, error) {
	role := domain.Role(input.Role)
	if !domain.ValidRole(role) {
		return nil, apperrors.ValidationError("role must be coordinator or inspector")
	}

	if err := password.Validate(input.Password); err != nil {
		return nil, apperrors.ValidationError(err.Error())
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if exists {
		return nil, apperrors.EmailExistsError()
	}

	taken, err := s.repo.UsernameExists(ctx, input.Username)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if taken {
		return nil, apperrors.UsernameExistsError()
	}

	hash, err := password.Hash(input.Password)
	if err != nil {
		return nil, apperrors.InternalError("failed to hash password")
	}

	user := &domain.User{
		UserID:       uuid.New(),
		Email:        email,
		Username:     input.Username,
		PasswordHash: hash,
		DisplayName:  input.DisplayName,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	logger.Info("user registered",
		zap.String("user_id", user.UserID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)

	return user, nil
}

// LoginOutput carries the authenticated user and their tokens
type LoginOutput struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

// Login authenticates by email and password and issues a token pair.
func (s *Service) Login(ctx context.Context, email, plainPassword string) (*LoginOutput, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Do not reveal whether the email exists.
		if apperrors.IsCode(err, apperrors.ErrCodeUserNotFound) {
			return nil, apperrors.UnauthorizedError("invalid email or password")
		}
		return nil, err
	}

	if !password.Verify(user.PasswordHash, plainPassword) {
		return nil, apperrors.UnauthorizedError("invalid email or password")
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.UserID, user.Email, user.Username, string(user.Role))
	if err != nil {
		return nil, apperrors.InternalError("failed to generate access token")
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.UserID)
	if err != nil {
		return nil, apperrors.InternalError("failed to generate refresh token")
	}

	return &LoginOutput{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// GetProfile retrieves a user by ID
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.repo.GetByID(ctx, userID)
}
