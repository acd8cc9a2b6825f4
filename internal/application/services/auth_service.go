package services

import (
	"context"

	"github.com/salesdesk/backend/internal/infrastructure/persistence"
	"github.com/salesdesk/backend/pkg/auth"
	apperrors "github.com/salesdesk/backend/pkg/errors"
	"github.com/salesdesk/backend/pkg/models"
)

// AuthService resolves actor identity: login with email/password, token
// validation for the request middleware.
type AuthService struct {
	users *persistence.UserRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(users *persistence.UserRepository) *AuthService {
	return &AuthService{users: users}
}

// Login verifies credentials and issues a JWT for the session.
func (as *AuthService) Login(ctx context.Context, email, password string) (string, *models.UserSession, error) {
	user, err := as.users.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, apperrors.NewInternalError("failed to load user", err)
	}
	if user == nil || !auth.VerifyPassword(password, user.PasswordHash) {
		return "", nil, apperrors.NewUnauthorizedError("invalid email or password")
	}

	session := user.Session()
	token, err := auth.GenerateToken(session)
	if err != nil {
		return "", nil, apperrors.NewInternalError("failed to issue token", err)
	}
	return token, &session, nil
}

// ValidateToken checks a bearer token and returns the actor session.
func (as *AuthService) ValidateToken(tokenString string) (*models.UserSession, error) {
	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid or expired token")
	}
	return &claims.User, nil
}
