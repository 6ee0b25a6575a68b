package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/user"
)

// UserReader is satisfied by the user service.
type UserReader interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type Service struct {
	users      UserReader
	tokens     TokenGenerator
	bcryptCost int
	logger     *slog.Logger
}

func NewService(users UserReader, tokens TokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Authenticate validates credentials and returns a token pair. Lookup
// failures and bad passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	u, err := s.users.GetByEmail(ctx, dto.Email)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	return s.issueTokens(u)
}

func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}

	// Reload the user so revoked accounts and role changes take effect on
	// refresh, not only at next login.
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return AuthTokens{}, internal.ErrInvalidToken
	}
	if !u.IsActive {
		return AuthTokens{}, internal.ErrUserInactive
	}

	return s.issueTokens(u)
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(tokenString)
}

// HashPassword satisfies user.PasswordHasher.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) issueTokens(u *user.User) (AuthTokens, error) {
	access, err := s.tokens.GenerateAccessToken(u.ID.String(), u.Email, string(u.Role))
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate access token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(u.ID.String(), u.Email, string(u.Role))
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate refresh token", err)
	}
	return AuthTokens{AccessToken: access, RefreshToken: refresh}, nil
}
