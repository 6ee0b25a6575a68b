package invitation

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal"
	"github.com/clinicore/clinic-booking/internal/audit"
	"github.com/clinicore/clinic-booking/internal/authz"
	"github.com/clinicore/clinic-booking/internal/user"
)

type Repository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByTokenHash(ctx context.Context, hash string) (*Invitation, error)

	// MarkUsedCAS sets used_at only when it is still NULL, returning
	// ErrAlreadyUsed when another request won the race.
	MarkUsedCAS(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

type PermissionEvaluator interface {
	Evaluate(ctx context.Context, u *user.User, perm authz.Permission, req authz.Request) (authz.Decision, error)
}

type Service struct {
	repo      Repository
	evaluator PermissionEvaluator
	sink      audit.Sink
	ttl       time.Duration
	logger    *slog.Logger
}

func NewService(repo Repository, evaluator PermissionEvaluator, sink audit.Sink, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Service{
		repo:      repo,
		evaluator: evaluator,
		sink:      sink,
		ttl:       ttl,
		logger:    logger,
	}
}

// Issue creates an invitation and returns the cleartext token. The token is
// 32 random bytes hex-encoded; only its SHA-256 is persisted.
func (s *Service) Issue(ctx context.Context, actor *user.User, dto IssueInvitationDTO) (*IssueResponse, error) {
	decision, err := s.evaluator.Evaluate(ctx, actor, authz.PermUsersInvite, authz.Request{
		OrganizationID: dto.OrganizationID,
	})
	if err != nil {
		return nil, internal.NewInternalError("permission evaluation failed", err)
	}
	if !decision.Allowed {
		return nil, internal.NewForbiddenError(decision.Reason, internal.ErrCodePermissionDenied)
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	token, err := newToken()
	if err != nil {
		return nil, internal.NewInternalError("failed to generate invitation token", err)
	}

	inv := &Invitation{
		ID:             uuid.New(),
		TokenHash:      hashToken(token),
		Email:          dto.Email,
		Role:           dto.Role,
		OrganizationID: dto.OrganizationID,
		LocationIDs:    IDList(dto.LocationIDs),
		IssuedByID:     actor.ID.String(),
		ExpiresAt:      time.Now().Add(s.ttl),
		CreatedAt:      time.Now(),
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		s.logger.Error("failed to create invitation", "error", err, "email", dto.Email)
		return nil, internal.NewInternalError("failed to create invitation", err)
	}

	s.sink.Record(ctx, audit.Entry{
		ActorID:    actor.ID.String(),
		ActorEmail: actor.Email,
		ActorRole:  string(actor.Role),
		Action:     string(authz.PermUsersInvite),
		Resource:   "invitation",
		ResourceID: inv.ID.String(),
		Outcome:    audit.OutcomeSuccess,
		Reason:     "staff invitation issued for role " + dto.Role,
		Severity:   audit.SeverityInfo,
	})

	s.logger.Info("invitation issued", "invitation_id", inv.ID, "email", dto.Email, "role", dto.Role)
	return &IssueResponse{Invitation: inv, Token: token}, nil
}

// Redeem validates a token and burns it. Expiry is checked at redemption
// time, not at issue, and the used_at write is a compare-and-set so two
// concurrent redemptions of the same token cannot both succeed.
func (s *Service) Redeem(ctx context.Context, token string) (*user.StaffGrant, error) {
	inv, err := s.repo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, internal.NewValidationError("invitation token is invalid", internal.ErrCodeInvitationInvalid)
		}
		return nil, internal.NewInternalError("failed to load invitation", err)
	}

	if inv.UsedAt != nil {
		return nil, internal.NewConflictError("invitation has already been used", internal.ErrCodeInvitationUsed)
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, internal.NewValidationError("invitation has expired", internal.ErrCodeInvitationExpired)
	}

	if err := s.repo.MarkUsedCAS(ctx, inv.ID, time.Now()); err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			return nil, internal.NewConflictError("invitation has already been used", internal.ErrCodeInvitationUsed)
		}
		return nil, internal.NewInternalError("failed to redeem invitation", err)
	}

	s.logger.Info("invitation redeemed", "invitation_id", inv.ID, "email", inv.Email, "role", inv.Role)
	return &user.StaffGrant{
		Role:           inv.Role,
		Email:          inv.Email,
		OrganizationID: inv.OrganizationID,
		LocationIDs:    inv.LocationIDs,
	}, nil
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
