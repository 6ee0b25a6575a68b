package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-booking/internal"
)

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*Entry, error)
}

// Service is the audit sink. Writes are fire-and-forget relative to the
// operation being audited: a failed append is logged, never surfaced.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	go func() {
		// Detach from the request context so an audit write survives the
		// request being cancelled after the decision was made.
		writeCtx, cancel := internal.DetachedTimeout(5 * time.Second)
		defer cancel()

		if err := s.repo.Append(writeCtx, &e); err != nil {
			s.logger.Error("failed to append audit entry",
				"error", err,
				"action", e.Action,
				"actor_id", e.ActorID,
				"outcome", e.Outcome)
		}
	}()
}

func (s *Service) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByActor(ctx, actorID, limit, offset)
}
