package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/clinic-booking/internal/invitation"
)

type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) invitation.Repository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *InvitationRepository) GetByTokenHash(ctx context.Context, hash string) (*invitation.Invitation, error) {
	var inv invitation.Invitation
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invitation.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) MarkUsedCAS(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&invitation.Invitation{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return invitation.ErrAlreadyUsed
	}
	return nil
}
