package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/clinic-booking/internal/organization"
)

// OrganizationRepository implements the organization.Repository interface using GORM
type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) organization.Repository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) CreateOrganization(ctx context.Context, org *organization.Organization) error {
	err := r.db.WithContext(ctx).Create(org).Error
	if err != nil && isUniqueViolation(err) {
		return organization.ErrDuplicateFiscalCode
	}
	return err
}

func (r *OrganizationRepository) GetOrganization(ctx context.Context, id uuid.UUID) (*organization.Organization, error) {
	var org organization.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrganizationRepository) CreateLocation(ctx context.Context, loc *organization.Location) error {
	return r.db.WithContext(ctx).Create(loc).Error
}

func (r *OrganizationRepository) GetLocation(ctx context.Context, id uuid.UUID) (*organization.Location, error) {
	var loc organization.Location
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, organization.ErrLocationNotFound
		}
		return nil, err
	}
	return &loc, nil
}

func (r *OrganizationRepository) UpdateLocation(ctx context.Context, loc *organization.Location) error {
	loc.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(loc).Error
}

func (r *OrganizationRepository) ListLocations(ctx context.Context, organizationID uuid.UUID) ([]*organization.Location, error) {
	var locations []*organization.Location
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at ASC").
		Find(&locations).Error
	return locations, err
}

func (r *OrganizationRepository) ActiveLocationIDs(ctx context.Context, organizationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&organization.Location{}).
		Where("organization_id = ? AND is_active = ?", organizationID, true).
		Pluck("id", &ids).Error
	return ids, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value")
}
