package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clinicore/clinic-booking/internal/doctor"
)

// DoctorRepository implements the doctor.Repository interface using GORM
type DoctorRepository struct {
	db *gorm.DB
}

func NewDoctorRepository(db *gorm.DB) doctor.Repository {
	return &DoctorRepository{db: db}
}

func (r *DoctorRepository) Create(ctx context.Context, d *doctor.Doctor) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *DoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	var d doctor.Doctor
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, doctor.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DoctorRepository) GetByEmail(ctx context.Context, email string) (*doctor.Doctor, error) {
	var d doctor.Doctor
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, doctor.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *DoctorRepository) Update(ctx context.Context, d *doctor.Doctor) error {
	d.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *DoctorRepository) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]*doctor.Doctor, error) {
	var doctors []*doctor.Doctor
	err := r.db.WithContext(ctx).
		Where("location_id = ? AND is_active = ?", locationID, true).
		Order("name ASC").
		Find(&doctors).Error
	return doctors, err
}
