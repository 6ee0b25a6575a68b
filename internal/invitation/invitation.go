package invitation

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IDList stores a set of location ids as a JSON column. A NULL column scans
// to a nil slice, which is how unrestricted SUPER_ADMIN invitations are
// represented.
type IDList []string

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported type %T for IDList", value)
}

// Invitation is a single-use, expiring token that entitles one email address
// to a staff account with a fixed role and location set. Only the SHA-256 of
// the token is stored; the cleartext leaves the system once, in the issue
// response.
type Invitation struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	TokenHash      string     `json:"-" gorm:"column:token_hash;uniqueIndex;not null"`
	Email          string     `json:"email" gorm:"not null"`
	Role           string     `json:"role" gorm:"not null"`
	OrganizationID string     `json:"organization_id" gorm:"column:organization_id;not null"`
	LocationIDs    IDList     `json:"location_ids" gorm:"column:location_ids;type:jsonb"`
	IssuedByID     string     `json:"issued_by" gorm:"column:issued_by"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt         *time.Time `json:"used_at,omitempty" gorm:"column:used_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Invitation) TableName() string {
	return "invitations"
}

var (
	ErrNotFound = errors.New("invitation not found")

	// ErrAlreadyUsed is returned when the used_at compare-and-set matches no
	// row, meaning another request redeemed the token first.
	ErrAlreadyUsed = errors.New("invitation already used")
)
