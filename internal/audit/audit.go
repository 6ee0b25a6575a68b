package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeSuccess Outcome = "success"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Entry is an immutable, append-only audit record. The application never
// updates or deletes rows; retention is an operational concern.
type Entry struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ActorID    string    `json:"actor_id" gorm:"column:actor_id;index"`
	ActorEmail string    `json:"actor_email" gorm:"column:actor_email"`
	ActorRole  string    `json:"actor_role" gorm:"column:actor_role"`
	Action     string    `json:"action" gorm:"not null"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id" gorm:"column:resource_id"`
	Outcome    Outcome   `json:"outcome" gorm:"not null"`
	Reason     string    `json:"reason"`
	Severity   Severity  `json:"severity"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Entry) TableName() string {
	return "audit_log"
}

// Sink accepts audit entries. Implementations must never let a write failure
// propagate into the caller's decision path.
type Sink interface {
	Record(ctx context.Context, e Entry)
}
