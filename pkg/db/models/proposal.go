package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

// Proposal is the core project document moving through the review workflow.
type Proposal struct {
	ID          uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID     uuid.UUID            `gorm:"type:uuid;not null;index"`
	Title       string               `gorm:"type:text;not null"`
	Summary     string               `gorm:"type:text;not null"`
	Status      enums.ProposalStatus `gorm:"type:proposal_status;not null;default:'draft'"`
	Budget      decimal.Decimal      `gorm:"type:numeric(14,2);not null;default:0"`
	DueDate     *time.Time           `gorm:"type:timestamptz"`
	SubmittedAt *time.Time           `gorm:"type:timestamptz"`
	DecidedAt   *time.Time           `gorm:"type:timestamptz"`
	DecidedBy   *uuid.UUID           `gorm:"type:uuid"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
