package proposals

import (
	"time"

	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

// ProposalDTO is the API-facing shape of a proposal.
type ProposalDTO struct {
	ID          uuid.UUID            `json:"id"`
	OwnerID     uuid.UUID            `json:"ownerId"`
	Title       string               `json:"title"`
	Summary     string               `json:"summary"`
	Status      enums.ProposalStatus `json:"status"`
	Budget      string               `json:"budget"`
	DueDate     *time.Time           `json:"dueDate,omitempty"`
	SubmittedAt *time.Time           `json:"submittedAt,omitempty"`
	DecidedAt   *time.Time           `json:"decidedAt,omitempty"`
	DecidedBy   *uuid.UUID           `json:"decidedBy,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func toDTO(p *models.Proposal) *ProposalDTO {
	return &ProposalDTO{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Summary:     p.Summary,
		Status:      p.Status,
		Budget:      p.Budget.StringFixed(2),
		DueDate:     p.DueDate,
		SubmittedAt: p.SubmittedAt,
		DecidedAt:   p.DecidedAt,
		DecidedBy:   p.DecidedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
