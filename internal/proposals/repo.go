package proposals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	"github.com/proposalhub/proposalhub-backend/pkg/enums"
	"github.com/proposalhub/proposalhub-backend/pkg/pagination"
)

// Repository exposes persistence helpers for proposals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, proposal *models.Proposal) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	Save(ctx context.Context, proposal *models.Proposal) error
	List(ctx context.Context, params listProposalsParams) ([]models.Proposal, *pagination.Cursor, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]models.Proposal, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a proposals repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listProposalsParams struct {
	OwnerID uuid.UUID
	Status  enums.ProposalStatus
	Limit   int
	Cursor  *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := r.db.WithContext(ctx).First(&proposal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *repositoryImpl) Save(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Save(proposal).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listProposalsParams) ([]models.Proposal, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Proposal{})
	if params.OwnerID != uuid.Nil {
		query = query.Where("owner_id = ?", params.OwnerID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var proposals []models.Proposal
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&proposals).Error; err != nil {
		return nil, nil, err
	}

	if len(proposals) > normalized {
		next := proposals[normalized]
		proposals = proposals[:normalized]
		return proposals, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return proposals, nil, nil
}

func (r *repositoryImpl) ListDueBetween(ctx context.Context, from, to time.Time) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date >= ? AND due_date < ?", from, to).
		Where("status IN ?", []enums.ProposalStatus{enums.ProposalStatusDraft, enums.ProposalStatusSubmitted}).
		Order("due_date ASC").
		Find(&proposals).Error
	if err != nil {
		return nil, err
	}
	return proposals, nil
}
