package proposals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

func setupProposalsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS proposals (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  title TEXT NOT NULL,
  summary TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  budget NUMERIC NOT NULL DEFAULT 0,
  due_date DATETIME,
  submitted_at DATETIME,
  decided_at DATETIME,
  decided_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedProposal(t *testing.T, db *gorm.DB, ownerID uuid.UUID, status enums.ProposalStatus, createdAt time.Time, due *time.Time) models.Proposal {
	t.Helper()
	row := models.Proposal{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     "Network refresh",
		Summary:   "Replace aging switches",
		Status:    status,
		Budget:    decimal.NewFromInt(1000),
		DueDate:   due,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestRepositoryRoundTrip(t *testing.T) {
	db := setupProposalsTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()

	created := seedProposal(t, db, ownerID, enums.ProposalStatusDraft, time.Now().UTC(), nil)

	found, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, ownerID, found.OwnerID)
	assert.Equal(t, enums.ProposalStatusDraft, found.Status)

	found.Status = enums.ProposalStatusSubmitted
	require.NoError(t, repo.Save(context.Background(), found))

	reloaded, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProposalStatusSubmitted, reloaded.Status)
}

func TestRepositoryFindMissingReturnsNotFound(t *testing.T) {
	db := setupProposalsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListFiltersByOwnerAndStatus(t *testing.T) {
	db := setupProposalsTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	seedProposal(t, db, ownerID, enums.ProposalStatusDraft, base, nil)
	seedProposal(t, db, ownerID, enums.ProposalStatusSubmitted, base.Add(time.Minute), nil)
	seedProposal(t, db, uuid.New(), enums.ProposalStatusDraft, base, nil)

	mine, _, err := repo.List(context.Background(), listProposalsParams{OwnerID: ownerID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	drafts, _, err := repo.List(context.Background(), listProposalsParams{OwnerID: ownerID, Status: enums.ProposalStatusDraft})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, enums.ProposalStatusDraft, drafts[0].Status)

	everything, _, err := repo.List(context.Background(), listProposalsParams{})
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

func TestRepositoryListPaginatesWithCursor(t *testing.T) {
	db := setupProposalsTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		seedProposal(t, db, ownerID, enums.ProposalStatusDraft, base.Add(time.Duration(i)*time.Minute), nil)
	}

	first, cursor, err := repo.List(context.Background(), listProposalsParams{OwnerID: ownerID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)

	second, cursor, err := repo.List(context.Background(), listProposalsParams{OwnerID: ownerID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Nil(t, cursor)
}

func TestRepositoryListDueBetweenSkipsDecidedProposals(t *testing.T) {
	db := setupProposalsTestDB(t)
	repo := NewRepository(db)
	ownerID := uuid.New()
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	soon := base.Add(24 * time.Hour)
	later := base.Add(72 * time.Hour)

	inWindow := seedProposal(t, db, ownerID, enums.ProposalStatusSubmitted, base, &soon)
	seedProposal(t, db, ownerID, enums.ProposalStatusApproved, base, &soon)
	seedProposal(t, db, ownerID, enums.ProposalStatusDraft, base, &later)
	seedProposal(t, db, ownerID, enums.ProposalStatusDraft, base, nil)

	due, err := repo.ListDueBetween(context.Background(), base, base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, inWindow.ID, due[0].ID)
}
