package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  digest_id TEXT NOT NULL,
  type TEXT NOT NULL,
  priority TEXT NOT NULL,
  category TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME NOT NULL
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedNotification(t *testing.T, db *gorm.DB, userID uuid.UUID, createdAt time.Time, category string) models.Notification {
	t.Helper()
	row := models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		DigestID:  uuid.New(),
		Type:      enums.NotificationTypeInfo,
		Priority:  enums.PriorityMedium,
		Category:  category,
		Title:     "title",
		Message:   "message",
		CreatedAt: createdAt,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		seedNotification(t, db, userID, base.Add(time.Duration(i)*time.Minute), "general")
	}
	seedNotification(t, db, uuid.New(), base, "general")

	rows, cursor, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, cursor)
	assert.True(t, rows[0].CreatedAt.After(rows[1].CreatedAt))

	rest, cursor, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Nil(t, cursor)
}

func TestRepositoryListFiltersUnreadAndCategory(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	read := seedNotification(t, db, userID, base, "proposal_status")
	now := base.Add(time.Hour)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", read.ID).UpdateColumn("read_at", now).Error)
	seedNotification(t, db, userID, base.Add(time.Minute), "proposal_status")
	seedNotification(t, db, userID, base.Add(2*time.Minute), "deadline_reminder")

	unread, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	byCategory, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Category: "proposal_status"})
	require.NoError(t, err)
	assert.Len(t, byCategory, 2)
}

func TestRepositoryMarkReadIsScopedAndIdempotent(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	row := seedNotification(t, db, userID, time.Now().UTC(), "general")

	mark, err := repo.MarkRead(context.Background(), userID, row.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, mark.Updated)
	assert.True(t, mark.Found)

	again, err := repo.MarkRead(context.Background(), userID, row.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, again.Updated)
	assert.True(t, again.Found)

	other, err := repo.MarkRead(context.Background(), uuid.New(), row.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, other.Updated)
	assert.False(t, other.Found)
}

func TestRepositoryMarkAllReadAndCountUnread(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	base := time.Now().UTC()

	seedNotification(t, db, userID, base, "general")
	seedNotification(t, db, userID, base.Add(time.Minute), "general")
	seedNotification(t, db, uuid.New(), base, "general")

	count, err := repo.CountUnread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	updated, err := repo.MarkAllRead(context.Background(), userID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	count, err = repo.CountUnread(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRepositoryDeleteOlderThan(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)
	userID := uuid.New()
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedNotification(t, db, userID, cutoff.Add(-48*time.Hour), "general")
	seedNotification(t, db, userID, cutoff.Add(-time.Hour), "general")
	kept := seedNotification(t, db, userID, cutoff.Add(time.Hour), "general")

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	rows, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, kept.ID, rows[0].ID)
}
