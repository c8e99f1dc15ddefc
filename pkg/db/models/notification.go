package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

// Notification stores delivered in-app notification payloads scoped to users.
// Rows are written by the batching engine's inbox channel after a digest
// flushes; pending (undelivered) notifications never touch this table.
type Notification struct {
	ID        uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID                  `gorm:"type:uuid;not null;index"`
	DigestID  uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Type      enums.NotificationType     `gorm:"type:notification_type;not null"`
	Priority  enums.NotificationPriority `gorm:"type:notification_priority;not null"`
	Category  string                     `gorm:"type:text;not null"`
	Title     string                     `gorm:"type:text;not null"`
	Message   string                     `gorm:"type:text;not null"`
	Link      *string                    `gorm:"type:text"`
	ReadAt    *time.Time                 `gorm:"type:timestamptz"`
	CreatedAt time.Time                  `gorm:"type:timestamptz;not null"`
}
