package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents the canonical identity entity.
type User struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email       string     `gorm:"type:text;not null;uniqueIndex"`
	DisplayName string     `gorm:"column:display_name;not null"`
	SystemRole  *string    `gorm:"column:system_role"`
	IsActive    bool       `gorm:"column:is_active;not null;default:true"`
	LastSeenAt  *time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
