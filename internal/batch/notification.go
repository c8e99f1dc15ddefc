package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/pkg/enums"
	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
)

// Metadata keys the engine interprets; everything else is opaque to it.
const (
	MetaUserID    = "user_id"
	MetaProjectID = "project_id"
)

// Notification is an immutable event record. Once admitted its content never
// changes; only its position (pending vs delivered) moves.
type Notification struct {
	ID        uuid.UUID                  `json:"id"`
	Type      enums.NotificationType     `json:"type"`
	Priority  enums.NotificationPriority `json:"priority"`
	Category  string                     `json:"category"`
	Title     string                     `json:"title"`
	Message   string                     `json:"message"`
	Metadata  map[string]string          `json:"metadata,omitempty"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// Input is the caller-facing payload for Batcher.Add.
type Input struct {
	Type     string
	Priority string
	Category string
	Title    string
	Message  string
	Metadata map[string]string
}

func newNotification(in Input, now time.Time) (Notification, error) {
	title := strings.TrimSpace(in.Title)
	message := strings.TrimSpace(in.Message)
	if title == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "notification title is required")
	}
	if message == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "notification message is required")
	}

	metadata := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if strings.TrimSpace(metadata[MetaUserID]) == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "metadata user_id is required")
	}

	// Unknown types and categories fall back to safe defaults instead of
	// rejecting the event.
	notifType, err := enums.ParseNotificationType(strings.TrimSpace(in.Type))
	if err != nil {
		notifType = enums.NotificationTypeInfo
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = enums.DefaultNotificationCategory
	}

	priority := enums.PriorityMedium
	if raw := strings.TrimSpace(in.Priority); raw != "" {
		parsed, err := enums.ParseNotificationPriority(raw)
		if err != nil {
			return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid priority")
		}
		priority = parsed
	}

	return Notification{
		ID:        uuid.New(),
		Type:      notifType,
		Priority:  priority,
		Category:  category,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: now,
	}, nil
}

// RecipientKey groups notifications destined for the same consumer. Project
// scoping is optional and widens the key.
func (n Notification) RecipientKey() string {
	user := n.Metadata[MetaUserID]
	if project := n.Metadata[MetaProjectID]; project != "" {
		return fmt.Sprintf("user:%s:project:%s", user, project)
	}
	return "user:" + user
}

// UserID returns the recipient user identifier carried in metadata.
func (n Notification) UserID() string {
	return n.Metadata[MetaUserID]
}

func (n Notification) clone() Notification {
	out := n
	if n.Metadata != nil {
		out.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func cloneAll(items []Notification) []Notification {
	if len(items) == 0 {
		return nil
	}
	out := make([]Notification, len(items))
	for i, item := range items {
		out[i] = item.clone()
	}
	return out
}
