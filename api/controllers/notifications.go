package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/api/middleware"
	"github.com/proposalhub/proposalhub-backend/api/responses"
	"github.com/proposalhub/proposalhub-backend/api/validators"
	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/internal/notifications"
	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

// Batcher is the engine surface the API layer depends on.
type Batcher interface {
	Add(ctx context.Context, in batch.Input) (batch.Notification, error)
	Pending(filter batch.PendingFilter) []batch.Notification
	Stats() batch.Stats
	ForceDeliverAll(ctx context.Context) error
}

type createNotificationRequest struct {
	Type     string            `json:"type"`
	Priority string            `json:"priority"`
	Category string            `json:"category"`
	Title    string            `json:"title" validate:"required,max=200"`
	Message  string            `json:"message" validate:"required,max=2000"`
	Metadata map[string]string `json:"metadata"`
}

// CreateNotification admits one notification into the batching engine.
func CreateNotification(b Batcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batcher unavailable"))
			return
		}

		var req createNotificationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metadata := make(map[string]string, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		// Unless the caller targets someone explicitly, notify themselves.
		if strings.TrimSpace(metadata[batch.MetaUserID]) == "" {
			metadata[batch.MetaUserID] = middleware.UserIDFromContext(r.Context())
		}

		notification, err := b.Add(r.Context(), batch.Input{
			Type:     req.Type,
			Priority: req.Priority,
			Category: req.Category,
			Title:    req.Title,
			Message:  req.Message,
			Metadata: metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, notification)
	}
}

// ListNotifications returns the caller's paginated inbox.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := notifications.ListParams{UserID: userID}

		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			params.Limit = value
		}

		if cursor := strings.TrimSpace(r.URL.Query().Get("cursor")); cursor != "" {
			params.Cursor = cursor
		}

		if unread := strings.TrimSpace(r.URL.Query().Get("unreadOnly")); unread != "" {
			value, err := strconv.ParseBool(unread)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unreadOnly value"))
				return
			}
			params.UnreadOnly = value
		}

		if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
			params.Category = category
		}

		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// UnreadNotificationCount returns the caller's unread badge count.
func UnreadNotificationCount(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		count, err := svc.UnreadCount(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"unread": count})
	}
}

// MarkNotificationRead marks one of the caller's notifications as read.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		notificationID, err := uuid.Parse(chi.URLParam(r, "notificationID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification id"))
			return
		}

		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "read"})
	}
}

// MarkAllNotificationsRead marks the caller's whole inbox as read.
func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		count, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": count})
	}
}

// PendingNotifications exposes the engine backlog to operators.
func PendingNotifications(b Batcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batcher unavailable"))
			return
		}

		filter := batch.PendingFilter{
			RecipientKey: strings.TrimSpace(r.URL.Query().Get("recipientKey")),
			Category:     strings.TrimSpace(r.URL.Query().Get("category")),
		}
		responses.WriteSuccess(w, map[string]any{"items": b.Pending(filter)})
	}
}

// BatchStats exposes engine counters to operators.
func BatchStats(b Batcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batcher unavailable"))
			return
		}
		responses.WriteSuccess(w, b.Stats())
	}
}

// FlushNotifications forces every pending batch out, regardless of policy.
func FlushNotifications(b Batcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batcher unavailable"))
			return
		}
		if err := b.ForceDeliverAll(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, b.Stats())
	}
}

// ClearNotifications drains the engine like a flush but leaves an audit
// trail naming the operator who asked for it.
func ClearNotifications(b Batcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "batcher unavailable"))
			return
		}

		before := b.Stats()
		if err := b.ForceDeliverAll(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"operator":       middleware.UserIDFromContext(r.Context()),
			"clearedPending": before.TotalPending,
		})
		logg.Info(ctx, "administrative clear of the notification backlog")

		responses.WriteSuccess(w, b.Stats())
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}
