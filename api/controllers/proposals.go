package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/proposalhub/proposalhub-backend/api/middleware"
	"github.com/proposalhub/proposalhub-backend/api/responses"
	"github.com/proposalhub/proposalhub-backend/api/validators"
	"github.com/proposalhub/proposalhub-backend/internal/proposals"
	"github.com/proposalhub/proposalhub-backend/pkg/auth"
	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

type createProposalRequest struct {
	Title   string  `json:"title" validate:"required,max=200"`
	Summary string  `json:"summary" validate:"max=5000"`
	Budget  string  `json:"budget"`
	DueDate *string `json:"dueDate"`
}

type updateProposalRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Summary *string `json:"summary" validate:"omitempty,max=5000"`
	Budget  *string `json:"budget"`
	DueDate *string `json:"dueDate"`
}

type decideProposalRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"max=2000"`
}

// CreateProposal creates a draft owned by the caller.
func CreateProposal(svc proposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createProposalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := proposals.CreateInput{
			Title:   req.Title,
			Summary: req.Summary,
		}
		if strings.TrimSpace(req.Budget) != "" {
			budget, err := decimal.NewFromString(req.Budget)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid budget"))
				return
			}
			input.Budget = budget
		}
		if req.DueDate != nil {
			due, err := parseDueDate(*req.DueDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.DueDate = due
		}

		dto, err := svc.Create(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// GetProposal returns one proposal, owner or admin only.
func GetProposal(svc proposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposalID, err := proposalParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Get(r.Context(), userID, proposalID, isAdmin(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// ListProposals pages through proposals. Non-admins only see their own.
func ListProposals(svc proposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := proposals.ListInput{OwnerID: userID}
		if isAdmin(r) {
			input.OwnerID = uuid.Nil
			if owner := strings.TrimSpace(r.URL.Query().Get("ownerId")); owner != "" {
				ownerID, err := uuid.Parse(owner)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid ownerId"))
					return
				}
				input.OwnerID = ownerID
			}
		}

		if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
			input.Status = status
		}
		if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
			value, err := strconv.Atoi(limitStr)
			if err != nil || value <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer"))
				return
			}
			input.Limit = value
		}
		if cursor := strings.TrimSpace(r.URL.Query().Get("cursor")); cursor != "" {
			input.Cursor = cursor
		}

		result, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// UpdateProposal edits a draft owned by the caller.
func UpdateProposal(svc proposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposalID, err := proposalParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateProposalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := proposals.UpdateInput{
			Title:   req.Title,
			Summary: req.Summary,
		}
		if req.Budget != nil {
			budget, err := decimal.NewFromString(*req.Budget)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid budget"))
				return
			}
			input.Budget = &budget
		}
		if req.DueDate != nil {
			due, err := parseDueDate(*req.DueDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.DueDate = due
		}

		dto, err := svc.Update(r.Context(), userID, proposalID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// SubmitProposal moves the caller's draft into review.
func SubmitProposal(svc proposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposalID, err := proposalParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Submit(r.Context(), userID, proposalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// DecideProposal approves or rejects a submitted proposal (admin only).
func DecideProposal(svc proposals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviewerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposalID, err := proposalParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req decideProposalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Decide(r.Context(), reviewerID, proposalID, req.Approve, req.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func proposalParam(r *http.Request) (uuid.UUID, error) {
	proposalID, err := uuid.Parse(chi.URLParam(r, "proposalID"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid proposal id")
	}
	return proposalID, nil
}

func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	due, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "dueDate must be RFC3339")
	}
	return &due, nil
}

func isAdmin(r *http.Request) bool {
	return middleware.RoleFromContext(r.Context()) == string(auth.RoleAdmin)
}
