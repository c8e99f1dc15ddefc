package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	"github.com/proposalhub/proposalhub-backend/pkg/enums"
	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
	"github.com/proposalhub/proposalhub-backend/pkg/pagination"
)

// Service exposes proposal workflow operations.
type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*ProposalDTO, error)
	Get(ctx context.Context, userID, proposalID uuid.UUID, isAdmin bool) (*ProposalDTO, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	Update(ctx context.Context, ownerID, proposalID uuid.UUID, input UpdateInput) (*ProposalDTO, error)
	Submit(ctx context.Context, ownerID, proposalID uuid.UUID) (*ProposalDTO, error)
	Decide(ctx context.Context, reviewerID, proposalID uuid.UUID, approve bool, note string) (*ProposalDTO, error)
	RemindUpcomingDeadlines(ctx context.Context, window time.Duration) (int, error)
}

// notificationSink is the slice of the batching engine the workflow needs.
type notificationSink interface {
	Add(ctx context.Context, in batch.Input) (batch.Notification, error)
}

// CreateInput holds the validated payload to create a draft proposal.
type CreateInput struct {
	Title   string
	Summary string
	Budget  decimal.Decimal
	DueDate *time.Time
}

// UpdateInput holds optional mutation values for a draft proposal.
type UpdateInput struct {
	Title   *string
	Summary *string
	Budget  *decimal.Decimal
	DueDate *time.Time
}

// ListInput configures proposal listing.
type ListInput struct {
	OwnerID uuid.UUID
	Status  string
	Limit   int
	Cursor  string
}

// ListResult wraps a page of proposals and the next cursor.
type ListResult struct {
	Items  []ProposalDTO `json:"items"`
	Cursor string        `json:"cursor"`
}

type service struct {
	repo Repository
	sink notificationSink
	logg *logger.Logger
}

// NewService wires proposal workflow dependencies.
func NewService(repo Repository, sink notificationSink, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "proposals repository required")
	}
	if sink == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification sink required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, sink: sink, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*ProposalDTO, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.Budget.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget must not be negative")
	}

	proposal := &models.Proposal{
		OwnerID: ownerID,
		Title:   title,
		Summary: strings.TrimSpace(input.Summary),
		Status:  enums.ProposalStatusDraft,
		Budget:  input.Budget,
		DueDate: input.DueDate,
	}
	if err := s.repo.Create(ctx, proposal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create proposal")
	}

	logCtx := s.logg.WithProposalID(ctx, proposal.ID.String())
	s.logg.Info(logCtx, "proposal created")
	return toDTO(proposal), nil
}

func (s *service) Get(ctx context.Context, userID, proposalID uuid.UUID, isAdmin bool) (*ProposalDTO, error) {
	proposal, err := s.load(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && proposal.OwnerID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the proposal owner")
	}
	return toDTO(proposal), nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	params := listProposalsParams{
		OwnerID: input.OwnerID,
		Limit:   input.Limit,
	}
	if input.Status != "" {
		status, err := enums.ParseProposalStatus(input.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = status
	}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list proposals")
	}

	items := make([]ProposalDTO, 0, len(rows))
	for i := range rows {
		items = append(items, *toDTO(&rows[i]))
	}
	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) Update(ctx context.Context, ownerID, proposalID uuid.UUID, input UpdateInput) (*ProposalDTO, error) {
	proposal, err := s.load(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the proposal owner")
	}
	if proposal.Status != enums.ProposalStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only draft proposals can be edited")
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
		}
		proposal.Title = title
	}
	if input.Summary != nil {
		proposal.Summary = strings.TrimSpace(*input.Summary)
	}
	if input.Budget != nil {
		if input.Budget.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget must not be negative")
		}
		proposal.Budget = *input.Budget
	}
	if input.DueDate != nil {
		proposal.DueDate = input.DueDate
	}

	if err := s.repo.Save(ctx, proposal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update proposal")
	}
	return toDTO(proposal), nil
}

func (s *service) Submit(ctx context.Context, ownerID, proposalID uuid.UUID) (*ProposalDTO, error) {
	proposal, err := s.load(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the proposal owner")
	}
	if !proposal.Status.CanTransitionTo(enums.ProposalStatusSubmitted) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot submit a %s proposal", proposal.Status))
	}

	now := time.Now().UTC()
	proposal.Status = enums.ProposalStatusSubmitted
	proposal.SubmittedAt = &now
	if err := s.repo.Save(ctx, proposal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit proposal")
	}

	s.notify(ctx, batch.Input{
		Type:     string(enums.NotificationTypeProposalStatus),
		Priority: string(enums.PriorityLow),
		Category: "proposals",
		Title:    "Proposal submitted",
		Message:  fmt.Sprintf("%q was submitted for review.", proposal.Title),
		Metadata: proposalMeta(proposal),
	})

	s.logg.Info(s.logg.WithProposalID(ctx, proposal.ID.String()), "proposal submitted")
	return toDTO(proposal), nil
}

func (s *service) Decide(ctx context.Context, reviewerID, proposalID uuid.UUID, approve bool, note string) (*ProposalDTO, error) {
	if reviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id required")
	}
	proposal, err := s.load(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	next := enums.ProposalStatusApproved
	if !approve {
		next = enums.ProposalStatusRejected
	}
	if !proposal.Status.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move a %s proposal to %s", proposal.Status, next))
	}

	now := time.Now().UTC()
	proposal.Status = next
	proposal.DecidedAt = &now
	proposal.DecidedBy = &reviewerID
	if err := s.repo.Save(ctx, proposal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide proposal")
	}

	title := "Proposal approved"
	message := fmt.Sprintf("%q was approved.", proposal.Title)
	priority := enums.PriorityHigh
	if !approve {
		title = "Proposal rejected"
		message = fmt.Sprintf("%q was rejected.", proposal.Title)
	}
	if note = strings.TrimSpace(note); note != "" {
		message = fmt.Sprintf("%s Reviewer note: %s", message, note)
	}

	s.notify(ctx, batch.Input{
		Type:     string(enums.NotificationTypeProposalStatus),
		Priority: string(priority),
		Category: "proposals",
		Title:    title,
		Message:  message,
		Metadata: proposalMeta(proposal),
	})

	s.logg.Info(s.logg.WithProposalID(ctx, proposal.ID.String()), "proposal decided")
	return toDTO(proposal), nil
}

// RemindUpcomingDeadlines emits a reminder for every undecided proposal whose
// due date falls inside the window. Returns the number of reminders queued.
func (s *service) RemindUpcomingDeadlines(ctx context.Context, window time.Duration) (int, error) {
	now := time.Now().UTC()
	proposals, err := s.repo.ListDueBetween(ctx, now, now.Add(window))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan upcoming deadlines")
	}

	queued := 0
	for i := range proposals {
		p := &proposals[i]
		s.notify(ctx, batch.Input{
			Type:     string(enums.NotificationTypeDeadlineReminder),
			Priority: string(enums.PriorityHigh),
			Category: "proposals",
			Title:    "Deadline approaching",
			Message:  fmt.Sprintf("%q is due %s.", p.Title, p.DueDate.Format("Jan 2 15:04 MST")),
			Metadata: proposalMeta(p),
		})
		queued++
	}
	return queued, nil
}

// notify hands an event to the batching engine. Notification failures never
// fail the workflow operation that produced them.
func (s *service) notify(ctx context.Context, in batch.Input) {
	if _, err := s.sink.Add(ctx, in); err != nil {
		s.logg.Error(ctx, "queue proposal notification", err)
	}
}

func (s *service) load(ctx context.Context, proposalID uuid.UUID) (*models.Proposal, error) {
	if proposalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proposal id required")
	}
	proposal, err := s.repo.FindByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "proposal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proposal")
	}
	return proposal, nil
}

func proposalMeta(p *models.Proposal) map[string]string {
	return map[string]string{
		batch.MetaUserID:    p.OwnerID.String(),
		batch.MetaProjectID: p.ID.String(),
		"link":              "/proposals/" + p.ID.String(),
	}
}
