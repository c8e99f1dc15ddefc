package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

const defaultDeadlineWindow = 48 * time.Hour

type deadlineReminder interface {
	RemindUpcomingDeadlines(ctx context.Context, window time.Duration) (int, error)
}

// DeadlineReminderJobParams configure the proposal deadline job.
type DeadlineReminderJobParams struct {
	Logger    *logger.Logger
	Proposals deadlineReminder
	Window    time.Duration
}

// NewDeadlineReminderJob queues reminders for proposals nearing their due date.
func NewDeadlineReminderJob(params DeadlineReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Proposals == nil {
		return nil, fmt.Errorf("proposals service required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultDeadlineWindow
	}
	return &deadlineReminderJob{
		logg:      params.Logger,
		proposals: params.Proposals,
		window:    window,
	}, nil
}

type deadlineReminderJob struct {
	logg      *logger.Logger
	proposals deadlineReminder
	window    time.Duration
}

func (j *deadlineReminderJob) Name() string { return "proposal-deadline-reminder" }

func (j *deadlineReminderJob) Run(ctx context.Context) error {
	queued, err := j.proposals.RemindUpcomingDeadlines(ctx, j.window)
	if err != nil {
		return fmt.Errorf("deadline reminders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"window":    j.window.String(),
		"reminders": queued,
	})
	j.logg.Info(logCtx, "deadline reminder scan complete")
	return nil
}
