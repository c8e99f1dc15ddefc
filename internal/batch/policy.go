package batch

import (
	"time"

	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

// Decision is the outcome of evaluating one notification for admission.
type Decision int

const (
	// DecisionDeliver flushes immediately, including the triggering item.
	DecisionDeliver Decision = iota
	// DecisionEnqueue holds the item in the recipient's batch.
	DecisionEnqueue
	// DecisionSuppress enqueues the item but blocks flushing until ResumeAt.
	DecisionSuppress
)

func (d Decision) String() string {
	switch d {
	case DecisionDeliver:
		return "deliver"
	case DecisionEnqueue:
		return "enqueue"
	case DecisionSuppress:
		return "suppress"
	default:
		return "unknown"
	}
}

// Evaluation carries the decision and, for suppressions, when flushing may
// resume.
type Evaluation struct {
	Decision Decision
	ResumeAt time.Time
}

// Policy is a pure decision function over notification, batch state and time.
type Policy struct {
	cfg Config
}

// NewPolicy builds a policy with engine defaults applied.
func NewPolicy(cfg Config) Policy {
	return Policy{cfg: cfg.withDefaults()}
}

// Evaluate decides what to do with a notification given the recipient's
// current batch state. pendingLen is the queue length before this item.
func (p Policy) Evaluate(n Notification, pendingLen int, windowStartedAt, now time.Time) Evaluation {
	if n.Priority == enums.PriorityCritical {
		return Evaluation{Decision: DecisionDeliver}
	}

	if resume, suppressed := p.SuppressedUntil(now); suppressed {
		return Evaluation{Decision: DecisionSuppress, ResumeAt: resume}
	}

	// Inclusive size check: reaching the ceiling with this item flushes the
	// whole batch, the new item included.
	if pendingLen+1 >= p.cfg.MaxBatchSize {
		return Evaluation{Decision: DecisionDeliver}
	}

	if pendingLen > 0 && now.Sub(windowStartedAt) >= p.cfg.MaxWindow {
		return Evaluation{Decision: DecisionDeliver}
	}

	return Evaluation{Decision: DecisionEnqueue}
}

// FlushDue re-evaluates a whole batch with the current time, as the scheduler
// does on every reconciliation pass.
func (p Policy) FlushDue(pendingLen int, windowStartedAt, suppressedUntil, now time.Time) bool {
	if pendingLen == 0 {
		return false
	}
	if !suppressedUntil.IsZero() {
		// Suppressed batches flush on the first pass after the quiet
		// window ends.
		return !now.Before(suppressedUntil)
	}
	if _, suppressed := p.SuppressedUntil(now); suppressed {
		return false
	}
	if pendingLen >= p.cfg.MaxBatchSize {
		return true
	}
	return now.Sub(windowStartedAt) >= p.cfg.MaxWindow
}

// SuppressedUntil reports whether non-critical delivery is currently blocked
// and when it resumes. Quiet-hour boundaries are evaluated in the configured
// location; weekend suppression resumes at the next weekday midnight. The two
// are iterated so a weekend that ends inside quiet hours resumes only when
// both have passed.
func (p Policy) SuppressedUntil(now time.Time) (time.Time, bool) {
	local := now.In(p.cfg.Location)
	resume := local
	suppressed := false

	for i := 0; i < 4; i++ {
		if p.cfg.WeekendMode && isWeekend(resume) {
			resume = nextWeekdayStart(resume)
			suppressed = true
			continue
		}
		if p.cfg.QuietHours != nil && p.cfg.QuietHours.Contains(minuteOfDay(resume)) {
			resume = p.quietHoursEnd(resume)
			suppressed = true
			continue
		}
		break
	}

	if !suppressed {
		return time.Time{}, false
	}
	return resume, true
}

func (p Policy) quietHoursEnd(local time.Time) time.Time {
	end := time.Date(local.Year(), local.Month(), local.Day(),
		p.cfg.QuietHours.EndMinute/60, p.cfg.QuietHours.EndMinute%60, 0, 0, local.Location())
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func nextWeekdayStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for {
		day = day.AddDate(0, 0, 1)
		if !isWeekend(day) {
			return day
		}
	}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
