package batch

import (
	"context"
	"time"

	"github.com/proposalhub/proposalhub-backend/pkg/enums"
	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
	"github.com/proposalhub/proposalhub-backend/pkg/metrics"
)

// Params wires a Batcher. Channel and Logger are required; Metrics may be nil.
type Params struct {
	Config  Config
	Channel DeliveryChannel
	Logger  *logger.Logger
	Metrics *metrics.BatchEngineMetrics
}

// Batcher is the single entry point to the notification engine. All state
// lives in memory; a restart loses pending batches.
type Batcher struct {
	cfg     Config
	store   *Store
	policy  Policy
	sched   *scheduler
	logg    *logger.Logger
	metrics *metrics.BatchEngineMetrics
	stats   *counters

	now func() time.Time
}

// PendingFilter narrows Pending results. Zero values match everything.
type PendingFilter struct {
	RecipientKey string
	Category     string
}

// Stats is a point-in-time view of engine activity since startup.
type Stats struct {
	TotalPending    int            `json:"totalPending"`
	PerRecipient    map[string]int `json:"perRecipient"`
	OldestWindowAge time.Duration  `json:"oldestWindowAge"`
	Delivered       int64          `json:"delivered"`
	Suppressed      int64          `json:"suppressed"`
	Retries         int64          `json:"retries"`
}

// NewBatcher builds the engine from its collaborators.
func NewBatcher(p Params) (*Batcher, error) {
	if p.Channel == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "delivery channel required")
	}
	if p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	cfg := p.Config.withDefaults()
	store := NewStore()
	policy := NewPolicy(cfg)
	stats := &counters{}

	b := &Batcher{
		cfg:     cfg,
		store:   store,
		policy:  policy,
		logg:    p.Logger,
		metrics: p.Metrics,
		stats:   stats,
		now:     time.Now,
	}
	b.sched = newScheduler(store, policy, p.Channel, p.Logger, p.Metrics, stats, cfg, func() time.Time { return b.now() })
	return b, nil
}

// Run starts the flush loop and blocks until ctx is canceled.
func (b *Batcher) Run(ctx context.Context) error {
	b.logg.Info(ctx, "notification batcher started")
	return b.sched.Run(ctx)
}

// Add validates and admits one notification. Critical items go straight to
// the delivery channel as single-item digests and are never stored; everything
// else passes through the batch policy.
func (b *Batcher) Add(ctx context.Context, in Input) (Notification, error) {
	now := b.now()
	n, err := newNotification(in, now)
	if err != nil {
		return Notification{}, err
	}

	key := n.RecipientKey()

	if n.Priority == enums.PriorityCritical {
		b.metrics.IncAdmitted(DecisionDeliver.String())
		b.sched.dispatch(ctx, deliveryJob{recipientKey: key, digest: []Notification{n.clone()}, trigger: triggerCritical})
		return n, nil
	}

	var (
		eval    Evaluation
		trigger string
	)
	b.store.withBatch(key, func(batch *recipientBatch) {
		eval = b.policy.Evaluate(n, len(batch.pending), batch.windowStartedAt, now)
		if trigger = triggerSize; len(batch.pending)+1 < b.cfg.MaxBatchSize {
			trigger = triggerWindow
		}
		if len(batch.pending) == 0 {
			batch.windowStartedAt = now
		}
		batch.pending = append(batch.pending, n.clone())
		if eval.Decision == DecisionSuppress {
			batch.suppressedUntil = eval.ResumeAt
		}
	})

	b.metrics.IncAdmitted(eval.Decision.String())

	switch eval.Decision {
	case DecisionSuppress:
		b.stats.suppressed.Add(1)
		b.metrics.IncSuppressed()
		logCtx := b.logg.WithFields(ctx, map[string]any{
			"recipient_key": key,
			"resume_at":     eval.ResumeAt,
		})
		b.logg.Info(logCtx, "notification suppressed until quiet window ends")
	case DecisionDeliver:
		digest, drainErr := b.store.Drain(key)
		if drainErr != nil {
			return Notification{}, drainErr
		}
		if len(digest) > 0 {
			b.sched.dispatch(ctx, deliveryJob{recipientKey: key, digest: digest, trigger: trigger})
		}
	}

	return n, nil
}

// Pending returns copies of queued notifications matching the filter, oldest
// first within each recipient.
func (b *Batcher) Pending(filter PendingFilter) []Notification {
	out := []Notification{}
	for _, snap := range b.store.Snapshot() {
		if filter.RecipientKey != "" && snap.RecipientKey != filter.RecipientKey {
			continue
		}
		for _, n := range snap.Pending {
			if filter.Category != "" && n.Category != filter.Category {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}

// Stats reports current backlog and lifetime counters.
func (b *Batcher) Stats() Stats {
	now := b.now()
	snaps := b.store.Snapshot()

	perRecipient := make(map[string]int, len(snaps))
	total := 0
	var oldest time.Duration
	for _, snap := range snaps {
		if len(snap.Pending) == 0 {
			continue
		}
		perRecipient[snap.RecipientKey] = len(snap.Pending)
		total += len(snap.Pending)
		if age := now.Sub(snap.WindowStartedAt); age > oldest {
			oldest = age
		}
	}

	return Stats{
		TotalPending:    total,
		PerRecipient:    perRecipient,
		OldestWindowAge: oldest,
		Delivered:       b.stats.delivered.Load(),
		Suppressed:      b.stats.suppressed.Load(),
		Retries:         b.stats.retries.Load(),
	}
}

// ForceDeliverAll flushes every pending batch regardless of policy and waits
// for in-flight deliveries to finish. Calling it with an empty store is a
// no-op, so repeated calls are safe.
func (b *Batcher) ForceDeliverAll(ctx context.Context) error {
	var firstErr error
	for _, key := range b.store.Keys() {
		digest, err := b.store.Drain(key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			b.logg.Error(b.logg.WithRecipient(ctx, key), "force flush failed for recipient", err)
			continue
		}
		if len(digest) == 0 {
			continue
		}
		b.sched.deliver(ctx, deliveryJob{recipientKey: key, digest: digest, trigger: triggerForce})
	}
	b.sched.awaitInflight()
	b.metrics.SetPending(b.store.TotalPending())
	return firstErr
}
