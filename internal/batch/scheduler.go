package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proposalhub/proposalhub-backend/pkg/logger"
	"github.com/proposalhub/proposalhub-backend/pkg/metrics"
)

// Flush triggers, used for logs and metrics labels.
const (
	triggerCritical = "critical"
	triggerSize     = "size"
	triggerWindow   = "window"
	triggerForce    = "force"
)

// counters aggregates engine activity for the statistics endpoint.
type counters struct {
	delivered  atomic.Int64
	suppressed atomic.Int64
	retries    atomic.Int64
}

type deliveryJob struct {
	recipientKey string
	digest       []Notification
	trigger      string
}

// scheduler owns the reconciliation loop and the bounded delivery worker
// pool. Draining happens under the store locks; delivery never does.
type scheduler struct {
	store   *Store
	policy  Policy
	channel DeliveryChannel
	logg    *logger.Logger
	metrics *metrics.BatchEngineMetrics
	stats   *counters

	interval time.Duration
	backoff  time.Duration
	workers  int
	now      func() time.Time

	jobs     chan deliveryJob
	inflight sync.WaitGroup
	running  atomic.Bool
}

func newScheduler(store *Store, policy Policy, channel DeliveryChannel, logg *logger.Logger, m *metrics.BatchEngineMetrics, stats *counters, cfg Config, now func() time.Time) *scheduler {
	return &scheduler{
		store:    store,
		policy:   policy,
		channel:  channel,
		logg:     logg,
		metrics:  m,
		stats:    stats,
		interval: cfg.FlushInterval,
		backoff:  cfg.RetryBackoff,
		workers:  cfg.DeliveryWorkers,
		now:      now,
		jobs:     make(chan deliveryJob, cfg.DeliveryWorkers*4),
	}
}

// Run executes reconciliation passes until the context is canceled, keeping
// the worker pool alive for asynchronous deliveries in between.
func (s *scheduler) Run(ctx context.Context) error {
	s.running.Store(true)

	var workers sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					s.drainQueued(context.WithoutCancel(ctx))
					return
				case job := <-s.jobs:
					s.deliver(context.WithoutCancel(ctx), job)
					s.inflight.Done()
				}
			}
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "flush loop context canceled")
			s.running.Store(false)
			workers.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// drainQueued empties whatever is left in the job buffer at shutdown so no
// accepted digest is abandoned.
func (s *scheduler) drainQueued(ctx context.Context) {
	for {
		select {
		case job := <-s.jobs:
			s.deliver(ctx, job)
			s.inflight.Done()
		default:
			return
		}
	}
}

// reconcile re-applies the policy to every batch with the current time and
// flushes the ones that are due.
func (s *scheduler) reconcile(ctx context.Context) {
	start := s.now()

	for _, snap := range s.store.Snapshot() {
		now := s.now()
		if !snap.RetryAt.IsZero() && now.Before(snap.RetryAt) {
			continue
		}
		if !s.policy.FlushDue(len(snap.Pending), snap.WindowStartedAt, snap.SuppressedUntil, now) {
			continue
		}

		digest, err := s.store.Drain(snap.RecipientKey)
		if err != nil {
			// Fatal invariant violation for this recipient only; other
			// batches keep flushing.
			logCtx := s.logg.WithRecipient(ctx, snap.RecipientKey)
			s.logg.Error(logCtx, "batch state corruption detected, aborting flush for recipient", err)
			continue
		}
		if len(digest) == 0 {
			continue
		}
		s.dispatch(ctx, deliveryJob{recipientKey: snap.RecipientKey, digest: digest, trigger: triggerWindow})
	}

	s.metrics.ObserveFlush(s.now().Sub(start))
	s.metrics.SetPending(s.store.TotalPending())
}

// dispatch hands a digest to the worker pool, falling back to synchronous
// delivery when the pool is saturated or not running so digests are never
// dropped.
func (s *scheduler) dispatch(ctx context.Context, job deliveryJob) {
	s.inflight.Add(1)
	if !s.running.Load() {
		s.deliver(ctx, job)
		s.inflight.Done()
		return
	}
	select {
	case s.jobs <- job:
	default:
		s.deliver(ctx, job)
		s.inflight.Done()
	}
}

// deliver pushes one digest through the channel. Failures requeue the digest
// at the head of the recipient's batch with a retry backoff; the original
// caller already got its id, so errors stay local.
func (s *scheduler) deliver(ctx context.Context, job deliveryJob) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"recipient_key": job.recipientKey,
		"digest_size":   len(job.digest),
		"trigger":       job.trigger,
	})

	if err := s.channel.Deliver(ctx, job.recipientKey, job.digest); err != nil {
		retryAt := s.now().Add(s.backoff)
		s.store.Requeue(job.recipientKey, job.digest, retryAt)
		s.stats.retries.Add(1)
		s.metrics.IncRetry()
		s.logg.Error(s.logg.WithField(logCtx, "retry_at", retryAt), "digest delivery failed, requeued", err)
		return
	}

	s.store.MarkDelivered(job.recipientKey, s.now())
	s.stats.delivered.Add(int64(len(job.digest)))
	s.metrics.AddDelivered(job.trigger, len(job.digest))
	s.logg.Info(logCtx, "digest delivered")
}

// awaitInflight blocks until asynchronously dispatched deliveries finish.
func (s *scheduler) awaitInflight() {
	s.inflight.Wait()
}
