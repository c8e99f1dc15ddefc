package batch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

type recordedDigest struct {
	recipientKey string
	items        []Notification
}

type fakeChannel struct {
	mu       sync.Mutex
	digests  []recordedDigest
	failNext int
}

func (f *fakeChannel) Deliver(_ context.Context, recipientKey string, digest []Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return pkgerrors.New(pkgerrors.CodeDelivery, "channel down")
	}
	copied := make([]Notification, len(digest))
	copy(copied, digest)
	f.digests = append(f.digests, recordedDigest{recipientKey: recipientKey, items: copied})
	return nil
}

func (f *fakeChannel) all() []recordedDigest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedDigest, len(f.digests))
	copy(out, f.digests)
	return out
}

func (f *fakeChannel) itemCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, d := range f.digests {
		total += len(d.items)
	}
	return total
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestBatcher(t *testing.T, cfg Config, channel *fakeChannel) (*Batcher, *fakeClock) {
	t.Helper()
	b, err := NewBatcher(Params{
		Config:  cfg,
		Channel: channel,
		Logger:  logger.New(logger.Options{ServiceName: "batch-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("construct batcher: %v", err)
	}
	clk := &fakeClock{t: time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)}
	b.now = clk.Now
	return b, clk
}

func mediumInput(userID, title string) Input {
	return Input{
		Type:     "info",
		Priority: "medium",
		Title:    title,
		Message:  "message body",
		Metadata: map[string]string{MetaUserID: userID},
	}
}

func TestAddCriticalBypassesBatching(t *testing.T) {
	channel := &fakeChannel{}
	b, _ := newTestBatcher(t, Config{MaxBatchSize: 10, MaxWindow: 5 * time.Minute}, channel)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.Add(ctx, mediumInput("u1", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("add medium: %v", err)
		}
	}

	in := mediumInput("u1", "urgent")
	in.Priority = "critical"
	if _, err := b.Add(ctx, in); err != nil {
		t.Fatalf("add critical: %v", err)
	}

	digests := channel.all()
	if len(digests) != 1 || len(digests[0].items) != 1 {
		t.Fatalf("expected one single-item digest, got %+v", digests)
	}
	if digests[0].items[0].Title != "urgent" {
		t.Fatalf("wrong item delivered: %s", digests[0].items[0].Title)
	}
	if pending := b.Pending(PendingFilter{}); len(pending) != 2 {
		t.Fatalf("critical must never enter pending, got %d pending", len(pending))
	}
}

func TestAddFlushesAtBatchSizeInFIFOOrder(t *testing.T) {
	channel := &fakeChannel{}
	b, _ := newTestBatcher(t, Config{MaxBatchSize: 3, MaxWindow: 5 * time.Minute}, channel)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.Add(ctx, mediumInput("u1", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	digests := channel.all()
	if len(digests) != 1 {
		t.Fatalf("expected exactly one digest, got %d", len(digests))
	}
	if len(digests[0].items) != 3 {
		t.Fatalf("digest must include the triggering item, got %d items", len(digests[0].items))
	}
	for i, item := range digests[0].items {
		if want := fmt.Sprintf("m%d", i); item.Title != want {
			t.Fatalf("digest order broken at %d: got %s want %s", i, item.Title, want)
		}
	}
	if keys := b.store.Keys(); len(keys) != 0 {
		t.Fatalf("batch entry must be removed after flush, found %v", keys)
	}
	if stats := b.Stats(); stats.Delivered != 3 || stats.TotalPending != 0 {
		t.Fatalf("unexpected stats after flush: %+v", stats)
	}
}

func TestReconcileFlushesExpiredWindow(t *testing.T) {
	channel := &fakeChannel{}
	b, clk := newTestBatcher(t, Config{MaxBatchSize: 10, MaxWindow: time.Minute}, channel)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.Add(ctx, mediumInput("u1", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if len(channel.all()) != 0 {
		t.Fatal("nothing should flush before the window expires")
	}

	clk.Advance(61 * time.Second)
	b.sched.reconcile(ctx)

	digests := channel.all()
	if len(digests) != 1 || len(digests[0].items) != 3 {
		t.Fatalf("expected one digest of 3 after window expiry, got %+v", digests)
	}
	for i, item := range digests[0].items {
		if want := fmt.Sprintf("m%d", i); item.Title != want {
			t.Fatalf("digest order broken at %d: got %s", i, item.Title)
		}
	}
	if pending := b.Pending(PendingFilter{}); len(pending) != 0 {
		t.Fatalf("expected empty backlog after flush, got %d", len(pending))
	}
}

func TestQuietHoursSuppressionAndResume(t *testing.T) {
	channel := &fakeChannel{}
	b, clk := newTestBatcher(t, Config{
		MaxBatchSize: 10,
		MaxWindow:    5 * time.Minute,
		QuietHours:   &QuietHours{StartMinute: 22 * 60, EndMinute: 7 * 60},
	}, channel)
	ctx := context.Background()

	clk.Set(time.Date(2026, 1, 7, 23, 0, 0, 0, time.UTC))

	if _, err := b.Add(ctx, mediumInput("u1", "night owl")); err != nil {
		t.Fatalf("add medium: %v", err)
	}
	if len(channel.all()) != 0 {
		t.Fatal("non-critical notifications must not deliver during quiet hours")
	}
	if stats := b.Stats(); stats.Suppressed != 1 || stats.TotalPending != 1 {
		t.Fatalf("unexpected stats during quiet hours: %+v", stats)
	}

	urgent := mediumInput("u1", "pager")
	urgent.Priority = "critical"
	if _, err := b.Add(ctx, urgent); err != nil {
		t.Fatalf("add critical: %v", err)
	}
	if got := channel.itemCount(); got != 1 {
		t.Fatalf("critical must deliver during quiet hours, delivered %d", got)
	}

	// First reconciliation pass after the quiet window ends.
	clk.Set(time.Date(2026, 1, 8, 7, 5, 0, 0, time.UTC))
	b.sched.reconcile(ctx)

	digests := channel.all()
	if len(digests) != 2 {
		t.Fatalf("expected suppressed batch to flush after quiet hours, got %d digests", len(digests))
	}
	last := digests[len(digests)-1]
	if len(last.items) != 1 || last.items[0].Title != "night owl" {
		t.Fatalf("wrong digest after resume: %+v", last)
	}
}

func TestDeliveryFailureRequeuesAndRetries(t *testing.T) {
	channel := &fakeChannel{failNext: 1}
	b, clk := newTestBatcher(t, Config{
		MaxBatchSize: 2,
		MaxWindow:    5 * time.Minute,
		RetryBackoff: 30 * time.Second,
	}, channel)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.Add(ctx, mediumInput("u1", fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	if len(channel.all()) != 0 {
		t.Fatal("failed delivery must not be recorded")
	}
	if stats := b.Stats(); stats.Retries != 1 || stats.TotalPending != 2 {
		t.Fatalf("unexpected stats after failure: %+v", stats)
	}

	// Backoff not elapsed yet.
	b.sched.reconcile(ctx)
	if len(channel.all()) != 0 {
		t.Fatal("retry must wait for the backoff to elapse")
	}

	clk.Advance(31 * time.Second)
	b.sched.reconcile(ctx)

	digests := channel.all()
	if len(digests) != 1 || len(digests[0].items) != 2 {
		t.Fatalf("expected full digest on retry, got %+v", digests)
	}
	for i, item := range digests[0].items {
		if want := fmt.Sprintf("m%d", i); item.Title != want {
			t.Fatalf("retry broke digest order at %d: got %s", i, item.Title)
		}
	}
}

func TestForceDeliverAllIsIdempotent(t *testing.T) {
	channel := &fakeChannel{}
	b, _ := newTestBatcher(t, Config{MaxBatchSize: 10, MaxWindow: 5 * time.Minute}, channel)
	ctx := context.Background()

	for _, user := range []string{"u1", "u1", "u2"} {
		if _, err := b.Add(ctx, mediumInput(user, "note")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if err := b.ForceDeliverAll(ctx); err != nil {
		t.Fatalf("force deliver: %v", err)
	}
	if got := channel.itemCount(); got != 3 {
		t.Fatalf("expected 3 items delivered, got %d", got)
	}
	if pending := b.Pending(PendingFilter{}); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}

	if err := b.ForceDeliverAll(ctx); err != nil {
		t.Fatalf("second force deliver: %v", err)
	}
	if got := channel.itemCount(); got != 3 {
		t.Fatalf("second force deliver must be a no-op, got %d items", got)
	}
}

func TestConcurrentAddsAreFullyAccounted(t *testing.T) {
	channel := &fakeChannel{}
	b, _ := newTestBatcher(t, Config{MaxBatchSize: 5, MaxWindow: time.Hour}, channel)
	ctx := context.Background()

	const users = 10
	const perUser = 10

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(u, i int) {
				defer wg.Done()
				if _, err := b.Add(ctx, mediumInput(fmt.Sprintf("u%d", u), fmt.Sprintf("m%d", i))); err != nil {
					t.Errorf("concurrent add: %v", err)
				}
			}(u, i)
		}
	}
	wg.Wait()
	b.sched.awaitInflight()

	delivered := channel.itemCount()
	pending := len(b.Pending(PendingFilter{}))
	if delivered+pending != users*perUser {
		t.Fatalf("lost notifications: delivered=%d pending=%d want total=%d", delivered, pending, users*perUser)
	}
}

func TestPendingFilters(t *testing.T) {
	channel := &fakeChannel{}
	b, _ := newTestBatcher(t, Config{MaxBatchSize: 10, MaxWindow: time.Hour}, channel)
	ctx := context.Background()

	billing := mediumInput("u1", "invoice")
	billing.Category = "billing"
	if _, err := b.Add(ctx, billing); err != nil {
		t.Fatalf("add billing: %v", err)
	}
	if _, err := b.Add(ctx, mediumInput("u1", "general")); err != nil {
		t.Fatalf("add general: %v", err)
	}
	if _, err := b.Add(ctx, mediumInput("u2", "other user")); err != nil {
		t.Fatalf("add other: %v", err)
	}

	if got := b.Pending(PendingFilter{}); len(got) != 3 {
		t.Fatalf("expected 3 total pending, got %d", len(got))
	}
	if got := b.Pending(PendingFilter{RecipientKey: "user:u1"}); len(got) != 2 {
		t.Fatalf("expected 2 pending for u1, got %d", len(got))
	}
	got := b.Pending(PendingFilter{RecipientKey: "user:u1", Category: "billing"})
	if len(got) != 1 || got[0].Title != "invoice" {
		t.Fatalf("category filter failed: %+v", got)
	}
}

func TestStatsReportsBacklogShape(t *testing.T) {
	channel := &fakeChannel{}
	b, clk := newTestBatcher(t, Config{MaxBatchSize: 10, MaxWindow: time.Hour}, channel)
	ctx := context.Background()

	if _, err := b.Add(ctx, mediumInput("u1", "old")); err != nil {
		t.Fatalf("add: %v", err)
	}
	clk.Advance(2 * time.Minute)
	if _, err := b.Add(ctx, mediumInput("u2", "new")); err != nil {
		t.Fatalf("add: %v", err)
	}

	stats := b.Stats()
	if stats.TotalPending != 2 {
		t.Fatalf("expected 2 pending, got %d", stats.TotalPending)
	}
	if stats.PerRecipient["user:u1"] != 1 || stats.PerRecipient["user:u2"] != 1 {
		t.Fatalf("unexpected per-recipient counts: %+v", stats.PerRecipient)
	}
	if stats.OldestWindowAge != 2*time.Minute {
		t.Fatalf("expected oldest window age 2m, got %s", stats.OldestWindowAge)
	}
}

func TestAddValidation(t *testing.T) {
	channel := &fakeChannel{}
	b, _ := newTestBatcher(t, Config{}, channel)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(in *Input)
	}{
		{"missing title", func(in *Input) { in.Title = " " }},
		{"missing message", func(in *Input) { in.Message = "" }},
		{"missing user id", func(in *Input) { in.Metadata = map[string]string{} }},
		{"invalid priority", func(in *Input) { in.Priority = "shouting" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := mediumInput("u1", "title")
			tc.mutate(&in)
			_, err := b.Add(ctx, in)
			if err == nil {
				t.Fatal("expected validation error")
			}
			appErr := pkgerrors.As(err)
			if appErr == nil || appErr.Code() != pkgerrors.CodeValidation {
				t.Fatalf("expected validation code, got %v", err)
			}
		})
	}

	in := mediumInput("u1", "title")
	in.Type = "carrier_pigeon"
	n, err := b.Add(ctx, in)
	if err != nil {
		t.Fatalf("unknown type must not reject: %v", err)
	}
	if string(n.Type) != "info" {
		t.Fatalf("unknown type must fall back to info, got %s", n.Type)
	}
}
