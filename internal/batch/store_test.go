package batch

import (
	"testing"
	"time"

	"github.com/proposalhub/proposalhub-backend/pkg/enums"
)

func TestDrainReturnsFIFOAndRemovesEntry(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

	var queued []Notification
	for i := 0; i < 3; i++ {
		n := testNotification(enums.PriorityMedium, base.Add(time.Duration(i)*time.Second))
		n.Title = string(rune('a' + i))
		queued = append(queued, n)
		store.withBatch("user:u1", func(b *recipientBatch) {
			if len(b.pending) == 0 {
				b.windowStartedAt = n.CreatedAt
			}
			b.pending = append(b.pending, n)
		})
	}

	items, err := store.Drain("user:u1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.ID != queued[i].ID {
			t.Fatalf("item %d out of order: got %s want %s", i, item.Title, queued[i].Title)
		}
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Fatalf("expected entry removed after drain, found %v", keys)
	}

	again, err := store.Drain("user:u1")
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second drain must be empty, got %d items", len(again))
	}
}

func TestRequeuePrependsPreservingOrder(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

	first := testNotification(enums.PriorityMedium, base)
	second := testNotification(enums.PriorityMedium, base.Add(time.Second))
	late := testNotification(enums.PriorityMedium, base.Add(time.Minute))

	store.withBatch("user:u1", func(b *recipientBatch) {
		b.pending = append(b.pending, late)
		b.windowStartedAt = late.CreatedAt
	})

	retryAt := base.Add(30 * time.Second)
	store.Requeue("user:u1", []Notification{first, second}, retryAt)

	snaps := store.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(snaps))
	}
	snap := snaps[0]
	if !snap.RetryAt.Equal(retryAt) {
		t.Fatalf("expected retryAt %s, got %s", retryAt, snap.RetryAt)
	}
	if !snap.WindowStartedAt.Equal(first.CreatedAt) {
		t.Fatalf("window must restart at the oldest requeued item, got %s", snap.WindowStartedAt)
	}

	want := []Notification{first, second, late}
	if len(snap.Pending) != len(want) {
		t.Fatalf("expected %d pending, got %d", len(want), len(snap.Pending))
	}
	for i, n := range snap.Pending {
		if n.ID != want[i].ID {
			t.Fatalf("pending item %d out of order", i)
		}
	}
}

func TestSnapshotCopiesState(t *testing.T) {
	store := NewStore()
	n := testNotification(enums.PriorityMedium, time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC))
	store.withBatch(n.RecipientKey(), func(b *recipientBatch) {
		b.pending = append(b.pending, n)
	})

	snaps := store.Snapshot()
	snaps[0].Pending[0].Metadata[MetaUserID] = "tampered"
	snaps[0].Pending[0].Title = "tampered"

	items, err := store.Drain(n.RecipientKey())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if items[0].Metadata[MetaUserID] != "u1" || items[0].Title != "t" {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestTotalPendingCountsAcrossRecipients(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)

	for _, key := range []string{"user:u1", "user:u1", "user:u2"} {
		n := testNotification(enums.PriorityMedium, base)
		store.withBatch(key, func(b *recipientBatch) {
			b.pending = append(b.pending, n)
		})
	}

	if got := store.TotalPending(); got != 3 {
		t.Fatalf("expected 3 pending, got %d", got)
	}
}
