package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	"github.com/proposalhub/proposalhub-backend/pkg/enums"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
}

func digestItem(userID uuid.UUID, title string) batch.Notification {
	return batch.Notification{
		ID:       uuid.New(),
		Type:     enums.NotificationTypeInfo,
		Priority: enums.PriorityMedium,
		Category: "system",
		Title:    title,
		Message:  "body",
		Metadata: map[string]string{
			batch.MetaUserID: userID.String(),
			metaLink:         "/proposals/123",
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestInboxChannelPersistsDigestRows(t *testing.T) {
	userID := uuid.New()
	var captured []models.Notification
	repo := &fakeRepository{
		createBatchFn: func(ctx context.Context, rows []models.Notification) error {
			captured = rows
			return nil
		},
	}

	channel, err := NewInboxChannel(repo, testLogger())
	if err != nil {
		t.Fatalf("construct channel: %v", err)
	}

	digest := []batch.Notification{digestItem(userID, "a"), digestItem(userID, "b")}
	if err := channel.Deliver(context.Background(), "user:"+userID.String(), digest); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(captured) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(captured))
	}
	if captured[0].DigestID != captured[1].DigestID {
		t.Fatal("digest rows must share a digest id")
	}
	for i, row := range captured {
		if row.UserID != userID {
			t.Fatalf("row %d has wrong user", i)
		}
		if row.ID != digest[i].ID || row.Title != digest[i].Title {
			t.Fatalf("row %d does not match digest item", i)
		}
		if row.Link == nil || *row.Link != "/proposals/123" {
			t.Fatalf("row %d missing link", i)
		}
	}
}

func TestInboxChannelRejectsBadUserID(t *testing.T) {
	repo := &fakeRepository{}
	channel, err := NewInboxChannel(repo, testLogger())
	if err != nil {
		t.Fatalf("construct channel: %v", err)
	}

	bad := digestItem(uuid.New(), "a")
	bad.Metadata[batch.MetaUserID] = "not-a-uuid"
	if err := channel.Deliver(context.Background(), "user:x", []batch.Notification{bad}); err == nil {
		t.Fatal("expected error for invalid user id")
	}
}

type fakePublishResult struct {
	id  string
	err error
}

func (f *fakePublishResult) Get(context.Context) (string, error) {
	return f.id, f.err
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) PublishResult {
	f.messages = append(f.messages, msg)
	return &fakePublishResult{id: "m1", err: f.err}
}

func TestPushChannelPublishesEnvelope(t *testing.T) {
	userID := uuid.New()
	pub := &fakePublisher{}
	channel, err := NewPushChannel(pub, testLogger())
	if err != nil {
		t.Fatalf("construct channel: %v", err)
	}

	digest := []batch.Notification{digestItem(userID, "a"), digestItem(userID, "b")}
	recipientKey := "user:" + userID.String()
	if err := channel.Deliver(context.Background(), recipientKey, digest); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["recipient_key"] != recipientKey || msg.Attributes["digest_size"] != "2" {
		t.Fatalf("unexpected attributes: %+v", msg.Attributes)
	}

	var envelope digestEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.RecipientKey != recipientKey || len(envelope.Items) != 2 {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if envelope.Items[0].Title != "a" || envelope.Items[1].Title != "b" {
		t.Fatal("envelope items out of order")
	}
}

func TestPushChannelSurfacesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	channel, err := NewPushChannel(pub, testLogger())
	if err != nil {
		t.Fatalf("construct channel: %v", err)
	}

	digest := []batch.Notification{digestItem(uuid.New(), "a")}
	if err := channel.Deliver(context.Background(), "user:x", digest); err == nil {
		t.Fatal("expected publish error")
	}
}

type stubChannel struct {
	calls int
	err   error
}

func (s *stubChannel) Deliver(context.Context, string, []batch.Notification) error {
	s.calls++
	return s.err
}

func TestFanoutDeliversToAllChannels(t *testing.T) {
	ok := &stubChannel{}
	failing := &stubChannel{err: errors.New("boom")}

	fanout, err := NewFanout(ok, failing)
	if err != nil {
		t.Fatalf("construct fanout: %v", err)
	}

	digest := []batch.Notification{digestItem(uuid.New(), "a")}
	err = fanout.Deliver(context.Background(), "user:x", digest)
	if err == nil {
		t.Fatal("expected joined failure")
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Fatalf("every channel must run: ok=%d failing=%d", ok.calls, failing.calls)
	}
}

func TestFanoutRequiresAChannel(t *testing.T) {
	if _, err := NewFanout(nil, nil); err == nil {
		t.Fatal("expected error for empty fanout")
	}
}
