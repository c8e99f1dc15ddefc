package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/pkg/db/models"
	pkgerrors "github.com/proposalhub/proposalhub-backend/pkg/errors"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

const publishTimeout = 10 * time.Second

// metaLink is an optional deep link carried in notification metadata.
const metaLink = "link"

// InboxChannel lands flushed digests in the notifications table so users see
// them in the in-app inbox.
type InboxChannel struct {
	repo Repository
	logg *logger.Logger
}

// NewInboxChannel wires the inbox delivery channel.
func NewInboxChannel(repo Repository, logg *logger.Logger) (*InboxChannel, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &InboxChannel{repo: repo, logg: logg}, nil
}

// Deliver persists one row per digest item, all sharing a digest id.
func (c *InboxChannel) Deliver(ctx context.Context, recipientKey string, digest []batch.Notification) error {
	if len(digest) == 0 {
		return nil
	}

	digestID := uuid.New()
	rows := make([]models.Notification, 0, len(digest))
	for _, n := range digest {
		userID, err := uuid.Parse(n.UserID())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDelivery, err, "digest item has invalid user id")
		}
		row := models.Notification{
			ID:        n.ID,
			UserID:    userID,
			DigestID:  digestID,
			Type:      n.Type,
			Priority:  n.Priority,
			Category:  n.Category,
			Title:     n.Title,
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
		}
		if link := n.Metadata[metaLink]; link != "" {
			row.Link = &link
		}
		rows = append(rows, row)
	}

	if err := c.repo.CreateBatch(ctx, rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDelivery, err, "persist digest")
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"recipient_key": recipientKey,
		"digest_id":     digestID.String(),
		"digest_size":   len(rows),
	})
	c.logg.Info(logCtx, "digest written to inbox")
	return nil
}

// PublishResult resolves to the server-assigned message id once acked.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// DigestPublisher is the outbound half of the push channel.
type DigestPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult
}

// NewGCPDigestPublisher adapts a Pub/Sub publisher to the channel's interface.
func NewGCPDigestPublisher(p *gcppubsub.Publisher) DigestPublisher {
	if p == nil {
		return nil
	}
	return &gcpDigestPublisher{publisher: p}
}

type gcpDigestPublisher struct {
	publisher *gcppubsub.Publisher
}

func (p *gcpDigestPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, msg)
}

// digestEnvelope is the wire format published for downstream push consumers.
type digestEnvelope struct {
	DigestID     string               `json:"digestId"`
	RecipientKey string               `json:"recipientKey"`
	Items        []batch.Notification `json:"items"`
	FlushedAt    time.Time            `json:"flushedAt"`
}

// PushChannel publishes flushed digests to Pub/Sub for external push
// delivery (mobile, email workers).
type PushChannel struct {
	publisher DigestPublisher
	logg      *logger.Logger
}

// NewPushChannel wires the push delivery channel.
func NewPushChannel(publisher DigestPublisher, logg *logger.Logger) (*PushChannel, error) {
	if publisher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "digest publisher required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &PushChannel{publisher: publisher, logg: logg}, nil
}

// Deliver publishes the digest as one message and waits for the server ack.
func (c *PushChannel) Deliver(ctx context.Context, recipientKey string, digest []batch.Notification) error {
	if len(digest) == 0 {
		return nil
	}

	envelope := digestEnvelope{
		DigestID:     uuid.NewString(),
		RecipientKey: recipientKey,
		Items:        digest,
		FlushedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDelivery, err, "encode digest envelope")
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"recipient_key": recipientKey,
			"digest_id":     envelope.DigestID,
			"digest_size":   strconv.Itoa(len(digest)),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := c.publisher.Publish(publishCtx, msg)
	if result == nil {
		return pkgerrors.New(pkgerrors.CodeDelivery, "publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDelivery, err, "publish digest")
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"recipient_key": recipientKey,
		"digest_id":     envelope.DigestID,
		"digest_size":   len(digest),
	})
	c.logg.Info(logCtx, "digest published for push delivery")
	return nil
}

// Fanout delivers a digest through every configured channel. Any failure is
// reported so the engine requeues; channels must tolerate redelivery.
type Fanout struct {
	channels []batch.DeliveryChannel
}

// NewFanout builds a composite channel from the non-nil members.
func NewFanout(channels ...batch.DeliveryChannel) (*Fanout, error) {
	kept := make([]batch.DeliveryChannel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "at least one delivery channel required")
	}
	return &Fanout{channels: kept}, nil
}

// Deliver runs every channel and joins their failures.
func (f *Fanout) Deliver(ctx context.Context, recipientKey string, digest []batch.Notification) error {
	var errs []error
	for _, ch := range f.channels {
		if err := ch.Deliver(ctx, recipientKey, digest); err != nil {
			errs = append(errs, fmt.Errorf("channel %T: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}
