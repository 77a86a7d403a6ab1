// Package relay bridges the monitor's inner event bus to outer consumers: a
// second application-level bus and an external message queue. Relaying is
// explicit composition, so the monitor never needs to know how far its
// completion events travel.
package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/batchops/batchwatch/internal/batch"
	"github.com/batchops/batchwatch/internal/bus"
	"github.com/batchops/batchwatch/internal/publisher"
)

// Completion is the normalized form of either completion payload, suitable
// for consumers that do not want to switch over the success/failure variants
// and for JSON encoding onto a queue.
type Completion struct {
	ID          string               `json:"id"`
	Success     bool                 `json:"success"`
	Status      string               `json:"status"`
	ResultRef   string               `json:"result_ref,omitempty"`
	ErrorRef    string               `json:"error_ref,omitempty"`
	Counts      batch.RequestCounts  `json:"counts"`
	Errors      []batch.JobError     `json:"errors,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	CompletedAt time.Time            `json:"completed_at"`
}

// Normalize converts a completion payload into its normalized form. The
// second return value is false for payloads that are not completion events.
func Normalize(payload any) (Completion, bool) {
	switch p := payload.(type) {
	case Completion:
		return p, true
	case batch.JobSucceeded:
		return Completion{
			ID:          string(p.ID),
			Success:     true,
			Status:      string(batch.StatusCompleted),
			ResultRef:   string(p.ResultRef),
			SubmittedAt: p.SubmittedAt,
			CompletedAt: p.CompletedAt,
		}, true
	case batch.JobFailed:
		return Completion{
			ID:          string(p.ID),
			Success:     false,
			Status:      string(p.Status),
			ErrorRef:    string(p.ErrorRef),
			Counts:      p.Counts,
			Errors:      p.Errors,
			SubmittedAt: p.SubmittedAt,
			CompletedAt: p.CompletedAt,
		}, true
	default:
		return Completion{}, false
	}
}

// BusRelay re-publishes inner-bus completion events onto an outer bus in
// normalized form.
type BusRelay struct {
	outer  *bus.Bus
	logger *zap.Logger
}

// NewBusRelay returns a relay targeting outer.
func NewBusRelay(outer *bus.Bus, logger *zap.Logger) *BusRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusRelay{outer: outer, logger: logger}
}

// Attach subscribes the relay to the inner bus.
func (r *BusRelay) Attach(inner *bus.Bus) {
	inner.Register(batch.EventJobCompleted, r.handle)
}

func (r *BusRelay) handle(ctx context.Context, payload any) error {
	completion, ok := Normalize(payload)
	if !ok {
		r.logger.Warn("dropping non-completion payload", zap.Any("payload", payload))
		return nil
	}
	r.logger.Debug("relaying completion event",
		zap.String("job_id", completion.ID),
		zap.Bool("success", completion.Success),
	)
	return r.outer.Trigger(ctx, batch.EventJobCompleted, completion)
}

// PublisherRelay forwards normalized completions to a message queue topic.
type PublisherRelay struct {
	pub    publisher.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherRelay returns a relay publishing to topic via pub.
func NewPublisherRelay(pub publisher.Publisher, topic string, logger *zap.Logger) *PublisherRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherRelay{pub: pub, topic: topic, logger: logger}
}

// Attach subscribes the relay to the outer bus.
func (r *PublisherRelay) Attach(outer *bus.Bus) {
	outer.Register(batch.EventJobCompleted, r.handle)
}

func (r *PublisherRelay) handle(ctx context.Context, payload any) error {
	completion, ok := Normalize(payload)
	if !ok {
		r.logger.Warn("dropping non-completion payload", zap.Any("payload", payload))
		return nil
	}
	id, err := r.pub.Publish(ctx, r.topic, completion)
	if err != nil {
		return fmt.Errorf("publish completion for job %s: %w", completion.ID, err)
	}
	r.logger.Info("completion published",
		zap.String("job_id", completion.ID),
		zap.String("message_id", id),
		zap.String("topic", r.topic),
	)
	return nil
}
