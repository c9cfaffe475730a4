// Package events appends event rows and fans them out to the broadcaster.
package events

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"darkgrid/core/fault"
	"darkgrid/core/models"
	"darkgrid/observability"
)

// Channel is the broadcaster channel events are published on.
const Channel = "events"

// Broadcaster fans a message out to subscribers. The in-memory pubsub broker
// satisfies it; a real broker can be substituted without touching the core.
type Broadcaster interface {
	Publish(channel string, msg map[string]any) error
}

// Recorder inserts events inside the caller's transaction and publishes them
// best-effort after the insert.
type Recorder struct {
	broker Broadcaster
	log    *slog.Logger
}

// NewRecorder wires a recorder to the broadcaster. A nil broker disables
// publishing, a nil logger falls back to the default.
func NewRecorder(broker Broadcaster, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{broker: broker, log: log}
}

// Record inserts the event and publishes it on the events channel. A publish
// failure is logged and swallowed; it must never fail the transaction.
func (r *Recorder) Record(tx *gorm.DB, tick uint32, kind string, subject *uuid.UUID, payload models.JSONMap) (*models.Event, error) {
	if payload == nil {
		payload = models.JSONMap{}
	}
	event := models.Event{
		ID:        uuid.New(),
		Tick:      tick,
		Kind:      kind,
		SubjectID: subject,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&event).Error; err != nil {
		return nil, fault.Internalf("record event %s: %v", kind, err)
	}

	if r.broker != nil {
		msg := map[string]any{
			"id":         event.ID.String(),
			"tick":       event.Tick,
			"kind":       event.Kind,
			"subject_id": nil,
			"payload":    map[string]any(payload),
		}
		if subject != nil {
			msg["subject_id"] = subject.String()
		}
		if err := r.broker.Publish(Channel, msg); err != nil {
			r.log.Warn("event publish failed", "kind", kind, "tick", tick, "err", err)
		} else {
			observability.Sim().RecordEventPublished(kind)
		}
	}
	return &event, nil
}
