package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventRunFinished   = "run.finished"
	EventBatchFinished = "batch.finished"
)

// Envelope is the JSON body posted to the notification URL.
type Envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	TS   string `json:"ts"`
	Data any    `json:"data"`
}

type Publisher struct {
	queue chan delivery
	log   zerolog.Logger
}

// NewPublisher returns a publisher feeding w. A nil worker yields a publisher
// that drops everything, used when no notification URL is configured.
func NewPublisher(w *Worker, log zerolog.Logger) *Publisher {
	p := &Publisher{log: log}
	if w != nil {
		p.queue = w.queue
	}
	return p
}

// Emit queues an event for delivery. It never blocks; a full queue drops the event.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) {
	if p == nil || p.queue == nil {
		return
	}
	env := Envelope{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		TS:   time.Now().UTC().Format(time.RFC3339),
		Data: data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.log.Error().Err(err).Str("event_type", eventType).Msg("encode notification")
		return
	}
	select {
	case p.queue <- delivery{ID: env.ID, EventType: eventType, Payload: body}:
	case <-ctx.Done():
	default:
		p.log.Warn().Str("event_type", eventType).Msg("notification queue full; dropped")
	}
}
