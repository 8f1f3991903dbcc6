// Package audit consumes published care events and writes them to an audit sink.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/plantbuddy/project/internal/contracts"
	"github.com/plantbuddy/project/internal/domain"
)

var ErrInvalidEventPayload = errors.New("invalid event payload")
var ErrUnsupportedEventType = errors.New("unsupported event type")

type Sink interface {
	Record(ctx context.Context, event contracts.CareEventMessage, streamSeq uint64) error
}

type Service struct {
	Sink Sink
}

func NewService(sink Sink) *Service {
	return &Service{Sink: sink}
}

func (s *Service) Handle(ctx context.Context, payload []byte, streamSeq uint64) error {
	var event contracts.CareEventMessage
	if err := json.Unmarshal(payload, &event); err != nil {
		return ErrInvalidEventPayload
	}
	if strings.TrimSpace(event.PlantID) == "" || strings.TrimSpace(event.EventID) == "" {
		return ErrInvalidEventPayload
	}
	if !domain.EventType(event.EventType).Valid() {
		return ErrUnsupportedEventType
	}
	return s.Sink.Record(ctx, event, streamSeq)
}

// LogSink writes one structured line per care event.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Record(ctx context.Context, event contracts.CareEventMessage, streamSeq uint64) error {
	l.Logger.LogAttrs(ctx, slog.LevelInfo, "care event",
		slog.Uint64("stream_seq", streamSeq),
		slog.String("event_id", event.EventID),
		slog.String("plant_id", event.PlantID),
		slog.String("event_type", event.EventType),
		slog.Time("occurred_at", event.OccurredAt),
		slog.String("next_due", event.NextDue),
		slog.Int("shard_id", event.ShardID),
	)
	return nil
}
