package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/plantbuddy/project/internal/contracts"
)

type fakeSink struct {
	got    contracts.CareEventMessage
	gotSeq uint64
	err    error
}

func (f *fakeSink) Record(_ context.Context, event contracts.CareEventMessage, streamSeq uint64) error {
	f.got = event
	f.gotSeq = streamSeq
	return f.err
}

func validEvent() contracts.CareEventMessage {
	return contracts.CareEventMessage{
		EventID:    "evt-1",
		PlantID:    "plant-1",
		EventType:  "Watering",
		Note:       "Plant watered on 2024-06-03",
		OccurredAt: time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC),
		NextDue:    "2024-06-10",
		ShardID:    224,
	}
}

func TestHandle_ValidEvent(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(sink)
	payload, _ := json.Marshal(validEvent())

	if err := svc.Handle(context.Background(), payload, 42); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if sink.got.EventID != "evt-1" || sink.got.NextDue != "2024-06-10" {
		t.Fatalf("unexpected event in sink: %+v", sink.got)
	}
	if sink.gotSeq != 42 {
		t.Fatalf("expected stream sequence 42, got %d", sink.gotSeq)
	}
}

func TestHandle_InvalidPayload(t *testing.T) {
	svc := NewService(&fakeSink{})
	if err := svc.Handle(context.Background(), []byte("{invalid"), 1); !errors.Is(err, ErrInvalidEventPayload) {
		t.Fatalf("expected ErrInvalidEventPayload, got %v", err)
	}

	event := validEvent()
	event.PlantID = ""
	payload, _ := json.Marshal(event)
	if err := svc.Handle(context.Background(), payload, 1); !errors.Is(err, ErrInvalidEventPayload) {
		t.Fatalf("expected ErrInvalidEventPayload for missing plant id, got %v", err)
	}
}

func TestHandle_UnsupportedEventType(t *testing.T) {
	svc := NewService(&fakeSink{})
	event := validEvent()
	event.EventType = "Pruning"
	payload, _ := json.Marshal(event)

	if err := svc.Handle(context.Background(), payload, 1); !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected ErrUnsupportedEventType, got %v", err)
	}
}

func TestHandle_SinkErrorPropagates(t *testing.T) {
	boom := errors.New("sink unavailable")
	svc := NewService(&fakeSink{err: boom})
	payload, _ := json.Marshal(validEvent())

	if err := svc.Handle(context.Background(), payload, 1); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestLogSink_WritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	if err := sink.Record(context.Background(), validEvent(), 7); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, `"plant_id":"plant-1"`) || !strings.Contains(out, `"stream_seq":7`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
