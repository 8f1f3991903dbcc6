package messaging

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plantbuddy/project/internal/sharding"
)

// CareStream holds every published care event.
const CareStream = "CARE"

// EnsureStreams creates the CARE stream when it does not exist yet.
func EnsureStreams(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(CareStream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      CareStream,
		Subjects:  []string{sharding.CareSubjects},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    90 * 24 * time.Hour,
		Replicas:  1,
	})
	return err
}
