package vectis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-vectis/vectis")
var meter = otel.Meter("github.com/go-vectis/vectis")

// ---- projection.go ----

const (
	// projectionName is the attribute key associating each record with the
	// projection that replayed the event, so that replays can be analysed both
	// collectively and per projection.
	projectionName = "projection"
	// eventKind is the attribute key carrying the EventKind of the replayed
	// event.
	eventKind = "event.kind"
)

var (
	// replayDuration measures the duration of applying a single event to a
	// projection, including publishing the resulting change notifications.
	//
	// Each record is associated with the projectionName and eventKind.
	replayDuration metric.Float64Histogram
	// replayFailures counts the events a projection failed to apply, whether
	// the replay engine rejected them or their notifications failed to publish.
	//
	// Each record is associated with the projectionName and eventKind.
	replayFailures metric.Int64Counter
)

func init() {
	var err error
	replayDuration, err = meter.Float64Histogram(
		"vectis.replay.duration",
		metric.WithDescription("The duration of applying a single event to a projection, including publishing its change notifications."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic("vectis: failed to init 'vectis.replay.duration' instrument")
	}

	replayFailures, err = meter.Int64Counter(
		"vectis.replay.failures",
		metric.WithDescription("The number of events a projection failed to apply."),
	)
	if err != nil {
		panic("vectis: failed to init 'vectis.replay.failures' instrument")
	}
}

// measureReplay records the duration of a successful replay, or counts a
// failed one. Records are labelled with the projection's name and the kind of
// the replayed event.
func measureReplay(ctx context.Context, projection string, kind EventKind, succeeded bool, d time.Duration) {
	attrs := attribute.NewSet(
		attribute.String(projectionName, projection),
		attribute.String(eventKind, string(kind)),
	)
	if succeeded {
		// Floating-point division keeps sub-millisecond precision.
		duration := float64(d) / float64(time.Millisecond)
		replayDuration.Record(ctx, duration, metric.WithAttributeSet(attrs))
	} else {
		replayFailures.Add(ctx, 1, metric.WithAttributeSet(attrs))
	}
}
