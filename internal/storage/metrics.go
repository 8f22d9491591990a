package storage

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once
	opCounter   metric.Int64Counter
)

// RecordOperation counts one adapter operation on the global meter,
// labelled by backend family, entity table and operation name. Errors
// from the meter are ignored; metrics must never fail a storage call.
func RecordOperation(ctx context.Context, backend, entity, op string, err error) {
	metricsOnce.Do(func() {
		meter := otel.Meter("codeweave/backend/internal/storage")
		opCounter, _ = meter.Int64Counter(
			"storage.adapter.operations",
			metric.WithDescription("Storage adapter operations by backend, entity and outcome."),
		)
	})
	if opCounter == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}
