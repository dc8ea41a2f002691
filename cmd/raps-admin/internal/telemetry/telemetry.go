// Package telemetry exposes counters for bulk operation activity through
// the global OpenTelemetry meter provider.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dmytro-yemelianov/raps-go/raps-admin"

var (
	initOnce sync.Once

	operationsStarted metric.Int64Counter
	itemsProcessed    metric.Int64Counter
)

// Init sets the instruments up against the global meter provider. Safe to
// call more than once.
func Init() {
	initOnce.Do(func() {
		meter := otel.Meter(meterName)

		operationsStarted, _ = meter.Int64Counter(
			"raps_admin.bulk.operations_started",
			metric.WithDescription("Bulk operations started"),
		)
		itemsProcessed, _ = meter.Int64Counter(
			"raps_admin.bulk.items_processed",
			metric.WithDescription("Bulk operation items resolved, by outcome"),
		)
	})
}

// RecordOperationStart counts one operation launch.
func RecordOperationStart(ctx context.Context, operationType string, targets int) {
	if operationsStarted == nil {
		return
	}
	operationsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.Int("targets", targets),
	))
}

// RecordItemOutcome counts one resolved item.
func RecordItemOutcome(ctx context.Context, operationType, outcome string) {
	if itemsProcessed == nil {
		return
	}
	itemsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.String("outcome", outcome),
	))
}
