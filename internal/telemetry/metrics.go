package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counters for the hot paths. Instruments are created lazily so Init can run
// first and the no-op provider path stays allocation-free.
var (
	once sync.Once

	queriesRouted        metric.Int64Counter
	statementsDispatched metric.Int64Counter
	taskFailures         metric.Int64Counter
	heartbeats           metric.Int64Counter
)

func instruments() {
	once.Do(func() {
		m := Meter("")
		queriesRouted, _ = m.Int64Counter("snowfort.queries.routed",
			metric.WithDescription("External queries accepted by the orchestrator"))
		statementsDispatched, _ = m.Int64Counter("snowfort.statements.dispatched",
			metric.WithDescription("Plan statements sent to workers"))
		taskFailures, _ = m.Int64Counter("snowfort.tasks.failed",
			metric.WithDescription("Worker task executions that returned an error"))
		heartbeats, _ = m.Int64Counter("snowfort.heartbeats.received",
			metric.WithDescription("Heartbeats accepted by the registry"))
	})
}

// CountQueryRouted records one accepted external query by statement kind.
func CountQueryRouted(ctx context.Context, kind string) {
	instruments()
	queriesRouted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CountStatementsDispatched records plan statements handed to a worker.
func CountStatementsDispatched(ctx context.Context, n int) {
	instruments()
	statementsDispatched.Add(ctx, int64(n))
}

// CountTaskFailure records one failed worker task by kind.
func CountTaskFailure(ctx context.Context, kind string) {
	instruments()
	taskFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// CountHeartbeat records one accepted heartbeat.
func CountHeartbeat(ctx context.Context) {
	instruments()
	heartbeats.Add(ctx, 1)
}
