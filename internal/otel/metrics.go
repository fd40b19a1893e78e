package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	turnsCounter        metric.Int64Counter
	turnDuration        metric.Float64Histogram
	classifierDuration  metric.Float64Histogram
	storeOpsCounter     metric.Int64Counter
	sseConnectionsGauge metric.Int64ObservableGauge
	sseEventsCounter    metric.Int64Counter
	sseConnections      int64
	sseConnectionsMu    sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		turnsCounter, err = m.Int64Counter("tasktalk_turns_total", metric.WithDescription("Total chat turns processed, by outcome"))
		if err != nil {
			return
		}
		turnDuration, err = m.Float64Histogram("tasktalk_turn_duration_seconds", metric.WithDescription("Chat turn duration in seconds"))
		if err != nil {
			return
		}
		classifierDuration, err = m.Float64Histogram("tasktalk_classifier_duration_seconds", metric.WithDescription("Intent classifier call duration in seconds"))
		if err != nil {
			return
		}
		storeOpsCounter, err = m.Int64Counter("tasktalk_store_operations_total", metric.WithDescription("Total store operations dispatched from chat"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("tasktalk_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("tasktalk_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
		if err != nil {
			return
		}
	})
	return err
}

// RecordTurn records one processed chat turn and its duration.
func RecordTurn(ctx context.Context, outcome string, duration time.Duration) {
	if turnsCounter != nil {
		turnsCounter.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
	}
	if turnDuration != nil {
		turnDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrOutcome.String(outcome)))
	}
}

// RecordClassify records one classifier call duration.
func RecordClassify(ctx context.Context, classifier string, duration time.Duration) {
	if classifierDuration != nil {
		classifierDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrClassifier.String(classifier)))
	}
}

// RecordStoreOp records a store operation dispatched from chat.
func RecordStoreOp(ctx context.Context, op string, ok bool) {
	if storeOpsCounter == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	storeOpsCounter.Add(ctx, 1, metric.WithAttributes(
		AttrOperation.String(op),
		AttrStatus.String(status),
	))
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// TaskCountFunc returns per-status task counts for the tasktalk_tasks_total gauge.
type TaskCountFunc func() (pending, inProgress, completed, cancelled int64)

// InitMetricsWithTaskCount creates instruments and optionally registers a callback
// for the task gauge. Call after InitMeterProvider. If taskCount is nil, the task
// gauge is not reported.
func InitMetricsWithTaskCount(ctx context.Context, taskCount TaskCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if taskCount == nil {
		return nil
	}
	m := Meter()
	tasksGauge, err := m.Float64ObservableGauge("tasktalk_tasks_total", metric.WithDescription("Number of tasks by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		pending, inProgress, completed, cancelled := taskCount()
		o.ObserveFloat64(tasksGauge, float64(pending), metric.WithAttributes(AttrStatus.String("pending")))
		o.ObserveFloat64(tasksGauge, float64(inProgress), metric.WithAttributes(AttrStatus.String("in_progress")))
		o.ObserveFloat64(tasksGauge, float64(completed), metric.WithAttributes(AttrStatus.String("completed")))
		o.ObserveFloat64(tasksGauge, float64(cancelled), metric.WithAttributes(AttrStatus.String("cancelled")))
		return nil
	}, tasksGauge)
	return err
}
