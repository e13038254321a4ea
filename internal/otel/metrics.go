package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce     sync.Once
	tasksCounter        metric.Int64Counter
	agentDuration       metric.Float64Histogram
	stmEvictionsCounter metric.Int64Counter
	promotionsCounter   metric.Int64Counter
	sseConnectionsGauge metric.Int64ObservableGauge
	sseEventsCounter    metric.Int64Counter
	sseConnections      int64
	sseConnectionsMu    sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after Setup.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		tasksCounter, err = m.Int64Counter("software_ai_tasks_total", metric.WithDescription("Task outcomes by mode and status"))
		if err != nil {
			return
		}
		agentDuration, err = m.Float64Histogram("software_ai_agent_execution_duration_seconds", metric.WithDescription("Agent execution duration in seconds"))
		if err != nil {
			return
		}
		stmEvictionsCounter, err = m.Int64Counter("software_ai_stm_evictions_total", metric.WithDescription("Short-term memory entries removed, by reason"))
		if err != nil {
			return
		}
		promotionsCounter, err = m.Int64Counter("software_ai_promotions_total", metric.WithDescription("Promotions to long-term memory, by result"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("software_ai_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("software_ai_sse_connections", metric.WithDescription("Current SSE subscriber count"))
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
	})
	return err
}

// RecordTask records one finished task outcome.
func RecordTask(ctx context.Context, mode, status, errorKind string) {
	if tasksCounter == nil {
		return
	}
	tasksCounter.Add(ctx, 1, metric.WithAttributes(
		AttrMode.String(mode),
		AttrStatus.String(status),
		AttrKind.String(errorKind),
	))
}

// RecordAgentExecution records how long an agent took for one task.
func RecordAgentExecution(ctx context.Context, mode, agent string, duration time.Duration) {
	if agentDuration == nil {
		return
	}
	agentDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrMode.String(mode), AttrAgent.String(agent)))
}

// RecordSTMEvictions records n entries removed from short-term memory ("expired", "sweep", "capacity").
func RecordSTMEvictions(ctx context.Context, reason string, n int) {
	if stmEvictionsCounter == nil || n <= 0 {
		return
	}
	stmEvictionsCounter.Add(ctx, int64(n), metric.WithAttributes(AttrReason.String(reason)))
}

// RecordPromotion records a promotion attempt ("inserted", "duplicate", "error").
func RecordPromotion(ctx context.Context, result string) {
	if promotionsCounter == nil {
		return
	}
	promotionsCounter.Add(ctx, 1, metric.WithAttributes(AttrResult.String(result)))
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

// Gauges reports point-in-time values sampled on each collection.
type Gauges struct {
	InFlight   func() int64
	STMEntries func() int64
}

// InitMetricsWithGauges creates instruments and registers callbacks for the engine
// and short-term memory gauges. Nil funcs are skipped.
func InitMetricsWithGauges(ctx context.Context, g Gauges) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	m := Meter()
	var instruments []metric.Observable
	var inflight, entries metric.Int64ObservableGauge
	var err error
	if g.InFlight != nil {
		inflight, err = m.Int64ObservableGauge("software_ai_tasks_inflight", metric.WithDescription("Tasks currently holding a concurrency slot"))
		if err != nil {
			return err
		}
		instruments = append(instruments, inflight)
	}
	if g.STMEntries != nil {
		entries, err = m.Int64ObservableGauge("software_ai_stm_entries", metric.WithDescription("Entries held in short-term memory"))
		if err != nil {
			return err
		}
		instruments = append(instruments, entries)
	}
	if len(instruments) == 0 {
		return nil
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		if g.InFlight != nil {
			o.ObserveInt64(inflight, g.InFlight())
		}
		if g.STMEntries != nil {
			o.ObserveInt64(entries, g.STMEntries())
		}
		return nil
	}, instruments...)
	return err
}
