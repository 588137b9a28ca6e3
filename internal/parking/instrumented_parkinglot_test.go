package parking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"stack-queue-parking/internal/telemetry"
)

type testTelemetry struct {
	*telemetry.Provider
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func newTestTelemetry(t *testing.T) *testTelemetry {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	provider := telemetry.NewProvider("parking-test",
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	)
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Errorf("Failed to shutdown telemetry: %v", err)
		}
	})
	return &testTelemetry{Provider: provider, spans: spans, reader: reader}
}

// counter sums the data points of an int64 sum whose attributes include all
// of the given key/value pairs.
func (tt *testTelemetry) counter(t *testing.T, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := tt.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, not an int64 sum", name, m.Data)
			}
		dataPoints:
			for _, dp := range sum.DataPoints {
				for _, kv := range match {
					v, ok := dp.Attributes.Value(kv.Key)
					if !ok || v != kv.Value {
						continue dataPoints
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func newTestInstrumentedLot(t *testing.T, capacity int) (*InstrumentedLot, *testTelemetry) {
	t.Helper()
	tt := newTestTelemetry(t)
	il, err := NewInstrumentedLot(NewLot(capacity, 5), tt)
	if err != nil {
		t.Fatalf("Failed to create instrumented lot: %v", err)
	}
	return il, tt
}

func TestInstrumentedLotIntegration(t *testing.T) {
	il, tt := newTestInstrumentedLot(t, 3)
	ctx := context.Background()

	state, err := il.ParkStack(ctx, ParkRequest{CarID: "A", Color: "#ff0000"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !state.Stack.Contains("A") {
		t.Errorf("Expected A in stack, got %v", state.Stack.IDs())
	}

	state, err = il.ParkQueue(ctx, ParkRequest{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := state.Queue.IDs(); len(got) != 1 || got[0] != "Car-1" {
		t.Errorf("Expected auto id Car-1 in queue, got %v", got)
	}

	state, err = il.State(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if state.TotalCount != 2 {
		t.Errorf("Expected total_count 2, got %d", state.TotalCount)
	}

	if _, err := il.RemoveStack(ctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if _, err := il.RemoveQueue(ctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	if got := tt.counter(t, "parking_section_occupancy"); got != 0 {
		t.Errorf("Expected occupancy 0 after removing both cars, got %d", got)
	}
	if got := tt.counter(t, "parking_operations_total", attribute.String("status", "success")); got != 4 {
		t.Errorf("Expected 4 successful operations, got %d", got)
	}
}

func TestInstrumentedLotRecordsFailures(t *testing.T) {
	il, tt := newTestInstrumentedLot(t, 1)
	ctx := context.Background()

	if _, err := il.RemoveQueue(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Expected ErrEmpty, got %v", err)
	}
	il.ParkStack(ctx, ParkRequest{CarID: "A"})
	if _, err := il.ParkStack(ctx, ParkRequest{CarID: "B"}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}
	if _, err := il.ParkQueue(ctx, ParkRequest{CarID: "C", Color: "green"}); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("Expected ErrInvalidColor, got %v", err)
	}

	failed := tt.counter(t, "parking_operations_total", attribute.String("status", "failed"))
	if failed != 3 {
		t.Errorf("Expected 3 failed operations, got %d", failed)
	}
	if got := tt.counter(t, "parking_section_occupancy", attribute.String("section", SectionStack)); got != 1 {
		t.Errorf("Expected stack occupancy 1, got %d", got)
	}

	var errorSpans int
	for _, span := range tt.spans.Ended() {
		if span.Status().Code == codes.Error {
			errorSpans++
		}
	}
	if errorSpans != 3 {
		t.Errorf("Expected 3 error spans, got %d", errorSpans)
	}
}

func TestInstrumentedLotClearAll(t *testing.T) {
	il, tt := newTestInstrumentedLot(t, 5)
	ctx := context.Background()

	il.ParkStack(ctx, ParkRequest{CarID: "A"})
	il.ParkStack(ctx, ParkRequest{CarID: "B"})
	il.ParkQueue(ctx, ParkRequest{CarID: "C"})

	state, err := il.ClearAll(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if state.TotalCount != 0 {
		t.Errorf("Expected empty lot, got total_count %d", state.TotalCount)
	}
	if got := tt.counter(t, "parking_section_occupancy"); got != 0 {
		t.Errorf("Expected occupancy 0 after clear_all, got %d", got)
	}

	var found bool
	for _, span := range tt.spans.Ended() {
		if span.Name() == "parking_lot.clear_all" {
			found = true
		}
	}
	if !found {
		t.Error("Expected a parking_lot.clear_all span")
	}
}

func TestInstrumentedLotNotifiesObservers(t *testing.T) {
	il, _ := newTestInstrumentedLot(t, 1)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		changes []Change
	)
	il.Observe(func(_ context.Context, c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	il.ParkQueue(ctx, ParkRequest{CarID: "X"})
	il.ParkQueue(ctx, ParkRequest{CarID: "Y"})
	il.RemoveQueue(ctx)
	il.ClearAll(ctx)
	il.State(ctx)

	if len(changes) != 4 {
		t.Fatalf("Expected 4 changes, got %d", len(changes))
	}

	parked := changes[0]
	if parked.Operation != OpParkQueue || parked.Car == nil || parked.Car.ID != "X" || parked.Err != nil {
		t.Errorf("Unexpected park change: %+v", parked)
	}

	rejected := changes[1]
	if !errors.Is(rejected.Err, ErrCapacityExceeded) || rejected.Car != nil {
		t.Errorf("Unexpected rejected change: %+v", rejected)
	}
	if !rejected.State.Queue.Contains("X") {
		t.Error("Expected the rejected change to carry the unchanged state")
	}

	removed := changes[2]
	if removed.Operation != OpRemoveQueue || removed.Car == nil || removed.Car.ID != "X" {
		t.Errorf("Unexpected remove change: %+v", removed)
	}

	if changes[3].Operation != OpClearAll {
		t.Errorf("Expected clear_all change, got %s", changes[3].Operation)
	}
}

func TestInstrumentedLotNamesParkedCar(t *testing.T) {
	il, _ := newTestInstrumentedLot(t, 10)

	var got *Car
	il.Observe(func(_ context.Context, c Change) { got = c.Car })

	il.ParkStack(context.Background(), ParkRequest{})
	if got == nil || got.ID != "Car-1" {
		t.Errorf("Expected the change to carry Car-1, got %+v", got)
	}
}

func TestInstrumentedLotObserversSeeMutationOrder(t *testing.T) {
	il, _ := newTestInstrumentedLot(t, 20)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		versions []uint64
	)
	il.Observe(func(_ context.Context, c Change) {
		if c.Err != nil {
			return
		}
		mu.Lock()
		versions = append(versions, c.State.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				il.ParkStack(ctx, ParkRequest{})
			case 1:
				il.ParkQueue(ctx, ParkRequest{})
			case 2:
				il.RemoveStack(ctx)
			default:
				il.RemoveQueue(ctx)
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Fatalf("Change %d has version %d after %d", i, versions[i], versions[i-1])
		}
	}
	if n := len(versions); n > 0 && versions[n-1] != il.Snapshot().Version {
		t.Errorf("Expected last observed version %d to match the lot, got %d", il.Snapshot().Version, versions[n-1])
	}
}

func TestInstrumentedLotView(t *testing.T) {
	il, _ := newTestInstrumentedLot(t, 10)
	ctx := context.Background()

	state := il.View(ctx, 20)
	if len(state.Stack) != 20 || state.MaxSpots != 20 {
		t.Errorf("Expected 20 slot view, got %d (max %d)", len(state.Stack), state.MaxSpots)
	}

	state = il.View(ctx, 0)
	if len(state.Queue) != 10 {
		t.Errorf("Expected capacity-sized view, got %d", len(state.Queue))
	}
}
