package parking

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry supplies the tracer and meter used by InstrumentedLot.
type Telemetry interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
}

// InstrumentedLot wraps a Lot with spans, metrics and change observers. It
// implements Operator.
type InstrumentedLot struct {
	*Lot
	tracer trace.Tracer

	// Metrics
	operations        metric.Int64Counter
	occupancy         metric.Int64UpDownCounter
	operationDuration metric.Float64Histogram

	mu        sync.RWMutex
	observers []Observer

	// order is held from a mutation through its notification so observers
	// see changes in the order they were applied.
	order sync.Mutex
}

func NewInstrumentedLot(lot *Lot, telemetry Telemetry) (*InstrumentedLot, error) {
	meter := telemetry.Meter()

	operations, err := meter.Int64Counter("parking_operations_total",
		metric.WithDescription("Total number of parking operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancy, err := meter.Int64UpDownCounter("parking_section_occupancy",
		metric.WithDescription("Current number of occupied spots per section"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("parking_operation_duration_seconds",
		metric.WithDescription("Duration of parking operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &InstrumentedLot{
		Lot:               lot,
		tracer:            telemetry.Tracer(),
		operations:        operations,
		occupancy:         occupancy,
		operationDuration: operationDuration,
	}, nil
}

// Observe registers fn to be called after every mutation. Calls are
// serialised and arrive in mutation order; fn must not call back into il.
func (il *InstrumentedLot) Observe(fn Observer) {
	il.mu.Lock()
	il.observers = append(il.observers, fn)
	il.mu.Unlock()
}

func (il *InstrumentedLot) State(ctx context.Context) (State, error) {
	return il.View(ctx, 0), nil
}

// View returns a snapshot padded to spots entries; 0 means the capacity.
func (il *InstrumentedLot) View(ctx context.Context, spots int) State {
	ctx, span := il.tracer.Start(ctx, "parking_lot.state",
		trace.WithAttributes(attribute.Int("view.spots", spots)))
	defer span.End()

	start := time.Now()
	state := il.Lot.SnapshotWithSpots(spots)

	span.SetAttributes(
		attribute.Int("stack.count", state.StackCount),
		attribute.Int("queue.count", state.QueueCount),
		attribute.Int("max_spots", state.MaxSpots),
	)
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", OpState),
		attribute.String("status", "success"),
	))
	return state, nil
}

func (il *InstrumentedLot) ParkStack(ctx context.Context, req ParkRequest) (State, error) {
	return il.park(ctx, OpParkStack, SectionStack, req, il.Lot.PushStack)
}

func (il *InstrumentedLot) ParkQueue(ctx context.Context, req ParkRequest) (State, error) {
	return il.park(ctx, OpParkQueue, SectionQueue, req, il.Lot.PushQueue)
}

func (il *InstrumentedLot) RemoveStack(ctx context.Context) (State, error) {
	return il.remove(ctx, OpRemoveStack, SectionStack, il.Lot.PopStack)
}

func (il *InstrumentedLot) RemoveQueue(ctx context.Context) (State, error) {
	return il.remove(ctx, OpRemoveQueue, SectionQueue, il.Lot.PopQueue)
}

func (il *InstrumentedLot) ClearAll(ctx context.Context) (State, error) {
	il.order.Lock()
	defer il.order.Unlock()

	ctx, span := il.tracer.Start(ctx, "parking_lot.clear_all")
	defer span.End()

	start := time.Now()

	span.AddEvent("clearing_sections")
	stackBefore, queueBefore, state := il.Lot.clear()

	il.occupancy.Add(ctx, -int64(stackBefore), metric.WithAttributes(attribute.String("section", SectionStack)))
	il.occupancy.Add(ctx, -int64(queueBefore), metric.WithAttributes(attribute.String("section", SectionQueue)))

	span.SetAttributes(
		attribute.Int("stack.cleared", stackBefore),
		attribute.Int("queue.cleared", queueBefore),
	)
	il.finish(ctx, span, start, OpClearAll, "", nil)
	il.notify(ctx, Change{Operation: OpClearAll, State: state})
	return state, nil
}

func (il *InstrumentedLot) park(ctx context.Context, op, section string, req ParkRequest, push func(Car) (State, error)) (State, error) {
	il.order.Lock()
	defer il.order.Unlock()

	ctx, span := il.tracer.Start(ctx, "parking_lot."+op,
		trace.WithAttributes(
			attribute.String("car.id", req.CarID),
			attribute.String("car.color", req.Color),
			attribute.String("section", section),
		))
	defer span.End()

	start := time.Now()

	car, err := il.Lot.NewCar(req.CarID, req.Color, req.Timestamp)
	if err != nil {
		il.finish(ctx, span, start, op, section, err)
		il.notify(ctx, Change{Operation: op, Section: section, State: il.Lot.Snapshot(), Err: err})
		return State{}, err
	}

	span.AddEvent("finding_free_spot")
	state, err := push(car)
	il.finish(ctx, span, start, op, section, err)
	if err != nil {
		il.notify(ctx, Change{Operation: op, Section: section, State: il.Lot.Snapshot(), Err: err})
		return State{}, err
	}

	if parked := state.Section(section).Last(); parked != nil {
		car = *parked
	}
	span.SetAttributes(attribute.String("car.assigned_id", car.ID))
	span.AddEvent("car_parked")
	il.occupancy.Add(ctx, 1, metric.WithAttributes(attribute.String("section", section)))
	il.notify(ctx, Change{Operation: op, Section: section, Car: &car, State: state})
	return state, nil
}

func (il *InstrumentedLot) remove(ctx context.Context, op, section string, pop func() (Car, State, error)) (State, error) {
	il.order.Lock()
	defer il.order.Unlock()

	ctx, span := il.tracer.Start(ctx, "parking_lot."+op,
		trace.WithAttributes(attribute.String("section", section)))
	defer span.End()

	start := time.Now()

	span.AddEvent("releasing_spot")
	car, state, err := pop()
	il.finish(ctx, span, start, op, section, err)
	if err != nil {
		il.notify(ctx, Change{Operation: op, Section: section, State: il.Lot.Snapshot(), Err: err})
		return State{}, err
	}

	span.SetAttributes(
		attribute.String("car.id", car.ID),
		attribute.String("car.color", car.Color),
	)
	span.AddEvent("car_removed")
	il.occupancy.Add(ctx, -1, metric.WithAttributes(attribute.String("section", section)))
	il.notify(ctx, Change{Operation: op, Section: section, Car: &car, State: state})
	return state, nil
}

// finish records the outcome of an operation on its span and metrics.
func (il *InstrumentedLot) finish(ctx context.Context, span trace.Span, start time.Time, op, section string, err error) {
	labels := []attribute.KeyValue{
		attribute.String("operation", op),
	}
	if section != "" {
		labels = append(labels, attribute.String("section", section))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		labels = append(labels, attribute.String("status", "failed"))
	} else {
		labels = append(labels, attribute.String("status", "success"))
	}

	il.operations.Add(ctx, 1, metric.WithAttributes(labels...))
	il.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))
}

func (il *InstrumentedLot) notify(ctx context.Context, c Change) {
	il.mu.RLock()
	observers := il.observers
	il.mu.RUnlock()

	for _, fn := range observers {
		fn(ctx, c)
	}
}
