package parking

import "context"

// Operation names, shared by the HTTP routes, the journal and the shell.
const (
	OpState       = "state"
	OpParkStack   = "park_stack"
	OpParkQueue   = "park_queue"
	OpRemoveStack = "remove_stack"
	OpRemoveQueue = "remove_queue"
	OpClearAll    = "clear_all"
)

// ParkRequest is the body of a park call.
type ParkRequest struct {
	CarID     string `json:"car_id"`
	Color     string `json:"color,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Operator is the six-operation surface of the service. It is implemented
// in-process by InstrumentedLot and remotely by client.Client.
type Operator interface {
	State(ctx context.Context) (State, error)
	ParkStack(ctx context.Context, req ParkRequest) (State, error)
	ParkQueue(ctx context.Context, req ParkRequest) (State, error)
	RemoveStack(ctx context.Context) (State, error)
	RemoveQueue(ctx context.Context) (State, error)
	ClearAll(ctx context.Context) (State, error)
}

// Change describes one completed mutation. Car is the parked or removed car
// and is nil for clear_all and for failures. State is the lot after the call.
type Change struct {
	Operation string
	Section   string
	Car       *Car
	State     State
	Err       error
}

// Observer is notified after every mutation, successful or not.
type Observer func(ctx context.Context, c Change)
