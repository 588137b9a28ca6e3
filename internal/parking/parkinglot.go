package parking

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxSpots    = 10
	DefaultSpotsPerRow = 5

	// MaxViewSpots bounds SnapshotWithSpots when the capacity is smaller.
	MaxViewSpots = 1000
)

// State is the full snapshot returned after every operation.
type State struct {
	Stack          Slots `json:"stack"`
	Queue          Slots `json:"queue"`
	MaxSpots       int   `json:"max_spots"`
	MaxSpotsPerRow int   `json:"max_spots_per_row"`
	StackCount     int   `json:"stack_count"`
	QueueCount     int   `json:"queue_count"`
	TotalCount     int   `json:"total_count"`

	// Version increases with every change to the lot. Later states carry
	// higher versions.
	Version uint64 `json:"-"`
}

// Lot owns a LIFO stack section and a FIFO queue section of equal capacity.
// All methods are safe for concurrent use; one mutex serialises every
// mutation and snapshot.
type Lot struct {
	mu          sync.Mutex
	stack       *Section
	queue       *Section
	capacity    int
	spotsPerRow int
	issued      int
	version     uint64
	now         func() time.Time // injectable for deterministic tests
}

// NewLot creates an empty lot. Non-positive arguments fall back to the defaults.
func NewLot(capacity, spotsPerRow int) *Lot {
	if capacity <= 0 {
		capacity = DefaultMaxSpots
	}
	if spotsPerRow <= 0 {
		spotsPerRow = DefaultSpotsPerRow
	}

	return &Lot{
		stack:       newSection(SectionStack, LIFO, capacity),
		queue:       newSection(SectionQueue, FIFO, capacity),
		capacity:    capacity,
		spotsPerRow: spotsPerRow,
		now:         time.Now,
	}
}

// NewCar builds a car for a park request. An empty colour becomes
// DefaultColor and a zero timestamp the current time in Unix milliseconds.
// An empty id is kept; the push that parks the car names it "Car-N".
func (l *Lot) NewCar(id, color string, timestamp int64) (Car, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if timestamp == 0 {
		timestamp = l.now().UnixMilli()
	}
	return NewCar(id, color, timestamp)
}

func (l *Lot) PushStack(car Car) (State, error) {
	return l.push(l.stack, car)
}

func (l *Lot) PushQueue(car Car) (State, error) {
	return l.push(l.queue, car)
}

// PopStack removes the most recently parked stack car.
func (l *Lot) PopStack() (Car, State, error) {
	return l.pop(l.stack)
}

// PopQueue removes the earliest parked queue car.
func (l *Lot) PopQueue() (Car, State, error) {
	return l.pop(l.queue)
}

func (l *Lot) ClearAll() State {
	_, _, state := l.clear()
	return state
}

// clear empties both sections and reports how many cars each one held.
func (l *Lot) clear() (stack, queue int, state State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stack, queue = l.stack.count(), l.queue.count()
	l.stack.clear()
	l.queue.clear()
	l.version++
	return stack, queue, l.snapshot(l.capacity)
}

func (l *Lot) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot(l.capacity)
}

// SnapshotWithSpots pads both sections to spots entries instead of the
// capacity and reports spots as MaxSpots. It never hides a parked car: spots
// below the occupancy of a section is raised to that occupancy. spots above
// MaxViewSpots (or the capacity, if larger) is lowered to that bound.
func (l *Lot) SnapshotWithSpots(spots int) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spots <= 0 {
		spots = l.capacity
	}
	return l.snapshot(min(spots, l.viewLimit()))
}

// Resize changes the capacity of both sections. Shrinking below the number
// of cars parked in either section fails and leaves the capacity unchanged.
func (l *Lot) Resize(capacity int) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stack.count() > capacity {
		return &SectionError{Section: SectionStack, Capacity: capacity, Err: ErrCapacityExceeded}
	}
	if l.queue.count() > capacity {
		return &SectionError{Section: SectionQueue, Capacity: capacity, Err: ErrCapacityExceeded}
	}
	// Both checks passed, so neither resize can fail.
	_ = l.stack.resize(capacity)
	_ = l.queue.resize(capacity)
	l.capacity = capacity
	l.version++
	return nil
}

func (l *Lot) SetSpotsPerRow(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.spotsPerRow = n
	l.version++
	l.mu.Unlock()
}

// ViewLimit is the largest spots value SnapshotWithSpots honours.
func (l *Lot) ViewLimit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLimit()
}

func (l *Lot) viewLimit() int {
	return max(l.capacity, MaxViewSpots)
}

func (l *Lot) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// Counts returns the occupied slots of the stack and queue sections.
func (l *Lot) Counts() (stack, queue int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stack.count(), l.queue.count()
}

// push parks car in s. A car without an id is named "Car-N"; N is only
// consumed when the push succeeds.
func (l *Lot) push(s *Section, car Car) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	named := car.ID == ""
	if named {
		car.ID = fmt.Sprintf("Car-%d", l.issued+1)
	}
	if err := s.push(car); err != nil {
		return State{}, err
	}
	if named {
		l.issued++
	}
	l.version++
	return l.snapshot(l.capacity), nil
}

func (l *Lot) pop(s *Section) (Car, State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	car, err := s.pop()
	if err != nil {
		return Car{}, State{}, err
	}
	l.version++
	return car, l.snapshot(l.capacity), nil
}

// snapshot must be called with l.mu held. Both sections are padded to the
// same length, which is reported as MaxSpots.
func (l *Lot) snapshot(spots int) State {
	stackCount, queueCount := l.stack.count(), l.queue.count()
	spots = max(spots, stackCount, queueCount)
	return State{
		Stack:          l.stack.slots(spots),
		Queue:          l.queue.slots(spots),
		MaxSpots:       spots,
		MaxSpotsPerRow: l.spotsPerRow,
		StackCount:     stackCount,
		QueueCount:     queueCount,
		TotalCount:     stackCount + queueCount,
		Version:        l.version,
	}
}

// Section returns the slots of the named section.
func (s State) Section(name string) Slots {
	if name == SectionQueue {
		return s.Queue
	}
	return s.Stack
}
