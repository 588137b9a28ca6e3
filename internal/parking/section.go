package parking

const (
	SectionStack = "stack"
	SectionQueue = "queue"
)

// Discipline decides which car leaves a section first.
type Discipline int

const (
	LIFO Discipline = iota
	FIFO
)

func (d Discipline) String() string {
	if d == FIFO {
		return "fifo"
	}
	return "lifo"
}

// Section is one bounded collection of cars. It is not safe for concurrent
// use; Lot serialises access.
type Section struct {
	name       string
	discipline Discipline
	capacity   int
	cars       []Car
}

func newSection(name string, discipline Discipline, capacity int) *Section {
	return &Section{
		name:       name,
		discipline: discipline,
		capacity:   capacity,
		cars:       make([]Car, 0, capacity),
	}
}

func (s *Section) push(car Car) error {
	if len(s.cars) >= s.capacity {
		return s.fail(ErrCapacityExceeded)
	}
	s.cars = append(s.cars, car)
	return nil
}

// pop removes the next car by discipline. Remaining cars keep their order and
// compact toward index 0.
func (s *Section) pop() (Car, error) {
	n := len(s.cars)
	if n == 0 {
		return Car{}, s.fail(ErrEmpty)
	}

	if s.discipline == LIFO {
		car := s.cars[n-1]
		s.cars = s.cars[:n-1]
		return car, nil
	}

	car := s.cars[0]
	copy(s.cars, s.cars[1:])
	s.cars[n-1] = Car{}
	s.cars = s.cars[:n-1]
	return car, nil
}

func (s *Section) clear() {
	s.cars = s.cars[:0]
}

func (s *Section) resize(capacity int) error {
	if len(s.cars) > capacity {
		return &SectionError{Section: s.name, Capacity: capacity, Err: ErrCapacityExceeded}
	}
	s.capacity = capacity
	return nil
}

func (s *Section) slots(spots int) Slots {
	return newSlots(s.cars, spots)
}

func (s *Section) count() int {
	return len(s.cars)
}

func (s *Section) fail(err error) error {
	return &SectionError{Section: s.name, Capacity: s.capacity, Err: err}
}
