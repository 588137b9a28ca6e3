package parking

// Slots is the dense wire form of a section: occupied entries first, nil
// (JSON null) for every free spot after them.
type Slots []*Car

func newSlots(cars []Car, spots int) Slots {
	if spots < len(cars) {
		spots = len(cars)
	}
	slots := make(Slots, spots)
	for i := range cars {
		car := cars[i]
		slots[i] = &car
	}
	return slots
}

// Last returns the most recently parked car, nil when the section is empty.
// Both sections append at the end, so this is the highest occupied slot.
func (s Slots) Last() *Car {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			return s[i]
		}
	}
	return nil
}

// Occupied counts non-empty slots.
func (s Slots) Occupied() int {
	n := 0
	for _, car := range s {
		if car != nil {
			n++
		}
	}
	return n
}

// IDs returns the ids of occupied slots in slot order.
func (s Slots) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, car := range s {
		if car != nil {
			ids = append(ids, car.ID)
		}
	}
	return ids
}

// Contains reports whether a car with id is parked in any slot.
func (s Slots) Contains(id string) bool {
	for _, car := range s {
		if car != nil && car.ID == id {
			return true
		}
	}
	return false
}
