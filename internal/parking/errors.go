package parking

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrEmpty            = errors.New("section is empty")
	ErrInvalidColor     = errors.New("invalid color")
	ErrInvalidCapacity  = errors.New("capacity must be greater than 0")
)

// SectionError ties a sentinel error to the section it happened in.
// Its message is what clients display, so it reads as a sentence.
type SectionError struct {
	Section  string
	Capacity int
	Err      error
}

func (e *SectionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrEmpty):
		return fmt.Sprintf("No cars in %s section", e.Section)
	case errors.Is(e.Err, ErrCapacityExceeded):
		return fmt.Sprintf("No free spots in %s section (capacity %d)", e.Section, e.Capacity)
	default:
		return fmt.Sprintf("%s section: %v", e.Section, e.Err)
	}
}

func (e *SectionError) Unwrap() error {
	return e.Err
}
