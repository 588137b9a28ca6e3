package parking

import (
	"fmt"
	"regexp"
)

// DefaultColor is used when a park request carries no colour.
const DefaultColor = "#3498db"

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Car is an immutable record parked in a section. IDs are not required to be
// unique; the lot never deduplicates.
type Car struct {
	ID        string `json:"id"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

func NewCar(id, color string, timestamp int64) (Car, error) {
	if color == "" {
		color = DefaultColor
	}
	if !ValidColor(color) {
		return Car{}, fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	return Car{
		ID:        id,
		Color:     color,
		Timestamp: timestamp,
	}, nil
}

// ValidColor reports whether c is a "#rrggbb" hex colour.
func ValidColor(c string) bool {
	return colorPattern.MatchString(c)
}
