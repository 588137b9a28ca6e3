package parking

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const cellWidth = 10

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	emptyStyle = lipgloss.NewStyle().
			Width(cellWidth).
			Align(lipgloss.Center).
			Foreground(lipgloss.Color("#6c7086"))
	cellStyle = lipgloss.NewStyle().
			Width(cellWidth).
			Align(lipgloss.Center).
			Bold(true)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#45475a")).
			Padding(0, 1)
)

// Render draws both sections as grids of MaxSpotsPerRow cells, each occupied
// cell coloured with its car's colour.
func Render(state State) string {
	stack := renderSection(fmt.Sprintf("STACK (LIFO) %d/%d", state.StackCount, state.MaxSpots), state.Stack, state.MaxSpotsPerRow)
	queue := renderSection(fmt.Sprintf("QUEUE (FIFO) %d/%d", state.QueueCount, state.MaxSpots), state.Queue, state.MaxSpotsPerRow)
	return lipgloss.JoinVertical(lipgloss.Left, stack, queue)
}

func renderSection(title string, slots Slots, perRow int) string {
	if perRow <= 0 {
		perRow = DefaultSpotsPerRow
	}

	lines := []string{titleStyle.Render(title)}
	for start := 0; start < len(slots); start += perRow {
		end := min(start+perRow, len(slots))
		cells := make([]string, 0, end-start)
		for _, car := range slots[start:end] {
			cells = append(cells, renderCell(car))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return sectionStyle.Render(strings.Join(lines, "\n"))
}

func renderCell(car *Car) string {
	if car == nil {
		return emptyStyle.Render("·")
	}
	id := car.ID
	if len(id) > cellWidth-2 {
		id = id[:cellWidth-3] + "…"
	}
	return cellStyle.Foreground(lipgloss.Color(car.Color)).Render(id)
}
