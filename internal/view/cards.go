// Package view renders flights for terminal front ends: a list of cards
// and a radar-style map drawn onto a rune grid.
package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/skytrack/pkg/opensky"
)

// Field is one labelled value on a flight card.
type Field struct {
	Label string
	Value string
}

// CardFields lists what a flight card shows, in display order.
func CardFields(f opensky.Flight) []Field {
	return []Field{
		{"Callsign", f.Callsign},
		{"Country", f.Country},
		{"Altitude", f.Altitude},
		{"Speed", f.Velocity},
		{"Heading", f.Heading},
		{"Position", FormatPosition(f)},
	}
}

// FormatPosition renders "lat°, lon°" with four decimals, or N/A.
func FormatPosition(f opensky.Flight) string {
	if !f.HasPosition {
		return opensky.NotAvailable
	}
	return fmt.Sprintf("%.4f°, %.4f°", f.Latitude, f.Longitude)
}

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	cardTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// cardWidth is the outer width of one card including border and padding.
const cardWidth = 34

// RenderCard renders one flight card.
func RenderCard(f opensky.Flight) string {
	var b strings.Builder
	b.WriteString(cardTitleStyle.Render("✈ " + f.Callsign))
	for _, field := range CardFields(f)[1:] {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", field.Label)))
		b.WriteString(valueStyle.Render(field.Value))
	}
	return cardStyle.Width(cardWidth - 2).Render(b.String())
}

// RenderCards lays cards out in as many columns as fit in width.
func RenderCards(flights []opensky.Flight, width int) string {
	if len(flights) == 0 {
		return ""
	}

	cols := width / cardWidth
	if cols < 1 {
		cols = 1
	}

	var rows []string
	for start := 0; start < len(flights); start += cols {
		end := start + cols
		if end > len(flights) {
			end = len(flights)
		}
		cards := make([]string, 0, end-start)
		for _, f := range flights[start:end] {
			cards = append(cards, RenderCard(f))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
