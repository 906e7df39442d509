package view

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/skypies/geo"
)

// CellKind tells a front end how to colour a cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellFrame
	CellCompass
	CellCenter
	CellPath
	CellAircraft
	CellSelected
	CellLabel
	CellUser
)

// Cell is one character of the map grid.
type Cell struct {
	Ch   rune
	Kind CellKind
}

// Grid rasterizes a snapshot. selected, when non-empty, names the marker
// that gets a highlight and a callsign label.
func Grid(snap Snapshot, proj Projection, selected string) [][]Cell {
	grid := make([][]Cell, proj.Height)
	for y := range grid {
		grid[y] = make([]Cell, proj.Width)
		for x := range grid[y] {
			grid[y][x] = Cell{Ch: ' '}
		}
	}
	if proj.Width == 0 || proj.Height == 0 {
		return grid
	}

	set := func(x, y int, ch rune, kind CellKind) {
		if y >= 0 && y < len(grid) && x >= 0 && x < len(grid[y]) {
			grid[y][x] = Cell{Ch: ch, Kind: kind}
		}
	}

	// Box outline corners and north marker
	ax, ay, aw, ah := proj.Area()
	set(ax, ay, '┌', CellFrame)
	set(ax+aw-1, ay, '┐', CellFrame)
	set(ax, ay+ah-1, '└', CellFrame)
	set(ax+aw-1, ay+ah-1, '┘', CellFrame)
	set(ax+aw/2, ay, 'N', CellCompass)

	if cx, cy, ok := proj.Project(proj.Center); ok {
		set(cx, cy, '+', CellCenter)
	}

	for _, path := range snap.Paths {
		for i := 1; i < len(path); i++ {
			x0, y0, ok0 := proj.Project(path[i-1])
			x1, y1, ok1 := proj.Project(path[i])
			if !ok0 || !ok1 {
				continue
			}
			drawLine(x0, y0, x1, y1, func(x, y int) {
				if grid[y][x].Kind == CellEmpty || grid[y][x].Kind == CellCenter {
					set(x, y, '·', CellPath)
				}
			})
		}
	}

	if snap.User != nil {
		if x, y, ok := proj.Project(snap.User.Position); ok {
			set(x, y, '◉', CellUser)
		}
	}

	var label struct {
		x, y int
		text string
	}
	for _, m := range snap.Markers {
		x, y, ok := proj.Project(m.Position)
		if !ok {
			continue
		}
		kind := CellAircraft
		if m.ID == selected {
			kind = CellSelected
			label.x, label.y, label.text = x+2, y, m.Popup.Callsign
		}
		set(x, y, Glyph(m.Heading), kind)
	}

	for i, ch := range label.text {
		x := label.x + i
		if label.y < len(grid) && x < proj.Width && grid[label.y][x].Kind != CellAircraft {
			set(x, label.y, ch, CellLabel)
		}
	}

	return grid
}

// drawLine visits the cells between two points (DDA).
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx, dy := x1-x0, y1-y0
	steps := max(abs(dx), abs(dy))
	if steps == 0 {
		plot(x0, y0)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		plot(x0+int(math.Round(t*float64(dx))), y0+int(math.Round(t*float64(dy))))
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var cellStyles = map[CellKind]lipgloss.Style{
	CellFrame:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	CellCompass:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Bold(true),
	CellCenter:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	CellPath:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	CellAircraft: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
	CellSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
	CellLabel:    lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	CellUser:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true),
}

// RenderRadar renders the map view as styled text inside a border.
func RenderRadar(snap Snapshot, proj Projection, selected string) string {
	var b strings.Builder
	for y, row := range Grid(snap, proj, selected) {
		if y > 0 {
			b.WriteString("\n")
		}
		for _, c := range row {
			if style, ok := cellStyles[c.Kind]; ok {
				b.WriteString(style.Render(string(c.Ch)))
			} else {
				b.WriteRune(c.Ch)
			}
		}
	}

	border := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))
	return border.Render(b.String())
}

// RenderRadarInfo renders the side panel for the map view.
func RenderRadarInfo(snap Snapshot, center geo.Latlong, name string, radius float64, selected string) string {
	var info strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	info.WriteString(headerStyle.Render("MAP"))
	info.WriteString("\n\n")

	info.WriteString(fmt.Sprintf("Center: %s\n", name))
	info.WriteString(fmt.Sprintf("Radius: %.1f°\n", radius))
	info.WriteString(fmt.Sprintf("Position: %.4f°, %.4f°\n", center.Lat, center.Long))
	info.WriteString(fmt.Sprintf("Aircraft: %d on map\n", len(snap.Markers)))
	info.WriteString(fmt.Sprintf("Paths: %d\n", len(snap.Paths)))

	if snap.User != nil {
		km, brg := RangeBearing(center, snap.User.Position)
		info.WriteString(fmt.Sprintf("You: %.1f km @ %03.0f° (±%.0f m)\n", km, brg, snap.User.AccuracyM))
	}

	for _, m := range snap.Markers {
		if m.ID != selected {
			continue
		}
		km, brg := RangeBearing(center, m.Position)
		info.WriteString("\n")
		info.WriteString(headerStyle.Render(m.Popup.Callsign))
		info.WriteString("\n")
		info.WriteString(fmt.Sprintf("Country:  %s\n", m.Popup.Country))
		info.WriteString(fmt.Sprintf("Altitude: %s\n", m.Popup.Altitude))
		info.WriteString(fmt.Sprintf("Speed:    %s\n", m.Popup.Velocity))
		info.WriteString(fmt.Sprintf("Heading:  %s\n", m.Popup.Heading))
		info.WriteString(fmt.Sprintf("Range:    %.1f km @ %03.0f°\n", km, brg))
		if path, ok := snap.Paths[m.ID]; ok {
			info.WriteString(fmt.Sprintf("Track:    %d points\n", len(path)))
		}
	}

	return info.String()
}
