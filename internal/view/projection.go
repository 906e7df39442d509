package view

import (
	"math"

	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/pkg/opensky"
	"github.com/unklstewy/skytrack/pkg/tracking"
)

// Character aspect ratio correction: terminal characters are ~2:1 (height:width)
const aspectRatio = 0.5

// Projection maps the search bounding box onto a character grid. The box
// is drawn undistorted: a degree of longitude is narrower than a degree
// of latitude away from the equator, and a cell is twice as tall as wide.
type Projection struct {
	Center geo.Latlong
	Radius float64
	Width  int
	Height int

	cols, rows int
	offX, offY int
}

// NewProjection fits the box center ± radius into width x height cells.
func NewProjection(center geo.Latlong, radius float64, width, height int) Projection {
	p := Projection{Center: center, Radius: radius, Width: width, Height: height}
	if width < 1 || height < 1 || radius <= 0 {
		return p
	}

	// Ground width/height of a square-in-degrees box
	ratio := math.Cos(center.Lat * math.Pi / 180)
	if ratio < 0.1 {
		ratio = 0.1
	}

	p.rows = height
	p.cols = int(float64(p.rows) * ratio / aspectRatio)
	if p.cols > width {
		p.cols = width
		p.rows = int(float64(p.cols) * aspectRatio / ratio)
	}
	p.cols = max(p.cols, 1)
	p.rows = max(p.rows, 1)

	p.offX = (width - p.cols) / 2
	p.offY = (height - p.rows) / 2
	return p
}

// Area returns the drawn rectangle within the grid.
func (p Projection) Area() (x, y, w, h int) {
	return p.offX, p.offY, p.cols, p.rows
}

// Project returns the cell for ll, or ok=false outside the box.
func (p Projection) Project(ll geo.Latlong) (x, y int, ok bool) {
	if p.cols == 0 || p.rows == 0 {
		return -1, -1, false
	}
	box := opensky.BoundingBox(p.Center, p.Radius)
	fx := (ll.Long - box.SW.Long) / (box.NE.Long - box.SW.Long)
	fy := (box.NE.Lat - ll.Lat) / (box.NE.Lat - box.SW.Lat)
	if fx < 0 || fx > 1 || fy < 0 || fy > 1 {
		return -1, -1, false
	}
	x = p.offX + int(math.Round(fx*float64(p.cols-1)))
	y = p.offY + int(math.Round(fy*float64(p.rows-1)))
	return x, y, true
}

var arrows = []rune("↑↗→↘↓↙←↖")

// Glyph returns the arrow closest to heading (degrees clockwise from north).
func Glyph(heading float64) rune {
	idx := int(math.Round(tracking.NormalizeHeading(heading)/45)) % len(arrows)
	return arrows[idx]
}

// RangeBearing returns the distance in km and the bearing in degrees from
// center to p.
func RangeBearing(center, p geo.Latlong) (km, bearing float64) {
	return center.DistKM(p), tracking.NormalizeHeading(center.BearingTowards(p))
}
