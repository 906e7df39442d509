package tracking

import (
	"sync"

	"github.com/skypies/geo"
)

// Patch operation kinds.
const (
	OpAdd    = "add"
	OpMove   = "move"
	OpRemove = "remove"
	OpPath   = "path"
	OpUnpath = "unpath"
	OpUser   = "user"
	OpUnuser = "unuser"
)

// Point is a [lat, lon] pair, the order Leaflet expects.
type Point [2]float64

func toPoint(ll geo.Latlong) Point {
	return Point{ll.Lat, ll.Long}
}

// Op is one drawing instruction for a remote map.
type Op struct {
	Kind     string  `json:"op"`
	ID       string  `json:"id,omitempty"`
	Position *Point  `json:"pos,omitempty"`
	Heading  float64 `json:"heading"`
	Popup    *Popup  `json:"popup,omitempty"`
	Path     []Point `json:"path,omitempty"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// PatchLayer records drawing operations instead of drawing. A consumer
// calls Flush to collect them; Changed signals that ops are pending.
// It satisfies MarkerLayer and UserLayer and is safe for concurrent use.
type PatchLayer struct {
	mu      sync.Mutex
	ops     []Op
	changed chan struct{}
}

// NewPatchLayer creates an empty patch layer.
func NewPatchLayer() *PatchLayer {
	return &PatchLayer{changed: make(chan struct{}, 1)}
}

// Changed receives a value whenever ops were recorded since the last signal.
func (p *PatchLayer) Changed() <-chan struct{} {
	return p.changed
}

// Flush returns and forgets the recorded ops.
func (p *PatchLayer) Flush() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := p.ops
	p.ops = nil
	return ops
}

func (p *PatchLayer) record(op Op) {
	p.mu.Lock()
	p.ops = append(p.ops, op)
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

func (p *PatchLayer) AddMarker(id string, pos geo.Latlong, heading float64, popup Popup) {
	pt := toPoint(pos)
	p.record(Op{Kind: OpAdd, ID: id, Position: &pt, Heading: heading, Popup: &popup})
}

func (p *PatchLayer) MoveMarker(id string, pos geo.Latlong, heading float64) {
	pt := toPoint(pos)
	p.record(Op{Kind: OpMove, ID: id, Position: &pt, Heading: heading})
}

func (p *PatchLayer) RemoveMarker(id string) {
	p.record(Op{Kind: OpRemove, ID: id})
}

func (p *PatchLayer) AddPath(id string, points []geo.Latlong) {
	p.record(Op{Kind: OpPath, ID: id, Path: toPoints(points)})
}

// UpdatePath resends the whole point sequence; the client replaces it.
func (p *PatchLayer) UpdatePath(id string, points []geo.Latlong) {
	p.record(Op{Kind: OpPath, ID: id, Path: toPoints(points)})
}

func (p *PatchLayer) RemovePath(id string) {
	p.record(Op{Kind: OpUnpath, ID: id})
}

func (p *PatchLayer) SetUserLocation(u UserPosition) {
	pt := toPoint(u.Position)
	p.record(Op{Kind: OpUser, Position: &pt, Heading: u.Heading, Accuracy: u.AccuracyM})
}

func (p *PatchLayer) ClearUserLocation() {
	p.record(Op{Kind: OpUnuser})
}

func toPoints(lls []geo.Latlong) []Point {
	pts := make([]Point, len(lls))
	for i, ll := range lls {
		pts[i] = toPoint(ll)
	}
	return pts
}
