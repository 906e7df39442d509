package view

import (
	"slices"
	"sort"
	"sync"

	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/pkg/tracking"
)

// Marker is a drawn aircraft.
type Marker struct {
	ID       string
	Position geo.Latlong
	Heading  float64
	Popup    tracking.Popup
}

// Snapshot is an immutable copy of a MapLayer's contents.
type Snapshot struct {
	Markers []Marker
	Paths   map[string][]geo.Latlong
	User    *tracking.UserPosition
}

// MapLayer keeps what the reconciler and the user overlay have drawn so a
// terminal can render it on its next frame. It implements
// tracking.MarkerLayer and tracking.UserLayer and is safe for concurrent use.
type MapLayer struct {
	mu      sync.Mutex
	markers map[string]*Marker
	paths   map[string][]geo.Latlong
	user    *tracking.UserPosition
}

// NewMapLayer creates an empty layer.
func NewMapLayer() *MapLayer {
	return &MapLayer{
		markers: make(map[string]*Marker),
		paths:   make(map[string][]geo.Latlong),
	}
}

func (l *MapLayer) AddMarker(id string, pos geo.Latlong, heading float64, popup tracking.Popup) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers[id] = &Marker{ID: id, Position: pos, Heading: heading, Popup: popup}
}

func (l *MapLayer) MoveMarker(id string, pos geo.Latlong, heading float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.markers[id]; ok {
		m.Position = pos
		m.Heading = heading
	}
}

func (l *MapLayer) RemoveMarker(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.markers, id)
}

func (l *MapLayer) AddPath(id string, points []geo.Latlong) {
	l.UpdatePath(id, points)
}

func (l *MapLayer) UpdatePath(id string, points []geo.Latlong) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths[id] = points
}

func (l *MapLayer) RemovePath(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.paths, id)
}

func (l *MapLayer) SetUserLocation(p tracking.UserPosition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.user = &p
}

func (l *MapLayer) ClearUserLocation() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.user = nil
}

// Snapshot copies the current contents. Markers are ordered by ID.
func (l *MapLayer) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		Markers: make([]Marker, 0, len(l.markers)),
		Paths:   make(map[string][]geo.Latlong, len(l.paths)),
	}
	for _, m := range l.markers {
		s.Markers = append(s.Markers, *m)
	}
	sort.Slice(s.Markers, func(i, j int) bool { return s.Markers[i].ID < s.Markers[j].ID })
	for id, p := range l.paths {
		s.Paths[id] = slices.Clone(p)
	}
	if l.user != nil {
		u := *l.user
		s.User = &u
	}
	return s
}
