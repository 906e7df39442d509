package tracking

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/pkg/opensky"
)

// TrackedMarker is the reconciler's record of one on-map aircraft.
type TrackedMarker struct {
	ID       string
	Position geo.Latlong
	Heading  float64

	// Track holds every distinct position seen since the marker was created.
	// Consecutive points are never equal.
	Track []geo.Latlong

	// HasPath is set once a path overlay exists (len(Track) >= 2)
	HasPath bool
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	Created int
	Updated int
	Removed int
}

// Reconciler aligns rendered markers with successive flight lists.
// It lives as long as one map view; state carries across fetches so paths
// accumulate for the whole session.
type Reconciler struct {
	mu      sync.Mutex
	layer   MarkerLayer
	markers map[string]*TrackedMarker
	logger  *slog.Logger
}

// NewReconciler creates an empty reconciler drawing onto layer.
func NewReconciler(layer MarkerLayer, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		layer:   layer,
		markers: make(map[string]*TrackedMarker),
		logger:  logger,
	}
}

// Reconcile applies a freshly fetched flight list:
//
//  1. markers whose ID is absent from flights are removed along with their path
//  2. known IDs are moved and re-oriented; a differing position is appended
//     to the track and the path is created or extended once it has two points
//  3. unknown IDs get a new marker with a popup and a one-point track
//
// Flights without a position cannot be placed and count as absent.
func (r *Reconciler) Reconcile(flights []opensky.Flight) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats Stats

	present := make(map[string]struct{}, len(flights))
	for _, f := range flights {
		if f.HasPosition {
			present[f.ID] = struct{}{}
		}
	}

	for id, m := range r.markers {
		if _, ok := present[id]; ok {
			continue
		}
		r.evict(m)
		stats.Removed++
	}

	for _, f := range flights {
		if !f.HasPosition {
			continue
		}

		pos := f.Latlong()
		heading := NormalizeHeading(f.Track())

		m, ok := r.markers[f.ID]
		if !ok {
			r.markers[f.ID] = &TrackedMarker{
				ID:       f.ID,
				Position: pos,
				Heading:  heading,
				Track:    []geo.Latlong{pos},
			}
			r.layer.AddMarker(f.ID, pos, heading, PopupFor(f))
			stats.Created++
			continue
		}

		m.Position = pos
		m.Heading = heading
		r.layer.MoveMarker(f.ID, pos, heading)
		stats.Updated++

		if last := m.Track[len(m.Track)-1]; last == pos {
			continue
		}
		m.Track = append(m.Track, pos)

		if !m.HasPath {
			r.layer.AddPath(f.ID, slices.Clone(m.Track))
			m.HasPath = true
		} else {
			r.layer.UpdatePath(f.ID, slices.Clone(m.Track))
		}
	}

	r.logger.Debug("reconciled markers",
		"created", stats.Created,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"tracked", len(r.markers))

	return stats
}

// Clear removes every marker and path. Called when the map view goes away.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.markers {
		r.evict(m)
	}
}

// evict must be called with r.mu held.
func (r *Reconciler) evict(m *TrackedMarker) {
	if m.HasPath {
		r.layer.RemovePath(m.ID)
	}
	r.layer.RemoveMarker(m.ID)
	delete(r.markers, m.ID)
}

// Marker returns a copy of the tracked marker for id.
func (r *Reconciler) Marker(id string) (TrackedMarker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markers[id]
	if !ok {
		return TrackedMarker{}, false
	}
	cp := *m
	cp.Track = slices.Clone(m.Track)
	return cp, true
}

// Markers returns copies of all tracked markers ordered by ID.
func (r *Reconciler) Markers() []TrackedMarker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrackedMarker, 0, len(r.markers))
	for _, m := range r.markers {
		cp := *m
		cp.Track = slices.Clone(m.Track)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked markers.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}
