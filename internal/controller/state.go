// Package controller holds the tracker's UI state and orchestrates a
// search: resolve the query, fetch flights around it, report the outcome.
// State changes go through Reduce so every front end shares one state
// machine.
package controller

import (
	"errors"
	"time"

	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
)

// Phase is the search lifecycle position.
type Phase int

const (
	Idle Phase = iota
	Searching
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Searching:
		return "searching"
	case Succeeded:
		return "success"
	case Failed:
		return "error"
	default:
		return "idle"
	}
}

// View selects how flights are presented.
type View int

const (
	ListView View = iota
	MapView
)

func (v View) String() string {
	if v == MapView {
		return "map"
	}
	return "list"
}

// State is everything a front end needs to draw.
type State struct {
	// Query is the search text being edited
	Query string

	// Radius is the selected search radius in degrees
	Radius float64

	Phase   Phase
	Loading bool
	Message string

	// Location is the current search center, nil before the first result
	Location *geocode.Location

	// Flights is the latest airborne set
	Flights []opensky.Flight

	// ResultQuery is the query that produced Flights. With overlapping
	// searches the last one to resolve wins, so it may differ from Query.
	ResultQuery  string
	ResultRadius float64
	UpdatedAt    time.Time

	View View
}

// NewState returns the initial state.
func NewState(query string, radius float64, view View) State {
	if opensky.ValidateRadius(radius) != nil {
		radius = opensky.Radii[0]
	}
	return State{Query: query, Radius: radius, View: view}
}

// Action is an input to Reduce.
type Action interface {
	isAction()
}

type (
	SetQuery   struct{ Query string }
	SetRadius  struct{ Radius float64 }
	SetView    struct{ View View }
	ToggleView struct{}

	// SearchStarted is dispatched when the user submits a search.
	SearchStarted struct {
		Query  string
		Radius float64
	}

	// SearchSucceeded carries a fetched result, from a search or a refresh.
	SearchSucceeded struct{ Result Result }

	// SearchFailed carries the failure and, when the location resolved,
	// the partial result.
	SearchFailed struct {
		Result Result
		Err    error
	}

	// SearchFinished always follows a started search, whatever the outcome.
	SearchFinished struct{}
)

func (SetQuery) isAction()        {}
func (SetRadius) isAction()       {}
func (SetView) isAction()         {}
func (ToggleView) isAction()      {}
func (SearchStarted) isAction()   {}
func (SearchSucceeded) isAction() {}
func (SearchFailed) isAction()    {}
func (SearchFinished) isAction()  {}

// Reduce returns the state after applying a. It never mutates s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetQuery:
		s.Query = a.Query

	case SetRadius:
		if opensky.ValidateRadius(a.Radius) == nil {
			s.Radius = a.Radius
		}

	case SetView:
		s.View = a.View

	case ToggleView:
		if s.View == ListView {
			s.View = MapView
		} else {
			s.View = ListView
		}

	case SearchStarted:
		s.Phase = Searching
		s.Loading = true
		s.Message = ""

	case SearchSucceeded:
		s.Phase = Succeeded
		s.applyResult(a.Result)
		s.Message = ""
		if len(s.Flights) == 0 {
			s.Message = MessageFor(opensky.ErrNoAircraft)
		}

	case SearchFailed:
		s.Phase = Failed
		s.Message = MessageFor(a.Err)
		// The area is valid but empty: recenter and show nothing
		if errors.Is(a.Err, opensky.ErrNoAircraft) && !a.Result.FetchedAt.IsZero() {
			s.applyResult(a.Result)
		}

	case SearchFinished:
		s.Loading = false
	}
	return s
}

func (s *State) applyResult(r Result) {
	loc := r.Location
	s.Location = &loc
	s.Flights = r.Flights
	s.ResultQuery = r.Location.Query
	s.ResultRadius = r.Radius
	s.UpdatedAt = r.FetchedAt
}
