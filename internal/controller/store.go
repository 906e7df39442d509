package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Store owns a State for front ends that run searches off their event
// loop. Dispatch is safe for concurrent use; subscribers are called
// after every change, outside the lock.
//
// Overlapping Submits are not sequenced: whichever resolves last wins.
type Store struct {
	mu     sync.Mutex
	state  State
	ctrl   *Controller
	subs   []func(State)
	logger *slog.Logger
}

// NewStore creates a store with an initial state.
func NewStore(ctrl *Controller, initial State, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{state: initial, ctrl: ctrl, logger: logger}
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every new state.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Dispatch reduces a into the state and notifies subscribers.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	st := s.state
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return st
}

// Submit runs a full search and blocks until it completes. Every outcome,
// a panic in a collaborator included, ends as a message in the state and
// the loading flag is always cleared.
func (s *Store) Submit(ctx context.Context, query string, radius float64) {
	s.Dispatch(SetQuery{Query: query})
	s.Dispatch(SetRadius{Radius: radius})
	s.Dispatch(SearchStarted{Query: query, Radius: radius})
	defer s.Dispatch(SearchFinished{})
	defer s.recoverSearch(query)

	res, err := s.ctrl.Search(ctx, query, radius)
	if err != nil {
		s.Dispatch(SearchFailed{Result: res, Err: err})
		return
	}
	s.Dispatch(SearchSucceeded{Result: res})
}

// Refresh re-fetches around the current result without geocoding again.
// It is a no-op before the first resolved search or while one is running.
func (s *Store) Refresh(ctx context.Context) {
	st := s.State()
	if st.Location == nil || st.Loading {
		return
	}
	defer s.recoverSearch(st.ResultQuery)

	res, err := s.ctrl.Refresh(ctx, *st.Location, st.ResultRadius)
	if err != nil {
		s.Dispatch(SearchFailed{Result: res, Err: err})
		return
	}
	s.Dispatch(SearchSucceeded{Result: res})
}

func (s *Store) recoverSearch(query string) {
	if r := recover(); r != nil {
		s.logger.Error("search panicked", "query", query, "panic", r)
		s.Dispatch(SearchFailed{Err: fmt.Errorf("unexpected error: %v", r)})
	}
}
