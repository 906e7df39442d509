package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skypies/geo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unklstewy/skytrack/internal/app"
	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
	"github.com/unklstewy/skytrack/pkg/tracking"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	maxMessageSize = 4096
)

var errClientGone = errors.New("client disconnected")

// clientMessage is anything the page sends. Type selects which fields apply.
type clientMessage struct {
	Type string `json:"type"`

	// search
	Query  string  `json:"query,omitempty"`
	Radius float64 `json:"radius,omitempty"`

	// view
	Map bool `json:"map,omitempty"`

	// locate: Orientation reports whether the device has a compass
	Enabled     bool `json:"enabled,omitempty"`
	Orientation bool `json:"orientation,omitempty"`

	// position
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Accuracy float64 `json:"accuracy,omitempty"`

	// orientation
	Alpha   *float64 `json:"alpha,omitempty"`
	Compass *float64 `json:"compass,omitempty"`
}

type stateMessage struct {
	Type      string            `json:"type"`
	Loading   bool              `json:"loading"`
	Phase     string            `json:"phase"`
	Message   string            `json:"message,omitempty"`
	Query     string            `json:"query"`
	Radius    float64           `json:"radius"`
	Location  *geocode.Location `json:"location,omitempty"`
	Count     int               `json:"count"`
	Flights   []opensky.Flight  `json:"flights"`
	View      string            `json:"view"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

type patchMessage struct {
	Type string        `json:"type"`
	Ops  []tracking.Op `json:"ops"`
}

func newStateMessage(st controller.State) stateMessage {
	msg := stateMessage{
		Type:     "state",
		Loading:  st.Loading,
		Phase:    st.Phase.String(),
		Message:  st.Message,
		Query:    st.ResultQuery,
		Radius:   st.ResultRadius,
		Location: st.Location,
		Count:    len(st.Flights),
		Flights:  st.Flights,
		View:     st.View.String(),
	}
	if msg.Query == "" {
		msg.Query, msg.Radius = st.Query, st.Radius
	}
	if msg.Flights == nil {
		msg.Flights = []opensky.Flight{}
	}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		msg.UpdatedAt = &t
	}
	return msg
}

// session is one connected page. It owns the page's state, and while the
// page shows the map, a reconciler whose drawing ops stream back as
// patches.
type session struct {
	conn    *websocket.Conn
	store   *controller.Store
	layer   *tracking.PatchLayer
	feed    *tracking.Feed
	refresh time.Duration
	logger  *slog.Logger

	// stateCh wakes the writer; it only ever holds one pending signal
	stateCh chan struct{}

	mu          sync.Mutex
	ctx         context.Context
	reconciler  *tracking.Reconciler
	overlay     *tracking.UserOverlay
	lastApplied time.Time

	submits sync.WaitGroup
}

// handleWebSocket upgrades the request and serves the session until the
// page goes away or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	logger := s.logger.With("session", conn.RemoteAddr().String())
	store := controller.NewStore(s.ctrl, app.InitialState(s.cfg), logger)

	sess := &session{
		conn:    conn,
		store:   store,
		layer:   tracking.NewPatchLayer(),
		feed:    tracking.NewFeed(false),
		refresh: s.cfg.Map.RefreshInterval(),
		logger:  logger,
		stateCh: make(chan struct{}, 1),
	}

	logger.Info("websocket connected")
	err = sess.run(s.ctx)
	logger.Info("websocket closed", "reason", err)
}

// run drives the session until ctx ends or the connection drops.
func (s *session) run(parent context.Context) error {
	g, ctx := errgroup.WithContext(parent)

	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.store.Subscribe(func(controller.State) { s.onState() })
	s.onState()

	if q := s.store.State().Query; q != "" {
		s.submit(q, s.store.State().Radius)
	}

	g.Go(func() error { return s.readLoop(ctx) })
	g.Go(func() error { return s.writeLoop(ctx) })
	g.Go(func() error { return s.refreshLoop(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		s.conn.Close()
		return nil
	})

	err := g.Wait()
	s.submits.Wait()
	s.closeMap()
	return err
}

// onState keeps the map in step with the latest state and wakes the
// writer. Notifications may arrive out of order, so it always reads the
// store rather than the notified value.
func (s *session) onState() {
	s.syncMap()
	select {
	case s.stateCh <- struct{}{}:
	default:
	}
}

func (s *session) syncMap() {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.store.State()

	if st.View != controller.MapView {
		if s.reconciler != nil {
			s.overlay.Stop()
			s.reconciler.Clear()
			s.reconciler, s.overlay = nil, nil
			s.logger.Debug("map closed")
		}
		return
	}

	if s.reconciler == nil {
		s.reconciler = tracking.NewReconciler(s.layer, s.logger)
		s.overlay = tracking.NewUserOverlay(s.layer, s.feed, s.feed, rate.Every(time.Second/4), s.logger)
		s.lastApplied = time.Time{}
		s.logger.Debug("map opened")
	}

	// Only a new fetch changes what is on the map
	if st.UpdatedAt.IsZero() || st.UpdatedAt.Equal(s.lastApplied) {
		return
	}
	s.lastApplied = st.UpdatedAt
	stats := s.reconciler.Reconcile(st.Flights)
	s.logger.Debug("markers reconciled", "created", stats.Created, "updated", stats.Updated, "removed", stats.Removed)
}

func (s *session) closeMap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconciler == nil {
		return
	}
	s.overlay.Stop()
	s.reconciler.Clear()
	s.reconciler, s.overlay = nil, nil
}

// setLocating starts or stops the user overlay. s.mu is held throughout
// so syncMap cannot replace the overlay while it is starting; neither
// Start nor Stop takes s.mu.
func (s *session) setLocating(enabled, compass bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overlay == nil {
		s.logger.Debug("locate ignored outside the map view")
		return
	}
	if !enabled {
		s.overlay.Stop()
		return
	}
	s.feed.SetCompass(compass)
	if err := s.overlay.Start(s.ctx); err != nil {
		s.logger.Warn("user location failed to start", "error", err)
	}
}

// submit runs a search without blocking the reader. Overlapping searches
// are allowed; the store keeps whichever resolves last.
func (s *session) submit(query string, radius float64) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.submits.Add(1)
	go func() {
		defer s.submits.Done()
		s.store.Submit(ctx, query, radius)
	}()
}

func (s *session) handle(msg clientMessage) {
	switch msg.Type {
	case "search":
		radius := msg.Radius
		if radius == 0 {
			radius = s.store.State().Radius
		}
		s.submit(msg.Query, radius)

	case "refresh":
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		s.submits.Add(1)
		go func() {
			defer s.submits.Done()
			s.store.Refresh(ctx)
		}()

	case "view":
		v := controller.ListView
		if msg.Map {
			v = controller.MapView
		}
		s.store.Dispatch(controller.SetView{View: v})

	case "locate":
		s.setLocating(msg.Enabled, msg.Orientation)

	case "position":
		s.feed.PushPosition(tracking.Fix{
			Position:  geo.Latlong{Lat: msg.Lat, Long: msg.Lon},
			AccuracyM: msg.Accuracy,
		})

	case "orientation":
		s.feed.PushOrientation(tracking.Orientation{Alpha: msg.Alpha, Compass: msg.Compass})

	default:
		s.logger.Debug("unknown client message", "type", msg.Type)
	}
}

// readLoop decodes client messages. It always returns an error so the
// group tears the session down when the page goes away.
func (s *session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return errClientGone
		}
		s.handle(msg)
	}
}

// writeLoop is the connection's only writer.
func (s *session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.stateCh:
			if err := s.write(newStateMessage(s.store.State())); err != nil {
				return err
			}
			// State and patches describe the same fetch; send them together
			if err := s.flushPatches(); err != nil {
				return err
			}

		case <-s.layer.Changed():
			if err := s.flushPatches(); err != nil {
				return err
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (s *session) flushPatches() error {
	ops := s.layer.Flush()
	if len(ops) == 0 {
		return nil
	}
	return s.write(patchMessage{Type: "patch", Ops: ops})
}

func (s *session) write(v any) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// refreshLoop re-fetches the current result on the configured interval.
func (s *session) refreshLoop(ctx context.Context) error {
	if s.refresh <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.store.Refresh(ctx)
		}
	}
}
