package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/db"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
	"github.com/unklstewy/skytrack/pkg/tracking"
)

type fakeLocator struct{}

func (fakeLocator) Resolve(_ context.Context, q string) (geocode.Location, error) {
	switch strings.ToUpper(q) {
	case "JFK":
		return geocode.Location{Latitude: 40.64, Longitude: -73.78, Name: "John F. Kennedy International Airport", Query: q}, nil
	case "EMPTY":
		return geocode.Location{Latitude: 0, Longitude: 0, Name: "Null Island", Query: q}, nil
	case "BUSY":
		return geocode.Location{Latitude: 51.47, Longitude: -0.45, Name: "Heathrow", Query: q}, nil
	}
	return geocode.Location{}, geocode.ErrNotFound
}

type fakeFlights struct {
	mu      sync.Mutex
	flights []opensky.Flight
}

func (f *fakeFlights) Flights(_ context.Context, center geo.Latlong, _ float64) ([]opensky.Flight, error) {
	switch {
	case center.Lat == 0:
		return nil, opensky.ErrNoAircraft
	case center.Lat > 50:
		return nil, &opensky.RateLimitError{StatusCode: 429, RetryAfter: 30 * time.Second}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]opensky.Flight(nil), f.flights...), nil
}

func testFlights() []opensky.Flight {
	heading := 90.0
	return []opensky.Flight{
		{ID: "a1b2c3", Callsign: "DAL1", Country: "United States", Latitude: 40.7, Longitude: -73.9,
			HasPosition: true, HeadingDeg: &heading, Altitude: "3048 m", Velocity: "360 km/h", Heading: "90°"},
		{ID: "d4e5f6", Callsign: "BAW2", Country: "United Kingdom", Latitude: 40.5, Longitude: -73.5,
			HasPosition: true, Altitude: "N/A", Velocity: "N/A", Heading: "N/A"},
	}
}

func newTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Map.RefreshIntervalSeconds = 0

	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeFlights{flights: testFlights()}
	srv := NewServer(ctx, ServerConfig{
		Config:  cfg,
		Ctrl:    controller.New(fakeLocator{}, src, nil),
		Locator: fakeLocator{},
	})
	return srv, cancel
}

func get(t *testing.T, srv http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode %s response: %v", path, err)
		}
	}
	return rec, body
}

func TestHandleFlights(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCount  int
		wantError  string
	}{
		{"success", "/api/v1/flights?q=JFK&radius=1.0", http.StatusOK, 2, ""},
		{"default radius", "/api/v1/flights?q=JFK", http.StatusOK, 2, ""},
		{"missing query", "/api/v1/flights", http.StatusBadRequest, 0, "Missing q parameter"},
		{"unknown place", "/api/v1/flights?q=Nowhere", http.StatusNotFound, 0, "Location not found"},
		{"invalid radius", "/api/v1/flights?q=JFK&radius=2", http.StatusBadRequest, 0, "Radius must be"},
		{"unparseable radius", "/api/v1/flights?q=JFK&radius=wide", http.StatusBadRequest, 0, "Radius must be"},
		{"rate limited", "/api/v1/flights?q=BUSY", http.StatusTooManyRequests, 0, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := get(t, srv, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantError != "" {
				if msg, _ := body["error"].(string); !strings.Contains(msg, tt.wantError) {
					t.Errorf("Expected error containing %q, got %q", tt.wantError, msg)
				}
				return
			}
			if got := int(body["count"].(float64)); got != tt.wantCount {
				t.Errorf("Expected %d flights, got %d", tt.wantCount, got)
			}
		})
	}
}

func TestHandleFlightsRetryAfter(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec, _ := get(t, srv, "/api/v1/flights?q=BUSY")
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Expected Retry-After 30, got %q", got)
	}
}

func TestHandleFlightsEmptyArea(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec, body := get(t, srv, "/api/v1/flights?q=EMPTY")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for an empty area, got %d", rec.Code)
	}
	if flights, ok := body["flights"].([]any); !ok || len(flights) != 0 {
		t.Errorf("Expected an empty flights array, got %v", body["flights"])
	}
	if msg, _ := body["message"].(string); msg != "No aircraft detected in this area." {
		t.Errorf("Unexpected message %q", msg)
	}
	loc, _ := body["location"].(map[string]any)
	if loc["name"] != "Null Island" {
		t.Errorf("Expected the resolved location, got %v", body["location"])
	}
}

func TestHandleLocate(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec, body := get(t, srv, "/api/v1/locate?q=JFK")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if body["name"] != "John F. Kennedy International Airport" || body["latitude"] != 40.64 {
		t.Errorf("Unexpected location %v", body)
	}

	rec, _ = get(t, srv, "/api/v1/locate?q=Nowhere")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestHandleConfigAndHealth(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec, body := get(t, srv, "/api/v1/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if radii, _ := body["radii"].([]any); len(radii) != len(opensky.Radii) {
		t.Errorf("Expected radii %v, got %v", opensky.Radii, body["radii"])
	}
	if body["history"] != false {
		t.Errorf("Expected history disabled without a database")
	}

	rec, body = get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusOK || body["database"] != "disabled" {
		t.Errorf("Unexpected health response %d %v", rec.Code, body)
	}

	rec, _ = get(t, srv, "/api/v1/flights/a1b2c3/track")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for track without history, got %d", rec.Code)
	}
}

func TestStaticPage(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec, _ := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "/api/v1/ws") {
		t.Errorf("Expected the map page to connect to the websocket")
	}

	// List cards show the position, or N/A without one
	for _, want := range []string{"<dt>Position</dt>", "f.has_position", "f.latitude", "f.longitude", `"N/A"`} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected %s in the list card markup", want)
		}
	}

	// Missing device location never reaches the message line
	for _, notice := range []string{"Device location is not available", "Location error"} {
		if strings.Contains(page, notice) {
			t.Errorf("Expected no %q notice on the page", notice)
		}
	}

	// The compass is only used once the browser grants it
	if !strings.Contains(page, "DeviceOrientationEvent.requestPermission") {
		t.Errorf("Expected the page to request orientation permission")
	}
}

func TestFlightsCarryPosition(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	_, body := get(t, srv, "/api/v1/flights?q=JFK")
	flights, _ := body["flights"].([]any)
	if len(flights) == 0 {
		t.Fatal("Expected flights")
	}
	f := flights[0].(map[string]any)
	if f["has_position"] != true || f["latitude"] != 40.7 || f["longitude"] != -73.9 {
		t.Errorf("Expected position fields for the list card, got %v", f)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{opensky.ErrInvalidRadius, http.StatusBadRequest},
		{geocode.ErrNotFound, http.StatusNotFound},
		{&opensky.RateLimitError{StatusCode: 429}, http.StatusTooManyRequests},
		{&opensky.StatusError{StatusCode: 503}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOriginAllowed(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()
	srv.cfg.Server.AllowedOrigins = []string{"https://skytrack.example"}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://skytrack.example", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := srv.originAllowed(req); got != tt.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

// wsMessage decodes both server message kinds.
type wsMessage struct {
	Type    string           `json:"type"`
	Phase   string           `json:"phase"`
	Loading bool             `json:"loading"`
	Count   int              `json:"count"`
	Message string           `json:"message"`
	View    string           `json:"view"`
	Flights []opensky.Flight `json:"flights"`
	Ops     []tracking.Op    `json:"ops"`
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(wsMessage) bool) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func hasOp(msg wsMessage, kind, id string) bool {
	for _, op := range msg.Ops {
		if op.Kind == kind && op.ID == id {
			return true
		}
	}
	return false
}

func TestWebSocketSession(t *testing.T) {
	srv, cancel := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	first := readUntil(t, conn, "initial state", func(m wsMessage) bool { return m.Type == "state" })
	if first.Phase != "idle" || first.View != "list" {
		t.Errorf("Unexpected initial state %+v", first)
	}

	t.Run("search", func(t *testing.T) {
		conn.WriteJSON(map[string]any{"type": "search", "query": "JFK", "radius": 0.5})
		msg := readUntil(t, conn, "search result", func(m wsMessage) bool {
			return m.Type == "state" && m.Phase == "success" && !m.Loading
		})
		if msg.Count != 2 || len(msg.Flights) != 2 {
			t.Errorf("Expected 2 flights, got %+v", msg)
		}
	})

	t.Run("failed search keeps flights", func(t *testing.T) {
		conn.WriteJSON(map[string]any{"type": "search", "query": "Nowhere"})
		msg := readUntil(t, conn, "failure", func(m wsMessage) bool {
			return m.Type == "state" && m.Phase == "error" && !m.Loading
		})
		if !strings.HasPrefix(msg.Message, "Location not found") || msg.Count != 2 {
			t.Errorf("Unexpected failure state %+v", msg)
		}
	})

	t.Run("map view streams markers", func(t *testing.T) {
		conn.WriteJSON(map[string]any{"type": "view", "map": true})
		readUntil(t, conn, "marker adds", func(m wsMessage) bool {
			return m.Type == "patch" && hasOp(m, tracking.OpAdd, "a1b2c3")
		})
	})

	t.Run("user location", func(t *testing.T) {
		conn.WriteJSON(map[string]any{"type": "locate", "enabled": true})
		conn.WriteJSON(map[string]any{"type": "position", "lat": 40.6, "lon": -73.8, "accuracy": 25})
		readUntil(t, conn, "user marker", func(m wsMessage) bool {
			return m.Type == "patch" && hasOp(m, tracking.OpUser, "")
		})
	})

	t.Run("list view clears map", func(t *testing.T) {
		conn.WriteJSON(map[string]any{"type": "view", "map": false})
		readUntil(t, conn, "marker removal", func(m wsMessage) bool {
			return m.Type == "patch" && hasOp(m, tracking.OpRemove, "a1b2c3")
		})
	})
}

func TestWebSocketShutdown(t *testing.T) {
	srv, cancel := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	readUntil(t, conn, "initial state", func(m wsMessage) bool { return m.Type == "state" })
	cancel()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("Expected the server to close the connection on shutdown")
			}
			return
		}
	}
}

func serverWithDB(t *testing.T, dsn string) *Server {
	t.Helper()
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	srv, cancel := newTestServer(t)
	t.Cleanup(cancel)
	srv.database = &db.DB{DB: sqlDB}
	return srv
}

func TestHealthDatabaseUnavailable(t *testing.T) {
	srv := serverWithDB(t, "host=127.0.0.1 port=1 user=skytrack dbname=skytrack sslmode=disable connect_timeout=1")

	rec, body := get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable || body["database"] != "unavailable" {
		t.Errorf("Unexpected health response %d %v", rec.Code, body)
	}
	if _, ok := body["history"]; ok {
		t.Error("Expected no history block when the database is down")
	}
}

func TestHealthHistory(t *testing.T) {
	dsn := os.Getenv("SKYTRACK_TEST_DSN")
	if dsn == "" {
		t.Skip("SKYTRACK_TEST_DSN not set")
	}
	srv := serverWithDB(t, dsn)
	if err := srv.database.InitSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	rec, body := get(t, srv, "/api/v1/health")
	if rec.Code != http.StatusOK || body["database"] != "ok" {
		t.Fatalf("Unexpected health response %d %v", rec.Code, body)
	}
	history, ok := body["history"].(map[string]any)
	if !ok {
		t.Fatalf("Expected a history block, got %v", body)
	}
	if _, ok := history["sightings"]; !ok {
		t.Errorf("Expected sighting count in history, got %v", history)
	}
}
