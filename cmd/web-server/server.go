package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/db"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
)

//go:embed static
var staticFiles embed.FS

// Server holds the HTTP router and its dependencies
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	ctrl      *controller.Controller
	locator   controller.Locator
	database  *db.DB
	sightings *db.SightingRepository
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	// ctx ends every websocket session on shutdown; hijacked
	// connections are not closed by http.Server.Shutdown
	ctx context.Context
}

// ServerConfig holds what the server needs from main
type ServerConfig struct {
	Config    *config.Config
	Ctrl      *controller.Controller
	Locator   controller.Locator
	Database  *db.DB
	Sightings *db.SightingRepository
	Logger    *slog.Logger
}

// NewServer creates a server and its routes. Sessions end when ctx does.
func NewServer(ctx context.Context, sc ServerConfig) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       sc.Config,
		ctrl:      sc.Ctrl,
		locator:   sc.Locator,
		database:  sc.Database,
		sightings: sc.Sightings,
		logger:    sc.Logger,
		ctx:       ctx,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket is not compressed by middleware
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))

			r.Get("/config", s.handleGetConfig)
			r.Get("/health", s.handleHealth)
			r.Get("/locate", s.handleLocate)
			r.Get("/flights", s.handleFlights)
			r.Get("/flights/{id}/track", s.handleTrack)
		})
	})

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	r.With(middleware.Compress(5)).Handle("/*", http.FileServer(http.FS(static)))
}

// requestLogger logs one line per request through slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := s.cfg.Server.AllowedOrigins
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return true
	}
	return slices.Contains(allowed, origin)
}

// handleGetConfig returns what the browser page needs to draw the map
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tile_url":                 s.cfg.Map.TileURL,
		"attribution":              s.cfg.Map.Attribution,
		"radii":                    opensky.Radii,
		"default_radius":           s.cfg.Map.DefaultRadius,
		"default_query":            s.cfg.Map.DefaultQuery,
		"refresh_interval_seconds": s.cfg.Map.RefreshIntervalSeconds,
		"start_in_map_view":        s.cfg.Map.StartInMapView,
		"history":                  s.sightings != nil,
	})
}

// handleHealth reports server and database status, with a summary of
// the stored history when the database is reachable
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]any{
		"database": "disabled",
		"time":     time.Now().UTC(),
	}
	if s.database != nil {
		resp["database"] = "ok"
		if !db.HealthCheck(r.Context(), s.database) {
			resp["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else if stats, err := s.database.GetStats(r.Context()); err != nil {
			s.logger.Warn("history stats failed", "error", err)
		} else {
			resp["history"] = stats
		}
	}
	resp["status"] = http.StatusText(status)
	respondJSON(w, status, resp)
}

// handleLocate resolves ?q= to a location
func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "Missing q parameter")
		return
	}

	loc, err := s.locator.Resolve(r.Context(), q)
	if err != nil {
		respondError(w, statusFor(err), controller.MessageFor(err))
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

// flightsResponse is the list-view payload
type flightsResponse struct {
	Location  geocode.Location `json:"location"`
	Radius    float64          `json:"radius"`
	Count     int              `json:"count"`
	Flights   []opensky.Flight `json:"flights"`
	FetchedAt time.Time        `json:"fetched_at"`
	Message   string           `json:"message,omitempty"`
}

// handleFlights runs a full search for ?q=&radius=
func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "Missing q parameter")
		return
	}

	radius := s.cfg.Map.DefaultRadius
	if v := r.URL.Query().Get("radius"); v != "" {
		var err error
		if radius, err = strconv.ParseFloat(v, 64); err != nil {
			respondError(w, http.StatusBadRequest, controller.MessageFor(opensky.ErrInvalidRadius))
			return
		}
	}

	res, err := s.ctrl.Search(r.Context(), q, radius)
	switch {
	case err == nil:
	case errors.Is(err, opensky.ErrNoAircraft) && !res.FetchedAt.IsZero():
		// A valid, empty area: report it alongside the resolved center
	default:
		if rle, ok := opensky.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())))
		}
		respondError(w, statusFor(err), controller.MessageFor(err))
		return
	}

	flights := res.Flights
	if flights == nil {
		flights = []opensky.Flight{}
	}
	resp := flightsResponse{
		Location:  res.Location,
		Radius:    res.Radius,
		Count:     len(flights),
		Flights:   flights,
		FetchedAt: res.FetchedAt,
	}
	if len(flights) == 0 {
		resp.Message = controller.MessageFor(opensky.ErrNoAircraft)
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleTrack returns the stored path of one flight, oldest first
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if s.sightings == nil {
		respondError(w, http.StatusNotFound, "Sighting history is disabled")
		return
	}

	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		minutes = n
	}

	id := chi.URLParam(r, "id")
	track, err := s.sightings.Track(r.Context(), id, time.Now().Add(-time.Duration(minutes)*time.Minute))
	if err != nil {
		s.logger.Error("track query failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load track")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"sightings": track,
	})
}

// statusFor maps a search error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, opensky.ErrInvalidRadius):
		return http.StatusBadRequest
	case errors.Is(err, geocode.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if _, ok := opensky.IsRateLimitError(err); ok {
		return http.StatusTooManyRequests
	}
	if opensky.IsUnavailable(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
