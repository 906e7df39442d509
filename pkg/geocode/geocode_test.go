package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestClientSearch verifies the request shape and response decoding.
func TestClientSearch(t *testing.T) {
	t.Run("Successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/search" {
				t.Errorf("Expected path /search, got %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("q") != "JFK airport" {
				t.Errorf("Expected q=JFK airport, got %q", q.Get("q"))
			}
			if q.Get("limit") != "1" || q.Get("format") != "json" {
				t.Errorf("Expected limit=1&format=json, got %s", r.URL.RawQuery)
			}
			if r.Header.Get("User-Agent") != "skytrack-test/1.0" {
				t.Errorf("Expected User-Agent header, got %q", r.Header.Get("User-Agent"))
			}
			w.Write([]byte(`[{"lat": "40.6413", "lon": "-73.7781", "display_name": "John F. Kennedy International Airport, Queens, New York, United States"}]`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "skytrack-test/1.0", 0)
		places, err := client.Search(context.Background(), "JFK airport")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(places) != 1 {
			t.Fatalf("Expected 1 place, got %d", len(places))
		}
		ll, err := places[0].Latlong()
		if err != nil {
			t.Fatalf("Expected parseable coordinates: %v", err)
		}
		if ll.Lat != 40.6413 || ll.Long != -73.7781 {
			t.Errorf("Unexpected coordinates %v", ll)
		}
	})

	t.Run("Handles server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		client := NewClient(server.URL, "ua", 0)
		if _, err := client.Search(context.Background(), "x"); err == nil {
			t.Fatal("Expected error for 403")
		}
	})
}

func TestShortName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"John F. Kennedy International Airport, Queens, New York", "John F. Kennedy International Airport"},
		{"London, Greater London, England, United Kingdom", "London"},
		{"Nowhere", "Nowhere"},
		{"", ""},
		{"  Paris , France", "Paris"},
	}
	for _, tt := range tests {
		if got := ShortName(tt.in); got != tt.want {
			t.Errorf("ShortName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeSearcher answers from a fixed table and records lookups.
type fakeSearcher struct {
	results map[string][]Place
	err     error
	calls   []string
}

func (f *fakeSearcher) Search(ctx context.Context, q string) ([]Place, error) {
	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q], nil
}

func TestResolve(t *testing.T) {
	t.Run("Airport lookup wins", func(t *testing.T) {
		s := &fakeSearcher{results: map[string][]Place{
			"JFK airport": {{Lat: "40.64", Lon: "-73.78", DisplayName: "John F. Kennedy International Airport, Queens"}},
			"JFK":         {{Lat: "1", Lon: "1", DisplayName: "Somewhere else"}},
		}}
		r := NewResolver(s, 0, 0, nil)

		loc, err := r.Resolve(context.Background(), "JFK")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if loc.Latitude != 40.64 || loc.Longitude != -73.78 {
			t.Errorf("Expected JFK coordinates, got %v,%v", loc.Latitude, loc.Longitude)
		}
		if loc.Name != "John F. Kennedy International Airport" {
			t.Errorf("Unexpected name %q", loc.Name)
		}
		if loc.Query != "JFK" {
			t.Errorf("Expected query JFK, got %q", loc.Query)
		}
		if len(s.calls) != 1 {
			t.Errorf("Expected a single lookup, got %v", s.calls)
		}
	})

	t.Run("Falls back to bare query", func(t *testing.T) {
		s := &fakeSearcher{results: map[string][]Place{
			"Paris": {{Lat: "48.85", Lon: "2.35", DisplayName: "Paris, Ile-de-France, France"}},
		}}
		r := NewResolver(s, 0, 0, nil)

		loc, err := r.Resolve(context.Background(), "Paris")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if loc.Name != "Paris" {
			t.Errorf("Expected Paris, got %q", loc.Name)
		}
		if len(s.calls) != 2 || s.calls[0] != "Paris airport" || s.calls[1] != "Paris" {
			t.Errorf("Expected airport then bare lookup, got %v", s.calls)
		}
	})

	t.Run("Both empty is not found", func(t *testing.T) {
		s := &fakeSearcher{}
		r := NewResolver(s, 0, 0, nil)

		_, err := r.Resolve(context.Background(), "Atlantis")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Transport failure is not found", func(t *testing.T) {
		s := &fakeSearcher{err: errors.New("connection refused")}
		r := NewResolver(s, 0, 0, nil)

		_, err := r.Resolve(context.Background(), "JFK")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Unparseable coordinates fall through", func(t *testing.T) {
		s := &fakeSearcher{results: map[string][]Place{
			"LHR airport": {{Lat: "north", Lon: "west", DisplayName: "Broken"}},
			"LHR":         {{Lat: "51.47", Lon: "-0.45", DisplayName: "Heathrow, London"}},
		}}
		r := NewResolver(s, 0, 0, nil)

		loc, err := r.Resolve(context.Background(), "LHR")
		if err != nil {
			t.Fatalf("Expected fallback result, got %v", err)
		}
		if loc.Name != "Heathrow" {
			t.Errorf("Expected Heathrow, got %q", loc.Name)
		}
	})

	t.Run("Blank query", func(t *testing.T) {
		s := &fakeSearcher{}
		r := NewResolver(s, 0, 0, nil)

		if _, err := r.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected ErrNotFound, got %v", err)
		}
		if len(s.calls) != 0 {
			t.Errorf("Expected no lookups, got %v", s.calls)
		}
	})
}

func TestResolveCache(t *testing.T) {
	s := &fakeSearcher{results: map[string][]Place{
		"JFK airport": {{Lat: "40.64", Lon: "-73.78", DisplayName: "JFK, Queens"}},
	}}
	r := NewResolver(s, 8, time.Hour, nil)

	if _, err := r.Resolve(context.Background(), "JFK"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	loc, err := r.Resolve(context.Background(), " jfk ")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if len(s.calls) != 1 {
		t.Errorf("Expected cached second lookup, got calls %v", s.calls)
	}
	if loc.Query != "jfk" {
		t.Errorf("Expected query to reflect latest input, got %q", loc.Query)
	}

	// Misses are not cached
	if _, err := r.Resolve(context.Background(), "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if len(s.calls) != 5 {
		t.Errorf("Expected misses to hit the provider each time, got %d calls", len(s.calls))
	}
}
