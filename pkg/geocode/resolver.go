package geocode

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Searcher is the provider lookup used by Resolver.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// Resolver turns an airport code or city name into a Location. It first
// asks for "<query> airport" and falls back to the bare query.
type Resolver struct {
	searcher Searcher
	cache    *expirable.LRU[string, Location]
	logger   *slog.Logger
}

// NewResolver creates a resolver. cacheSize of zero disables caching.
func NewResolver(s Searcher, cacheSize int, ttl time.Duration, logger *slog.Logger) *Resolver {
	r := &Resolver{searcher: s, logger: logger}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if cacheSize > 0 {
		r.cache = expirable.NewLRU[string, Location](cacheSize, nil, ttl)
	}
	return r
}

// Resolve looks up query. Transport and decode failures are logged and
// reported as ErrNotFound, same as an empty answer from both lookups.
func (r *Resolver) Resolve(ctx context.Context, query string) (Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Location{}, ErrNotFound
	}

	key := strings.ToLower(query)
	if r.cache != nil {
		if loc, ok := r.cache.Get(key); ok {
			loc.Query = query
			return loc, nil
		}
	}

	for _, q := range []string{query + " airport", query} {
		loc, ok := r.lookup(ctx, q)
		if !ok {
			continue
		}
		loc.Query = query
		if r.cache != nil {
			r.cache.Add(key, loc)
		}
		r.logger.Info("resolved location", "query", query, "lookup", q, "name", loc.Name,
			"lat", loc.Latitude, "lon", loc.Longitude)
		return loc, nil
	}

	return Location{}, ErrNotFound
}

func (r *Resolver) lookup(ctx context.Context, q string) (Location, bool) {
	places, err := r.searcher.Search(ctx, q)
	if err != nil {
		r.logger.Warn("geocoding request failed", "query", q, "error", err)
		return Location{}, false
	}
	if len(places) == 0 {
		return Location{}, false
	}

	ll, err := places[0].Latlong()
	if err != nil {
		r.logger.Warn("geocoding result unusable", "query", q, "error", err)
		return Location{}, false
	}

	return Location{
		Latitude:  ll.Lat,
		Longitude: ll.Long,
		Name:      ShortName(places[0].DisplayName),
	}, true
}

// ShortName returns the first comma-delimited segment of a display name.
func ShortName(displayName string) string {
	name, _, _ := strings.Cut(displayName, ",")
	return strings.TrimSpace(name)
}
