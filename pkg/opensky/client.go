package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/skypies/geo"
	"golang.org/x/time/rate"
)

// Client queries the OpenSky Network /states/all endpoint.
// Anonymous access is limited to 400 credits per day and 10s resolution.
type Client struct {
	// baseURL is the API base URL (default: https://opensky-network.org/api)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// limiter spaces out requests; nil means unlimited
	limiter *rate.Limiter

	// username/password for basic auth (optional)
	username string
	password string

	logger *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Username string
	Password string

	// Timeout bounds one request; zero keeps the transport default
	Timeout time.Duration

	// MinInterval is the minimum spacing between requests; zero disables pacing
	MinInterval time.Duration

	Logger *slog.Logger
}

// NewClient creates a new OpenSky API client.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		username:   opts.Username,
		password:   opts.Password,
		logger:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = "https://opensky-network.org/api"
	}
	if opts.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// StatesResponse is the /states/all response body.
type StatesResponse struct {
	// Time is the Unix timestamp the state vectors are associated with
	Time int64 `json:"time"`

	// States holds one fixed-position array per aircraft; nil when the
	// provider has no traffic in the box
	States [][]any `json:"states"`
}

// GetStates returns the raw state vectors inside box.
func (c *Client) GetStates(ctx context.Context, box geo.LatlongBox) (*StatesResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	params := url.Values{}
	params.Set("lamin", fmt.Sprintf("%.4f", box.SW.Lat))
	params.Set("lomin", fmt.Sprintf("%.4f", box.SW.Long))
	params.Set("lamax", fmt.Sprintf("%.4f", box.NE.Lat))
	params.Set("lomax", fmt.Sprintf("%.4f", box.NE.Long))
	reqURL := fmt.Sprintf("%s/states/all?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flight states: %w", err)
	}
	defer resp.Body.Close()

	// Check for rate limit (HTTP 429)
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    "Rate limit exceeded",
			Headers:    extractRateLimitHeaders(resp.Header),
		}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var states StatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	c.logger.Debug("fetched flight states",
		"count", len(states.States),
		"remaining", resp.Header.Get("X-Rate-Limit-Remaining"))

	return &states, nil
}

// Flights fetches and normalizes the airborne aircraft within radius
// degrees of center. ErrNoAircraft is returned when the provider reports
// no state vectors at all; a box with only grounded aircraft returns an
// empty slice.
func (c *Client) Flights(ctx context.Context, center geo.Latlong, radius float64) ([]Flight, error) {
	if err := ValidateRadius(radius); err != nil {
		return nil, err
	}

	states, err := c.GetStates(ctx, BoundingBox(center, radius))
	if err != nil {
		return nil, err
	}
	if len(states.States) == 0 {
		return nil, ErrNoAircraft
	}

	return Airborne(Normalize(states.States)), nil
}
