package opensky

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// StatusError is a non-success, non-429 response from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// RateLimitError represents an HTTP 429 rate limit error with retry information.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Headers    RateLimitHeaders
}

// RateLimitHeaders contains rate limit information from response headers.
type RateLimitHeaders struct {
	Limit     int       // X-Rate-Limit-Limit: Maximum requests allowed
	Remaining int       // X-Rate-Limit-Remaining: Credits remaining
	Reset     time.Time // X-Rate-Limit-Reset: When the rate limit resets
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError checks if an error is (or wraps) a rate limit error.
func IsRateLimitError(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// IsUnavailable reports whether err is a non-success provider response,
// rate limiting included.
func IsUnavailable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return true
	}
	_, ok := IsRateLimitError(err)
	return ok
}

// parseRetryAfter extracts how long to wait before the next request.
// OpenSky sends X-Rate-Limit-Retry-After-Seconds; the standard Retry-After
// header is honoured as well, as delay-seconds or HTTP-date.
func parseRetryAfter(headers http.Header) time.Duration {
	if v := headers.Get("X-Rate-Limit-Retry-After-Seconds"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(retryTime); d > 0 {
			return d
		}
	}

	return 0
}

// extractRateLimitHeaders reads the X-Rate-Limit-* family, accepting
// both hyphenated spellings. Missing counters are -1.
func extractRateLimitHeaders(headers http.Header) RateLimitHeaders {
	rlh := RateLimitHeaders{
		Limit:     -1,
		Remaining: -1,
	}

	if v, ok := headerInt(headers, "X-Rate-Limit-Limit", "X-RateLimit-Limit"); ok {
		rlh.Limit = int(v)
	}
	if v, ok := headerInt(headers, "X-Rate-Limit-Remaining", "X-RateLimit-Remaining"); ok {
		rlh.Remaining = int(v)
	}
	if v, ok := headerInt(headers, "X-Rate-Limit-Reset", "X-RateLimit-Reset"); ok {
		rlh.Reset = time.Unix(v, 0)
	}

	return rlh
}

func headerInt(headers http.Header, names ...string) (int64, bool) {
	for _, name := range names {
		if raw := headers.Get(name); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			return v, err == nil
		}
	}
	return 0, false
}
