package tracking

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/skypies/geo"
	"golang.org/x/time/rate"
)

// ErrUnavailable is returned by a source whose device capability is
// missing. The overlay treats it as "feature off", never as a failure.
var ErrUnavailable = errors.New("device capability unavailable")

// Fix is one device position report.
type Fix struct {
	Position  geo.Latlong
	AccuracyM float64
}

// PositionSource streams device positions until ctx is cancelled.
type PositionSource interface {
	Positions(ctx context.Context) (<-chan Fix, error)
}

// HeadingSource streams compass headings in degrees until ctx is cancelled.
type HeadingSource interface {
	Headings(ctx context.Context) (<-chan float64, error)
}

// Orientation is a raw device orientation reading. Compass is the
// vendor-specific absolute heading; Alpha is the standard event angle,
// counter-clockwise.
type Orientation struct {
	Alpha   *float64 `json:"alpha,omitempty"`
	Compass *float64 `json:"compass,omitempty"`
}

// HeadingFromOrientation converts an orientation reading to a heading
// clockwise from north. The compass value wins when present, otherwise the
// heading is 360 minus alpha.
func HeadingFromOrientation(o Orientation) (float64, bool) {
	switch {
	case o.Compass != nil && !math.IsNaN(*o.Compass):
		return NormalizeHeading(*o.Compass), true
	case o.Alpha != nil && !math.IsNaN(*o.Alpha):
		return NormalizeHeading(360 - *o.Alpha), true
	default:
		return 0, false
	}
}

// UserOverlay keeps the device marker in step with a position stream and
// a heading stream. Both subscriptions are rate-capped and end on Stop.
type UserOverlay struct {
	layer     UserLayer
	positions PositionSource
	headings  HeadingSource
	limit     rate.Limit
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	current UserPosition
	hasFix  bool
}

// NewUserOverlay creates a stopped overlay. maxRate caps updates per
// stream; rate.Inf disables the cap. headings may be nil.
func NewUserOverlay(layer UserLayer, positions PositionSource, headings HeadingSource, maxRate rate.Limit, logger *slog.Logger) *UserOverlay {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRate <= 0 {
		maxRate = rate.Inf
	}
	return &UserOverlay{
		layer:     layer,
		positions: positions,
		headings:  headings,
		limit:     maxRate,
		logger:    logger,
	}
}

// Start subscribes to the device streams. A missing position capability
// leaves the overlay inactive and returns nil; a missing heading
// capability only disables rotation. Starting twice is a no-op.
func (o *UserOverlay) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return nil
	}
	if o.positions == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)

	fixes, err := o.positions.Positions(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, ErrUnavailable) {
			o.logger.Debug("device location unavailable")
			return nil
		}
		return err
	}

	wg := &sync.WaitGroup{}
	o.cancel, o.wg = cancel, wg
	wg.Add(1)
	go func() {
		defer wg.Done()
		follow(ctx, fixes, rate.NewLimiter(o.limit, 1), o.applyFix)
	}()

	if o.headings != nil {
		headings, err := o.headings.Headings(ctx)
		switch {
		case err == nil:
			wg.Add(1)
			go func() {
				defer wg.Done()
				follow(ctx, headings, rate.NewLimiter(o.limit, 1), o.applyHeading)
			}()
		case errors.Is(err, ErrUnavailable):
			o.logger.Debug("device compass unavailable")
		default:
			o.logger.Warn("compass subscription failed", "error", err)
		}
	}

	o.logger.Info("user location tracking started")
	return nil
}

// Stop cancels both subscriptions, waits for them to finish and removes
// the marker and accuracy circle. Stopping an inactive overlay is a no-op.
func (o *UserOverlay) Stop() {
	o.mu.Lock()
	cancel, wg := o.cancel, o.wg
	o.cancel, o.wg = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	wg.Wait()

	o.mu.Lock()
	o.current = UserPosition{}
	o.hasFix = false
	o.mu.Unlock()

	o.layer.ClearUserLocation()
	o.logger.Info("user location tracking stopped")
}

// Active reports whether the overlay is subscribed to a position stream.
func (o *UserOverlay) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// Current returns the last drawn position.
func (o *UserOverlay) Current() (UserPosition, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.hasFix
}

func (o *UserOverlay) applyFix(f Fix) {
	o.mu.Lock()
	o.current.Position = f.Position
	o.current.AccuracyM = f.AccuracyM
	o.hasFix = true
	p := o.current
	o.mu.Unlock()

	o.layer.SetUserLocation(p)
}

// applyHeading rotates the marker; before the first fix it only remembers
// the heading.
func (o *UserOverlay) applyHeading(h float64) {
	o.mu.Lock()
	o.current.Heading = NormalizeHeading(h)
	o.current.HasHeading = true
	p, ok := o.current, o.hasFix
	o.mu.Unlock()

	if ok {
		o.layer.SetUserLocation(p)
	}
}

// follow delivers values from ch to apply at most at lim's rate. Values
// arriving while waiting are collapsed to the newest one.
func follow[T any](ctx context.Context, ch <-chan T, lim *rate.Limiter, apply func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-ch:
			if !ok {
				return
			}
			if err := lim.Wait(ctx); err != nil {
				return
			}
		drain:
			for {
				select {
				case next, ok := <-ch:
					if !ok {
						break drain
					}
					v = next
				default:
					break drain
				}
			}
			if ctx.Err() != nil {
				return
			}
			apply(v)
		}
	}
}
