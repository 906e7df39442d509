package tracking

import (
	"context"
	"sync"
)

// StaticSource reports one fixed position, and optionally a fixed
// heading, for devices without a live location stream.
type StaticSource struct {
	Fix     Fix
	Heading *float64
}

func (s StaticSource) Positions(ctx context.Context) (<-chan Fix, error) {
	ch := make(chan Fix, 1)
	ch <- s.Fix
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s StaticSource) Headings(ctx context.Context) (<-chan float64, error) {
	if s.Heading == nil {
		return nil, ErrUnavailable
	}
	ch := make(chan float64, 1)
	ch <- *s.Heading
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Unavailable is a source for a device with no location or compass.
type Unavailable struct{}

func (Unavailable) Positions(context.Context) (<-chan Fix, error)    { return nil, ErrUnavailable }
func (Unavailable) Headings(context.Context) (<-chan float64, error) { return nil, ErrUnavailable }

// Feed is a push-driven source: a remote device posts readings and the
// overlay subscribed to the feed picks them up. When a reader falls
// behind, older readings are dropped in favour of newer ones.
type Feed struct {
	mu         sync.Mutex
	positions  chan Fix
	headings   chan float64
	hasCompass bool
}

// NewFeed creates a feed. hasCompass false makes Headings unavailable.
func NewFeed(hasCompass bool) *Feed {
	return &Feed{
		positions:  make(chan Fix, 1),
		headings:   make(chan float64, 1),
		hasCompass: hasCompass,
	}
}

func (f *Feed) Positions(context.Context) (<-chan Fix, error) {
	return f.positions, nil
}

func (f *Feed) Headings(context.Context) (<-chan float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasCompass {
		return nil, ErrUnavailable
	}
	return f.headings, nil
}

// SetCompass records whether the device can report orientation.
func (f *Feed) SetCompass(ok bool) {
	f.mu.Lock()
	f.hasCompass = ok
	f.mu.Unlock()
}

// PushPosition offers a new fix, replacing an unread one.
func (f *Feed) PushPosition(fix Fix) {
	pushLatest(f.positions, fix)
}

// PushOrientation converts and offers an orientation reading. Readings
// with neither compass nor alpha are ignored.
func (f *Feed) PushOrientation(o Orientation) {
	if h, ok := HeadingFromOrientation(o); ok {
		pushLatest(f.headings, h)
	}
}

func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
