package tracking

import (
	"delivery-coordination-service/internal/domain"
	"fmt"
	"sync"
	"time"
)

// LabelRefreshInterval is how often a mounted "last updated" label is recomputed.
const LabelRefreshInterval = 10 * time.Second

// ShouldShowLiveTracking reports whether a live map should be rendered.
// A driver position is only meaningful while the order is out for delivery.
func ShouldShowLiveTracking(status domain.OrderStatus, loc *domain.DriverLocation) bool {
	return status == domain.OrderStatusOutForDelivery && loc != nil
}

// LastUpdateLabel renders how long ago last was, relative to now.
func LastUpdateLabel(last *time.Time, now time.Time) string {
	if last == nil {
		return ""
	}

	age := now.Sub(*last)
	switch {
	case age < 10*time.Second:
		return "Just now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age/time.Second))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age/time.Minute))
	default:
		return last.In(now.Location()).Format("3:04 PM")
	}
}

// LabelTicker pushes a fresh LastUpdateLabel every LabelRefreshInterval so
// the label advances without new data arriving.
type LabelTicker struct {
	clock  Clock
	source func() *time.Time
	push   func(string)

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

// StartLabelTicker pushes the current label immediately and then on every tick.
func StartLabelTicker(clock Clock, source func() *time.Time, push func(string)) *LabelTicker {
	if clock == nil {
		clock = realClock{}
	}
	t := &LabelTicker{clock: clock, source: source, push: push}
	t.tick()
	return t
}

func (t *LabelTicker) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.push(LastUpdateLabel(t.source(), t.clock.Now()))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.clock.AfterFunc(LabelRefreshInterval, t.tick)
}

// Stop cancels the next tick. A push already in progress still completes.
func (t *LabelTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
