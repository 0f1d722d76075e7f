package tracking

import (
	"context"
	"delivery-coordination-service/internal/domain"
	"delivery-coordination-service/internal/ports"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClock runs due timers synchronously inside Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	when    time.Time
	f       func()
	done    bool
	stopped bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: testStart} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := !t.done && !t.stopped
	t.stopped = true
	return active
}

// Advance moves time forward by d, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.stopped || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		c.mu.Unlock()

		next.f()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done && !t.stopped {
			n++
		}
	}
	return n
}

// fakeFeed records every Subscribe call; tests drive callbacks by hand.
type fakeFeed struct {
	mu   sync.Mutex
	subs []*fakeSub
	err  error
}

type fakeSub struct {
	topics   []ports.Topic
	onEvent  func(ports.ChangeEvent)
	onStatus func(ports.SubscriptionStatus, error)

	mu     sync.Mutex
	closed bool
}

func (f *fakeFeed) Subscribe(
	_ context.Context,
	topics []ports.Topic,
	onEvent func(ports.ChangeEvent),
	onStatus func(ports.SubscriptionStatus, error),
) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		f.subs = append(f.subs, &fakeSub{topics: topics, closed: true})
		return nil, f.err
	}
	sub := &fakeSub{topics: topics, onEvent: onEvent, onStatus: onStatus}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// attempts counts Subscribe calls whose first topic is on table.
func (f *fakeFeed) attempts(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subs {
		if s.topics[0].Table == table {
			n++
		}
	}
	return n
}

// last returns the newest subscription whose first topic is on table.
func (f *fakeFeed) last(t *testing.T, table string) *fakeSub {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].topics[0].Table == table {
			return f.subs[i]
		}
	}
	t.Fatalf("no %s subscription", table)
	return nil
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) status(st ports.SubscriptionStatus, err error) { s.onStatus(st, err) }

func (s *fakeSub) emit(t *testing.T, table string, record any) {
	t.Helper()
	b, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	s.onEvent(ports.ChangeEvent{Table: table, Record: b})
}

type fakeFetcher struct {
	mu    sync.Mutex
	snap  *domain.TrackingSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, orderID string) (*domain.TrackingSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.snap
	snap.Order.OrderID = orderID
	return &snap, nil
}

func (f *fakeFetcher) set(snap *domain.TrackingSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func preparingSnapshot() *domain.TrackingSnapshot {
	return &domain.TrackingSnapshot{
		Order: domain.OrderInfo{Status: domain.OrderStatusPreparing, UpdatedAt: testStart.Add(-time.Hour)},
	}
}

func ptr[T any](v T) *T { return &v }
