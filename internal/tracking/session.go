package tracking

import (
	"context"
	"delivery-coordination-service/internal/platform/obs"
	"delivery-coordination-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultConfirmTimeout = 10 * time.Second
)

// Deps are the collaborators a session talks to.
type Deps struct {
	Feed      ports.ChangeFeed
	Snapshots ports.SnapshotFetcher
}

// Callbacks are optional. OnChange receives the latest state after accepted
// mutations; bursts may be coalesced into one call. It is never called
// concurrently with itself and stops once the session is closed.
// It may call back into the session, including Close.
type Callbacks struct {
	OnChange func(State)
}

type options struct {
	pollInterval   time.Duration
	reconnectDelay time.Duration
	confirmTimeout time.Duration
	liveDisabled   bool
	clock          Clock
}

type Option func(*options)

func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectDelay = d }
}

// WithConfirmTimeout bounds how long an accepted subscription may wait for the
// transport to confirm it before it is treated as failed.
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *options) { o.confirmTimeout = d }
}

// WithLiveDisabled skips the push transport and polls from the start.
func WithLiveDisabled() Option {
	return func(o *options) { o.liveDisabled = true }
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// Session tracks one order for one viewer.
//
// Phases move Connecting -> Live -> Degraded -> Live ... and any phase moves
// to Closed on Close. Polling runs exactly while the session is Degraded
// (which includes the live-disabled mode). A subscription the transport does
// not confirm within the confirm timeout counts as failed. Each subscription
// attempt carries a generation number so callbacks from a replaced
// subscription are dropped, and every timer callback re-checks the closed
// flag under the lock.
type Session struct {
	deps Deps
	cb   Callbacks
	opts options

	ctx    context.Context
	cancel context.CancelFunc
	notify chan struct{}

	mu    sync.Mutex
	state State

	gen     uint64
	primary ports.Subscription

	locGen   uint64
	location ports.Subscription

	pollSeq      uint64
	pollTimer    Timer
	reconnSeq    uint64
	reconnTimer  Timer
	locReconnSeq uint64
	locReconnTmr Timer
	confirmSeq   uint64
	confirmTimer Timer
}

// Open starts tracking orderID. routeID may be empty when no route is known;
// a snapshot or stop event that reveals the route starts the location
// subscription.
//
// Open performs the initial snapshot fetch before returning. A failed fetch
// is not fatal: the state keeps its defaults and records ConnectionError.
// The session lives until Close or until ctx is done.
func Open(
	ctx context.Context,
	orderID string,
	routeID string,
	deps Deps,
	cb Callbacks,
	opts ...Option,
) *Session {
	o := options{
		pollInterval:   DefaultPollInterval,
		reconnectDelay: DefaultReconnectDelay,
		confirmTimeout: DefaultConfirmTimeout,
		clock:          realClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if deps.Feed == nil {
		o.liveDisabled = true
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		deps:   deps,
		cb:     cb,
		opts:   o,
		ctx:    sctx,
		cancel: cancel,
		notify: make(chan struct{}, 1),
		state: State{
			Phase:   PhaseConnecting,
			OrderID: orderID,
			RouteID: routeID,
		},
	}
	obs.IncTrackingPhase(string(PhaseConnecting))

	// The subscriptions below pick up whatever route the snapshot reveals.
	if _, err := s.fetchAndApply(sctx, true); err != nil {
		s.mu.Lock()
		s.state.ConnectionError = fmt.Sprintf("initial load failed: %v", err)
		s.mu.Unlock()
		log.Printf("req_id=%s op=tracking.Open order_id=%s err=%v", obs.RequestID(ctx), orderID, err)
	}

	if s.cb.OnChange != nil {
		go s.notifyLoop()
	}

	if o.liveDisabled {
		s.mu.Lock()
		s.setPhaseLocked(PhaseDegraded)
		s.startPollingLocked()
		s.mu.Unlock()
	} else {
		s.subscribePrimary()
		s.subscribeLocation()
	}

	go func() {
		<-sctx.Done()
		s.Close()
	}()

	s.changed()
	return s
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh fetches a snapshot now and overwrites every field with it.
func (s *Session) Refresh(ctx context.Context) error {
	routeChanged, err := s.fetchAndApply(ctx, false)
	if err != nil {
		return err
	}
	if routeChanged {
		s.subscribeLocation()
	}
	s.changed()
	return nil
}

func (s *Session) fetchAndApply(ctx context.Context, initial bool) (bool, error) {
	if s.deps.Snapshots == nil {
		return false, errors.New("refresh: no snapshot source")
	}

	s.mu.Lock()
	if s.state.Phase == PhaseClosed {
		s.mu.Unlock()
		return false, errors.New("refresh: session closed")
	}
	orderID := s.state.OrderID
	s.mu.Unlock()

	snap, err := s.deps.Snapshots.FetchSnapshot(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("refresh order %s: %w", orderID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == PhaseClosed {
		return false, nil
	}
	return s.applySnapshotLocked(snap, initial), nil
}

// SetRoute switches the location subscription to routeID.
// An empty routeID drops it.
func (s *Session) SetRoute(routeID string) {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed || !s.setRouteLocked(routeID) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.subscribeLocation()
	s.changed()
}

// Close releases both subscriptions and every timer, and cancels in-flight
// fetches. It is idempotent. No state changes after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.setPhaseLocked(PhaseClosed)
	s.state.IsConnected = false

	s.stopPollingLocked()
	s.stopReconnectLocked()
	s.stopConfirmLocked()
	s.stopLocationReconnectLocked()
	s.gen++
	s.locGen++

	subs := []ports.Subscription{s.primary, s.location}
	s.primary, s.location = nil, nil
	s.mu.Unlock()

	s.cancel()
	closeAll(subs...)
}

func (s *Session) setPhaseLocked(p Phase) {
	if s.state.Phase == p {
		return
	}
	s.state.Phase = p
	obs.IncTrackingPhase(string(p))
}

// Primary subscription: orders and route_stops filtered by order ID.

func (s *Session) subscribePrimary() {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	old := s.primary
	s.primary = nil
	s.stopConfirmLocked()
	orderID := s.state.OrderID
	s.mu.Unlock()

	closeAll(old)

	topics := []ports.Topic{
		{Table: ports.TableOrders, Key: orderID},
		{Table: ports.TableRouteStops, Key: orderID},
	}
	sub, err := s.deps.Feed.Subscribe(
		s.ctx,
		topics,
		func(e ports.ChangeEvent) { s.handleEvent(gen, e) },
		func(st ports.SubscriptionStatus, err error) { s.handleStatus(gen, st, err) },
	)

	s.mu.Lock()
	if s.state.Phase == PhaseClosed || gen != s.gen {
		s.mu.Unlock()
		closeAll(sub)
		return
	}
	if err != nil {
		s.handleTransportErrorLocked(err)
		s.mu.Unlock()
		s.changed()
		return
	}
	s.primary = sub
	// A transport may confirm from inside Subscribe; Live here means it did.
	if s.state.Phase != PhaseLive {
		s.scheduleConfirmDeadlineLocked(gen)
	}
	s.mu.Unlock()
}

// scheduleConfirmDeadlineLocked fails subscription gen if the transport has
// not confirmed it in time, so a silent transport still degrades to polling.
func (s *Session) scheduleConfirmDeadlineLocked(gen uint64) {
	if s.opts.confirmTimeout <= 0 {
		return
	}
	s.confirmSeq++
	seq := s.confirmSeq
	s.confirmTimer = s.opts.clock.AfterFunc(s.opts.confirmTimeout, func() {
		s.mu.Lock()
		if s.state.Phase == PhaseClosed || seq != s.confirmSeq || gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.confirmTimer = nil
		failed := s.handleTransportErrorLocked(fmt.Errorf("live channel not confirmed within %s", s.opts.confirmTimeout))
		s.mu.Unlock()

		closeAll(failed)
		s.changed()
	})
}

func (s *Session) stopConfirmLocked() {
	s.confirmSeq++
	if s.confirmTimer != nil {
		s.confirmTimer.Stop()
		s.confirmTimer = nil
	}
}

func closeAll(subs ...ports.Subscription) {
	for _, sub := range subs {
		if sub != nil {
			sub.Close()
		}
	}
}

func (s *Session) handleStatus(gen uint64, st ports.SubscriptionStatus, err error) {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed || gen != s.gen {
		s.mu.Unlock()
		return
	}

	var failed ports.Subscription
	switch st {
	case ports.SubscriptionSubscribed:
		s.handleSubscribedLocked()
	case ports.SubscriptionClosed:
		failed = s.handleTransportErrorLocked(errors.New("live channel closed"))
	default:
		if err == nil {
			err = errors.New("live channel error")
		}
		failed = s.handleTransportErrorLocked(err)
	}
	s.mu.Unlock()

	closeAll(failed)
	s.changed()
}

func (s *Session) handleSubscribedLocked() {
	s.setPhaseLocked(PhaseLive)
	s.state.IsConnected = true
	s.state.ConnectionError = ""
	s.stopPollingLocked()
	s.stopReconnectLocked()
	s.stopConfirmLocked()
}

// handleTransportErrorLocked moves to Degraded, starts polling and schedules
// one reconnect. The failed subscription's generation is retired so its
// remaining callbacks are ignored. The caller closes the returned
// subscription after unlocking.
func (s *Session) handleTransportErrorLocked(err error) ports.Subscription {
	log.Printf("op=tracking.transport order_id=%s phase=%s err=%v", s.state.OrderID, s.state.Phase, err)

	s.gen++
	failed := s.primary
	s.primary = nil
	s.stopConfirmLocked()

	s.setPhaseLocked(PhaseDegraded)
	s.state.IsConnected = false
	s.state.ConnectionError = fmt.Sprintf("live updates unavailable: %v", err)

	s.startPollingLocked()
	s.scheduleReconnectLocked()
	return failed
}

func (s *Session) scheduleReconnectLocked() {
	if s.reconnTimer != nil {
		return
	}
	s.reconnSeq++
	seq := s.reconnSeq
	s.reconnTimer = s.opts.clock.AfterFunc(s.opts.reconnectDelay, func() {
		s.mu.Lock()
		if s.state.Phase == PhaseClosed || seq != s.reconnSeq {
			s.mu.Unlock()
			return
		}
		s.reconnTimer = nil
		s.mu.Unlock()

		s.subscribePrimary()
	})
}

func (s *Session) stopReconnectLocked() {
	s.reconnSeq++
	if s.reconnTimer != nil {
		s.reconnTimer.Stop()
		s.reconnTimer = nil
	}
}

// Polling.

func (s *Session) startPollingLocked() {
	if s.pollTimer != nil || s.deps.Snapshots == nil {
		return
	}
	s.pollSeq++
	s.schedulePollLocked(s.pollSeq)
}

func (s *Session) schedulePollLocked(seq uint64) {
	s.pollTimer = s.opts.clock.AfterFunc(s.opts.pollInterval, func() { s.poll(seq) })
}

func (s *Session) stopPollingLocked() {
	s.pollSeq++
	if s.pollTimer != nil {
		s.pollTimer.Stop()
		s.pollTimer = nil
	}
}

func (s *Session) poll(seq uint64) {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed || seq != s.pollSeq {
		s.mu.Unlock()
		return
	}
	orderID := s.state.OrderID
	s.mu.Unlock()

	snap, err := s.deps.Snapshots.FetchSnapshot(s.ctx, orderID)

	s.mu.Lock()
	if s.state.Phase == PhaseClosed || seq != s.pollSeq {
		s.mu.Unlock()
		return
	}

	resubscribe := false
	if err != nil {
		log.Printf("op=tracking.poll order_id=%s err=%v", orderID, err)
	} else {
		resubscribe = s.applySnapshotLocked(snap, false)
	}
	s.schedulePollLocked(seq)
	s.mu.Unlock()

	if resubscribe {
		s.subscribeLocation()
	}
	if err == nil {
		s.changed()
	}
}

// Location subscription: driver_locations filtered by route ID.

// subscribeLocation replaces the location subscription with one for the
// current route, or just drops it when no route is known.
func (s *Session) subscribeLocation() {
	s.mu.Lock()
	if s.state.Phase == PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.locGen++
	gen := s.locGen
	old := s.location
	s.location = nil
	if s.opts.liveDisabled || s.state.RouteID == "" {
		s.mu.Unlock()
		closeAll(old)
		return
	}
	routeID := s.state.RouteID
	s.mu.Unlock()

	closeAll(old)

	sub, err := s.deps.Feed.Subscribe(
		s.ctx,
		[]ports.Topic{{Table: ports.TableDriverLocations, Key: routeID}},
		func(e ports.ChangeEvent) { s.handleLocationEvent(gen, e) },
		func(st ports.SubscriptionStatus, err error) { s.handleLocationStatus(gen, st, err) },
	)

	s.mu.Lock()
	if s.state.Phase == PhaseClosed || gen != s.locGen {
		s.mu.Unlock()
		closeAll(sub)
		return
	}
	if err != nil {
		s.handleLocationErrorLocked(err)
		s.mu.Unlock()
		return
	}
	s.location = sub
	s.mu.Unlock()
}

func (s *Session) handleLocationStatus(gen uint64, st ports.SubscriptionStatus, err error) {
	if st == ports.SubscriptionSubscribed {
		return
	}

	s.mu.Lock()
	if s.state.Phase == PhaseClosed || gen != s.locGen {
		s.mu.Unlock()
		return
	}
	if err == nil {
		err = errors.New("location channel " + string(st))
	}
	failed := s.handleLocationErrorLocked(err)
	s.mu.Unlock()

	closeAll(failed)
}

// handleLocationErrorLocked releases the location subscription and
// re-establishes it after the reconnect delay, independent of the primary.
// The caller closes the returned subscription after unlocking.
func (s *Session) handleLocationErrorLocked(err error) ports.Subscription {
	log.Printf("op=tracking.location order_id=%s route_id=%s err=%v", s.state.OrderID, s.state.RouteID, err)

	s.locGen++
	failed := s.location
	s.location = nil

	if s.locReconnTmr != nil {
		return failed
	}
	s.locReconnSeq++
	seq := s.locReconnSeq
	s.locReconnTmr = s.opts.clock.AfterFunc(s.opts.reconnectDelay, func() {
		s.mu.Lock()
		if s.state.Phase == PhaseClosed || seq != s.locReconnSeq {
			s.mu.Unlock()
			return
		}
		s.locReconnTmr = nil
		s.mu.Unlock()

		s.subscribeLocation()
	})
	return failed
}

func (s *Session) stopLocationReconnectLocked() {
	s.locReconnSeq++
	if s.locReconnTmr != nil {
		s.locReconnTmr.Stop()
		s.locReconnTmr = nil
	}
}

// setRouteLocked records a new route ID and retires the old location
// subscription; subscribeLocation closes it when it opens the next one.
// It reports whether the route changed.
func (s *Session) setRouteLocked(routeID string) bool {
	if routeID == s.state.RouteID {
		return false
	}
	s.state.RouteID = routeID

	s.locGen++
	s.stopLocationReconnectLocked()
	return true
}

// Notification.

// changed wakes the notifier. Pending wakeups coalesce.
func (s *Session) changed() {
	if s.cb.OnChange == nil {
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) notifyLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.notify:
		}

		st := s.State()
		if st.Phase == PhaseClosed {
			return
		}
		s.cb.OnChange(st)
	}
}
