package coordinator

import (
	"context"
	"errors"
	"fmt"
	"makerworld-stats/internal/account"
	"makerworld-stats/internal/assert"
	"makerworld-stats/internal/chrono"
	"makerworld-stats/internal/makerworld"
	"makerworld-stats/internal/parser"
	"makerworld-stats/internal/snapshot"
	"makerworld-stats/internal/telemetry"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	report_coordinator_cycle      = "coordinator.cycle"
	report_coordinator_partial    = "coordinator.partial"
	report_coordinator_panic      = "coordinator.panic"
	report_coordinator_skip       = "coordinator.skip"
	report_coordinator_schedule   = "coordinator.schedule"
	report_coordinator_subscriber = "coordinator.subscriber"
)

// Fetcher retrieves the raw pages a cycle parses.
type Fetcher interface {
	FetchProfilePage(ctx context.Context, creds makerworld.Credentials) (makerworld.Page, error)
	FetchUploadPage(ctx context.Context, creds makerworld.Credentials) (makerworld.Page, error)
	FetchModelPage(ctx context.Context, creds makerworld.Credentials, ref snapshot.ModelRef) (makerworld.Page, error)
}

type Options struct {
	// Interval between scheduled cycles, defaults to 1 hour.
	Interval time.Duration
	// CycleTimeout bounds a whole cycle, defaults to 90 seconds.
	CycleTimeout time.Duration
	// ResetScheduleOnManual restarts the interval after a manual cycle.
	ResetScheduleOnManual bool
	// AuthEscalationThreshold is the number of consecutive auth failures
	// after which re-authentication is required, defaults to 2.
	AuthEscalationThreshold int
	// RateLimitBackoff is the first backoff when the server gives no
	// Retry-After hint, it doubles per consecutive rate limit. Defaults to 5 minutes.
	RateLimitBackoff time.Duration
	// MaxRateLimitBackoff caps RateLimitBackoff, defaults to 6 hours.
	MaxRateLimitBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = time.Hour
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = 90 * time.Second
	}
	if o.AuthEscalationThreshold <= 0 {
		o.AuthEscalationThreshold = 2
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = 5 * time.Minute
	}
	if o.MaxRateLimitBackoff <= 0 {
		o.MaxRateLimitBackoff = 6 * time.Hour
	}
	return o
}

// Update is delivered to subscribers after every finished cycle. Error is
// nil after a fully successful cycle.
type Update struct {
	Reason    Reason
	Published bool
	Snapshot  snapshot.Snapshot
	Error     *ErrorState
}

type Subscriber func(Update)

type cycleResult struct {
	snapshot snapshot.Snapshot
}

type Coordinator struct {
	fetcher Fetcher
	source  account.Source
	time    chrono.TimeAPI
	cron    chrono.CronAPI
	tel     telemetry.API
	opts    Options

	group    singleflight.Group
	lifetime context.Context
	close    context.CancelFunc

	tracer   trace.Tracer
	cycles   metric.Int64Counter
	duration metric.Float64Histogram

	mu              sync.Mutex
	state           State
	current         snapshot.Snapshot
	lastErr         *ErrorState
	backoffUntil    time.Time
	rateLimitStreak int
	stopSchedule    func()
	subscribers     map[int]Subscriber
	nextSubscriber  int
}

func New(
	fetcher Fetcher,
	source account.Source,
	timeAPI chrono.TimeAPI,
	cron chrono.CronAPI,
	tel telemetry.API,
	opts Options,
) *Coordinator {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(source, "account source")
	assert.NotNil(timeAPI, "time api")
	assert.NotNil(cron, "cron api")
	assert.NotNil(tel, "telemetry api")

	lifetime, cancel := context.WithCancel(context.Background())

	meter := otel.Meter("makerworld-stats/coordinator")
	cycles, _ := meter.Int64Counter(
		"makerworld.cycles",
		metric.WithDescription("update cycles by outcome"),
	)
	duration, _ := meter.Float64Histogram(
		"makerworld.cycle.duration",
		metric.WithDescription("update cycle duration"),
		metric.WithUnit("s"),
	)

	return &Coordinator{
		fetcher:     fetcher,
		source:      source,
		time:        timeAPI,
		cron:        cron,
		tel:         telemetry.NewScopedAPI("coordinator", tel),
		opts:        opts.withDefaults(),
		lifetime:    lifetime,
		close:       cancel,
		tracer:      otel.Tracer("makerworld-stats/coordinator"),
		cycles:      cycles,
		duration:    duration,
		state:       StateIdle,
		subscribers: map[int]Subscriber{},
	}
}

// Start runs the initial cycle and then schedules a cycle every interval.
// The result of the initial cycle is recorded like any other cycle, only a
// failure to schedule is returned.
func (c *Coordinator) Start(ctx context.Context) error {
	_, err := c.RequestUpdate(ctx, ReasonScheduled)
	if err != nil {
		c.tel.ReportDebug(report_coordinator_schedule, "initial cycle failed", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduleLocked()
}

func (c *Coordinator) scheduleLocked() error {
	if c.lifetime.Err() != nil {
		return ErrClosed
	}
	if c.stopSchedule != nil {
		c.stopSchedule()
		c.stopSchedule = nil
	}
	stop, err := c.cron.Every(c.opts.Interval, c.tick)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_schedule, err)
		return fmt.Errorf("schedule updates: %w", err)
	}
	c.stopSchedule = stop
	return nil
}

func (c *Coordinator) tick() {
	_, err := c.RequestUpdate(c.lifetime, ReasonScheduled)
	if errors.Is(err, ErrInBackoff) {
		c.tel.ReportDebug(report_coordinator_skip, "scheduled cycle skipped", c.BackoffUntil())
	}
}

// Close abandons an in-flight cycle and stops the schedule, nothing is
// published or recorded after Close returns.
func (c *Coordinator) Close() {
	c.close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopSchedule != nil {
		c.stopSchedule()
		c.stopSchedule = nil
	}
}

// Subscribe registers fn to be called after every cycle, fn is called
// synchronously from the cycle's goroutine after the new state is visible.
func (c *Coordinator) Subscribe(fn Subscriber) (unsubscribe func()) {
	assert.NotNil(fn, "subscriber")

	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubscriber
	c.nextSubscriber++
	c.subscribers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the last published snapshot, false if nothing
// was published yet.
func (c *Coordinator) Snapshot() (snapshot.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone(), !c.current.IsZero()
}

func (c *Coordinator) LastError() (ErrorState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return ErrorState{}, false
	}
	return *c.lastErr, true
}

func (c *Coordinator) BackoffUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoffUntil
}

func (c *Coordinator) inBackoff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time.Now().Before(c.backoffUntil)
}

// RequestUpdate runs a cycle, or joins the one already in flight, and returns
// the snapshot that is current once it finishes. On failure the previous
// snapshot is returned together with the cycle's error. A partial parse
// returns the newly published snapshot together with a *parser.ParseError.
//
// ctx only bounds how long the caller waits, the cycle itself keeps running
// for the other callers.
func (c *Coordinator) RequestUpdate(ctx context.Context, reason Reason) (snapshot.Snapshot, error) {
	if c.lifetime.Err() != nil {
		return snapshot.Snapshot{}, ErrClosed
	}
	if reason == ReasonScheduled && c.inBackoff() {
		current, _ := c.Snapshot()
		return current, ErrInBackoff
	}

	ch := c.group.DoChan("cycle", func() (any, error) {
		return c.runCycle(reason)
	})
	select {
	case res := <-ch:
		result := res.Val.(cycleResult)
		return result.snapshot.Clone(), res.Err
	case <-ctx.Done():
		current, _ := c.Snapshot()
		return current, ctx.Err()
	}
}

func (c *Coordinator) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Coordinator) runCycle(reason Reason) (result cycleResult, err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(c.lifetime, "coordinator.cycle", trace.WithAttributes(
		attribute.String("reason", string(reason)),
	))
	defer span.End()

	c.mu.Lock()
	previousState := c.state
	c.state = StateFetching
	c.mu.Unlock()

	outcome := "published"
	defer func() {
		if r := recover(); r != nil {
			c.tel.ReportBroken(report_coordinator_panic, r)
			result, err = c.fail(reason, &parser.ParseError{
				Page: "cycle",
				Err:  fmt.Errorf("recovered from panic: %v", r),
			})
			outcome = "failed"
		}

		attrs := metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("reason", string(reason)),
		)
		c.cycles.Add(context.Background(), 1, attrs)
		c.duration.Record(context.Background(), time.Since(start).Seconds(), attrs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	cycleCtx, cancel := context.WithTimeout(ctx, c.opts.CycleTimeout)
	defer cancel()

	snap, warning, err := c.collect(cycleCtx)

	if c.lifetime.Err() != nil {
		// closed while running, the result is thrown away
		c.mu.Lock()
		c.state = previousState
		current := c.current.Clone()
		c.mu.Unlock()
		outcome = "discarded"
		return cycleResult{snapshot: current}, ErrClosed
	}

	if err != nil {
		if errors.Is(cycleCtx.Err(), context.DeadlineExceeded) {
			err = &makerworld.NetworkError{URL: "cycle", Err: ErrCycleDeadline}
		}
		outcome = "failed"
		return c.fail(reason, err)
	}

	if warning != nil {
		outcome = "partial"
	}
	return c.publish(reason, snap, warning)
}

func (c *Coordinator) publish(reason Reason, snap snapshot.Snapshot, warning *parser.ParseError) (cycleResult, error) {
	now := c.time.Now()

	c.mu.Lock()
	previous := c.current
	snap.FetchedAt = now
	if !previous.FetchedAt.IsZero() && !snap.FetchedAt.After(previous.FetchedAt) {
		snap.FetchedAt = previous.FetchedAt.Add(time.Nanosecond)
	}
	snap.Sequence = previous.Sequence + 1

	previousErr := c.lastErr
	c.current = snap
	c.state = StatePublished
	c.rateLimitStreak = 0
	c.backoffUntil = time.Time{}
	c.lastErr = nil
	if warning != nil {
		consecutive := 1
		if previousErr != nil && previousErr.Kind == KindParse && previousErr.Severity == SeverityWarning {
			consecutive = previousErr.Consecutive + 1
		}
		c.lastErr = &ErrorState{
			Kind:        KindParse,
			Message:     warning.Error(),
			Timestamp:   now,
			Consecutive: consecutive,
			Severity:    SeverityWarning,
		}
	}
	c.afterCycleLocked(reason)
	update := Update{
		Reason:    reason,
		Published: true,
		Snapshot:  snap.Clone(),
		Error:     c.lastErrCopyLocked(),
	}
	subscribers := c.subscribersLocked()
	c.mu.Unlock()

	c.notify(subscribers, update)

	if warning != nil {
		c.tel.ReportWarning(report_coordinator_partial, warning)
		return cycleResult{snapshot: snap}, warning
	}
	c.tel.ReportDebug(report_coordinator_cycle, "published", snap.Sequence)
	return cycleResult{snapshot: snap}, nil
}

func (c *Coordinator) fail(reason Reason, err error) (cycleResult, error) {
	now := c.time.Now()
	kind := Classify(err)

	c.mu.Lock()
	consecutive := 1
	if c.lastErr != nil && c.lastErr.Kind == kind && c.lastErr.Severity != SeverityWarning {
		consecutive = c.lastErr.Consecutive + 1
	}

	state := &ErrorState{
		Kind:        kind,
		Message:     err.Error(),
		Timestamp:   now,
		Consecutive: consecutive,
		Severity:    SeverityTransient,
	}
	switch kind {
	case KindAuth:
		if consecutive >= c.opts.AuthEscalationThreshold {
			state.Severity = SeverityPersistent
			state.ReauthRequired = true
		}
	case KindRateLimit, KindParse:
		if consecutive > 1 {
			state.Severity = SeverityPersistent
		}
	}

	if kind == KindRateLimit {
		c.rateLimitStreak++
		backoff := c.rateLimitBackoff(err)
		state.RetryAfter = backoff
		c.backoffUntil = now.Add(backoff)
	} else {
		c.rateLimitStreak = 0
	}

	c.lastErr = state
	c.state = StateError
	c.afterCycleLocked(reason)
	current := c.current.Clone()
	update := Update{
		Reason:   reason,
		Snapshot: current.Clone(),
		Error:    c.lastErrCopyLocked(),
	}
	subscribers := c.subscribersLocked()
	c.mu.Unlock()

	c.notify(subscribers, update)
	c.tel.ReportWarning(report_coordinator_cycle, err, telemetry.KV{Key: "kind", Value: kind}, telemetry.KV{Key: "consecutive", Value: consecutive})

	return cycleResult{snapshot: current}, err
}

// rateLimitBackoff prefers the server's hint, otherwise it doubles the
// configured backoff per consecutive rate limit up to the cap.
func (c *Coordinator) rateLimitBackoff(err error) time.Duration {
	var rateErr *makerworld.RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		return rateErr.RetryAfter
	}
	backoff := c.opts.RateLimitBackoff
	for i := 1; i < c.rateLimitStreak && backoff < c.opts.MaxRateLimitBackoff; i++ {
		backoff *= 2
	}
	if backoff > c.opts.MaxRateLimitBackoff {
		backoff = c.opts.MaxRateLimitBackoff
	}
	return backoff
}

func (c *Coordinator) afterCycleLocked(reason Reason) {
	if reason != ReasonManual || !c.opts.ResetScheduleOnManual || c.stopSchedule == nil {
		return
	}
	err := c.scheduleLocked()
	if err != nil {
		c.tel.ReportWarning(report_coordinator_schedule, err)
	}
}

func (c *Coordinator) lastErrCopyLocked() *ErrorState {
	if c.lastErr == nil {
		return nil
	}
	copied := *c.lastErr
	return &copied
}

func (c *Coordinator) subscribersLocked() []Subscriber {
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Subscriber, len(ids))
	for i, id := range ids {
		out[i] = c.subscribers[id]
	}
	return out
}

// notify runs after the cycle's outcome is committed, a panicking subscriber
// is reported and skipped so it cannot change that outcome.
func (c *Coordinator) notify(subscribers []Subscriber, update Update) {
	for _, fn := range subscribers {
		c.notifyOne(fn, update)
	}
}

func (c *Coordinator) notifyOne(fn Subscriber, update Update) {
	defer func() {
		if r := recover(); r != nil {
			c.tel.ReportBroken(report_coordinator_subscriber, r)
		}
	}()
	fn(update)
}
