// Package coordinator deduplicates and caches classification requests by fingerprint.
//
// Every fingerprint is in one of four states: Absent, Pending, Completed or Failed. A
// single mutex guards the whole table, so transitions are atomic with respect to concurrent
// submissions. At most one computation runs per fingerprint; later callers attach to it.
// Completed results live in an LRU with a lazily checked TTL. Failed entries are retried on
// the next submission once the failure backoff has passed.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/cropdoc/internal/metrics"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// State is the lifecycle state of one fingerprint.
type State int

const (
	StateAbsent State = iota
	StatePending
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "absent"
	}
}

// ComputeFunc produces the result for a request. ctx is cancelled when the request times
// out or every caller has gone away.
type ComputeFunc func(ctx context.Context, req model.Request) (*model.Result, error)

// Store is an optional second-level result cache shared between processes.
// Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*model.Result, error)
	Set(ctx context.Context, fingerprint string, result *model.Result, ttl time.Duration) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStore adds a second-level result cache consulted before computing. Results are
// written with ttl, or with the in-process TTL when ttl is not positive.
func WithStore(s Store, ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.store = s
		c.storeTTL = ttl
	}
}

// WithClock replaces time.Now for TTL and backoff checks.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// entry is a settled fingerprint: either a result or an error.
type entry struct {
	result *model.Result
	err    error
	at     time.Time
}

// flight is a pending computation shared by every attached caller.
type flight struct {
	done    chan struct{}
	result  *model.Result
	err     error
	waiters int
	cancel  context.CancelFunc
	timer   *time.Timer

	// gen is the reload generation the flight was admitted in.
	gen uint64
	// exited is closed when the computation goroutine returns, which may be well after
	// done when the model ignores cancellation.
	exited chan struct{}
}

// Coordinator owns the fingerprint table.
type Coordinator struct {
	cfg      Config
	store    Store
	storeTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	settled *lru.Cache[string, *entry]
	flights map[string]*flight
	// lingering holds, per fingerprint, the exit signal of a computation that was
	// abandoned (cancelled or timed out) but has not returned yet.
	lingering map[string]chan struct{}

	// running counts computations between gate entry and return, including ones whose
	// callers already timed out.
	running    int
	gen        uint64
	reloading  bool
	reloadDone chan struct{}
	drained    chan struct{}
}

// New creates a Coordinator.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settled, err := lru.New[string, *entry](cfg.Capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	c := &Coordinator{
		cfg:     cfg,
		now:     time.Now,
		settled:   settled,
		flights:   make(map[string]*flight),
		lingering: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.storeTTL <= 0 {
		c.storeTTL = cfg.TTL
	}
	return c, nil
}

// Submit returns the result for req, computing it with compute only when no fresh result
// is cached and no computation for the same fingerprint is in flight. If ctx ends first the
// caller detaches; the computation continues while other callers remain attached.
func (c *Coordinator) Submit(ctx context.Context, req model.Request, compute ComputeFunc) (*model.Result, error) {
	fp := req.Fingerprint

	c.mu.Lock()
	if f, ok := c.flights[fp]; ok {
		f.waiters++
		c.mu.Unlock()
		metrics.RecordCacheOutcome("attached")
		return c.wait(ctx, fp, f)
	}

	if e, ok := c.settled.Get(fp); ok {
		age := c.now().Sub(e.at)
		switch {
		case e.err == nil && age < c.cfg.TTL:
			c.mu.Unlock()
			metrics.RecordCacheOutcome("hit")
			return e.result, nil
		case e.err != nil && age < c.cfg.FailureBackoff:
			c.mu.Unlock()
			metrics.RecordCacheOutcome("failed_cached")
			return nil, e.err
		default:
			c.settled.Remove(fp)
		}
	}

	f := c.startLocked(ctx, fp, req, compute)
	c.mu.Unlock()
	metrics.RecordCacheOutcome("miss")
	return c.wait(ctx, fp, f)
}

// startLocked registers a new flight for fp and launches its computation. The computation
// outlives the first caller, so it only inherits the caller's span context.
func (c *Coordinator) startLocked(ctx context.Context, fp string, req model.Request, compute ComputeFunc) *flight {
	base := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	fctx, cancel := context.WithCancel(base)
	f := &flight{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
		gen:     c.gen,
		exited:  make(chan struct{}),
	}
	if c.cfg.RequestTimeout > 0 {
		timeout := c.cfg.RequestTimeout
		f.timer = time.AfterFunc(timeout, func() {
			c.settle(fp, f, nil, fmt.Errorf("%w: no result after %s", model.ErrTimeout, timeout))
		})
	}
	c.flights[fp] = f
	metrics.SetInflight(len(c.flights))

	go c.run(fctx, fp, f, c.lingering[fp], req, compute)
	return f
}

// run computes f. If prev is set, an abandoned computation for the same fingerprint is
// still inside the model and run waits for it to return first.
func (c *Coordinator) run(ctx context.Context, fp string, f *flight, prev <-chan struct{}, req model.Request, compute ComputeFunc) {
	defer c.exit(fp, f)
	if prev != nil {
		<-prev
	}

	if err := c.enterGate(ctx, f); err != nil {
		c.settle(fp, f, nil, err)
		return
	}
	defer c.leaveGate()

	defer func() {
		if r := recover(); r != nil {
			c.settle(fp, f, nil, fmt.Errorf("%w: panic: %v", model.ErrInference, r))
		}
	}()

	res, err := c.compute(ctx, req, compute)
	c.settle(fp, f, res, err)
}

// compute runs fn behind the optional second-level store.
func (c *Coordinator) compute(ctx context.Context, req model.Request, fn ComputeFunc) (*model.Result, error) {
	if c.store != nil {
		res, err := c.store.Get(ctx, req.Fingerprint)
		if err != nil {
			log.Printf("Result store lookup failed for %s: %v", short(req.Fingerprint), err)
		} else if res != nil {
			metrics.RecordCacheOutcome("l2_hit")
			return res, nil
		}
	}

	res, err := fn(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: computation returned no result", model.ErrInference)
	}

	if c.store != nil {
		if err := c.store.Set(ctx, req.Fingerprint, res, c.storeTTL); err != nil {
			log.Printf("Result store write failed for %s: %v", short(req.Fingerprint), err)
		}
	}
	return res, nil
}

func (c *Coordinator) exit(fp string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(f.exited)
	if c.lingering[fp] == f.exited {
		delete(c.lingering, fp)
	}
}

// settle completes f once; later calls (a late result after a timeout) are discarded.
func (c *Coordinator) settle(fp string, f *flight, res *model.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finishLocked(fp, f, res, err) {
		return
	}
	if err != nil {
		c.settled.Add(fp, &entry{err: err, at: c.now()})
		return
	}
	c.settled.Add(fp, &entry{result: res, at: c.now()})
}

// finishLocked wakes every waiter of f and removes it from the pending table. It reports
// false if f was already finished.
func (c *Coordinator) finishLocked(fp string, f *flight, res *model.Result, err error) bool {
	select {
	case <-f.done:
		return false
	default:
	}
	f.result, f.err = res, err
	close(f.done)
	if f.timer != nil {
		f.timer.Stop()
	}
	f.cancel()
	if c.flights[fp] == f {
		delete(c.flights, fp)
	}
	select {
	case <-f.exited:
	default:
		c.lingering[fp] = f.exited
	}
	metrics.SetInflight(len(c.flights))
	c.signalDrainedLocked()
	return true
}

func (c *Coordinator) wait(ctx context.Context, fp string, f *flight) (*model.Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		c.detach(fp, f)
		return nil, ctx.Err()
	}
}

// detach drops one caller's interest. When nobody is left the computation is aborted and
// the fingerprint returns to Absent. A resubmission starts a new flight, but its
// computation is held until the aborted one has returned.
func (c *Coordinator) detach(fp string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	c.finishLocked(fp, f, nil, context.Canceled)
}

// State reports the current state of fingerprint without touching recency.
func (c *Coordinator) State(fingerprint string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.flights[fingerprint]; ok {
		return StatePending
	}
	e, ok := c.settled.Peek(fingerprint)
	if !ok {
		return StateAbsent
	}
	if e.err != nil {
		return StateFailed
	}
	if c.now().Sub(e.at) >= c.cfg.TTL {
		return StateAbsent
	}
	return StateCompleted
}

// Pending returns the number of fingerprints with a computation in flight.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

// Len returns the number of settled entries held in memory.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled.Len()
}

// Purge drops every settled entry. Pending computations are unaffected.
func (c *Coordinator) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settled.Purge()
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
