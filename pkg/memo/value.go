package memo

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Span and attribute names emitted around recomputations
const (
	TraceRecompute = "memo.recompute"

	AttrName = "memo.name"
	AttrTTL  = "memo.ttl"
)

// flightKey is the only key used in a Value's singleflight group; a Value
// caches exactly one thing.
const flightKey = "value"

// Supplier computes a fresh value. It is the expensive native-backed query
// a Value guards.
type Supplier[T any] func(ctx context.Context) (T, error)

// Observer receives cache events. Implementations must be safe for
// concurrent use.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
	Recomputed(name string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string) {}

func (nopObserver) CacheMiss(string) {}

func (nopObserver) Recomputed(string, time.Duration, error) {}

// entry is published whole and never modified after the store.
type entry[T any] struct {
	value      T
	computedAt time.Time
}

type options struct {
	name     string
	clock    Clock
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Value
type Option func(*options)

// WithName labels the Value in logs, spans and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock replaces the system clock.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger used to report recomputations.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer wraps each recomputation in a span.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithObserver reports hits, misses and recomputations.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// Value memoizes the result of a Supplier for a fixed TTL.
//
// Value uses the blocking single-flight variant: when the cached entry is
// missing or stale, the first caller runs the supplier and every concurrent
// caller waits for that run and receives its result or its error. A stale
// value is never handed out while a recomputation is in flight.
//
// A failed recomputation leaves the previous entry in place. Because that
// entry is still stale, the next Get retries.
//
// The zero Value is not usable; construct one with New.
type Value[T any] struct {
	supplier Supplier[T]
	ttl      time.Duration
	opts     options

	current atomic.Pointer[entry[T]]
	group   singleflight.Group
}

// New returns a Value computing its result with supplier and keeping it for
// ttl. Use Never to compute once and Always to disable caching; any other
// negative ttl is treated as Never.
func New[T any](supplier Supplier[T], ttl time.Duration, opts ...Option) *Value[T] {
	if supplier == nil {
		panic("memo: nil supplier")
	}

	o := options{
		name:     "unnamed",
		clock:    SystemClock,
		logger:   zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Value[T]{
		supplier: supplier,
		ttl:      normalizeTTL(ttl),
		opts:     o,
	}
}

// Name returns the label given with WithName
func (v *Value[T]) Name() string {
	return v.opts.name
}

// TTL returns the normalized time-to-live
func (v *Value[T]) TTL() time.Duration {
	return v.ttl
}

// Get returns the cached value, recomputing it first if it is missing or
// has expired. Errors from the supplier are returned unchanged.
//
// ctx is handed to the supplier with its cancellation removed: a triggered
// recomputation always runs to completion, since other callers may be
// waiting on it. Bounding the supplier's run time is the supplier's job.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if e := v.current.Load(); e != nil && v.fresh(e) {
		v.opts.observer.CacheHit(v.opts.name)
		return e.value, nil
	}
	v.opts.observer.CacheMiss(v.opts.name)

	res, err, _ := v.group.Do(flightKey, func() (interface{}, error) {
		// A flight that finished just before this one started may already
		// have refreshed the entry.
		if e := v.current.Load(); e != nil && v.fresh(e) {
			return e, nil
		}
		return v.recompute(context.WithoutCancel(ctx))
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(*entry[T]).value, nil
}

func (v *Value[T]) fresh(e *entry[T]) bool {
	if v.ttl == Never {
		return true
	}
	return v.opts.clock.Now().Sub(e.computedAt) < v.ttl
}

func (v *Value[T]) recompute(ctx context.Context) (*entry[T], error) {
	ctx, span := v.opts.tracer.Start(ctx, TraceRecompute, trace.WithAttributes(
		attribute.String(AttrName, v.opts.name),
		attribute.String(AttrTTL, FormatTTL(v.ttl)),
	))
	defer span.End()

	start := v.opts.clock.Now()
	began := time.Now()
	value, err := v.supplier(ctx)
	elapsed := time.Since(began)

	v.opts.observer.Recomputed(v.opts.name, elapsed, err)

	if err != nil {
		span.SetStatus(codes.Error, "recomputation failed")
		span.RecordError(err)
		v.opts.logger.Debug("Recomputation failed, keeping previous entry",
			zap.String("name", v.opts.name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	e := &entry[T]{value: value, computedAt: start}
	v.current.Store(e)

	span.SetStatus(codes.Ok, "")
	v.opts.logger.Debug("Value recomputed",
		zap.String("name", v.opts.name),
		zap.String("ttl", FormatTTL(v.ttl)),
		zap.Duration("elapsed", elapsed))

	return e, nil
}
