package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingSupplier returns 1, 2, 3, ... on successive calls
func countingSupplier(calls *atomic.Int64) Supplier[int64] {
	return func(ctx context.Context) (int64, error) {
		return calls.Add(1), nil
	}
}

func TestValueIdempotentWithinTTL(t *testing.T) {
	clock := newManualClock()
	var calls atomic.Int64

	v := New(countingSupplier(&calls), time.Second, WithClock(clock), WithLogger(zaptest.NewLogger(t)))

	first, err := v.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(999 * time.Millisecond)

	second, err := v.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("expected supplier to run once, ran %d times", calls.Load())
	}
	if first != second {
		t.Errorf("expected identical values, got %d and %d", first, second)
	}
}

func TestValueExpiry(t *testing.T) {
	tests := []struct {
		name          string
		ttl           time.Duration
		advance       time.Duration
		expectedCalls int64
	}{
		{name: "within ttl", ttl: time.Second, advance: 500 * time.Millisecond, expectedCalls: 1},
		{name: "exactly at ttl", ttl: time.Second, advance: time.Second, expectedCalls: 2},
		{name: "past ttl", ttl: time.Second, advance: time.Hour, expectedCalls: 2},
		{name: "never", ttl: Never, advance: 1000 * time.Hour, expectedCalls: 1},
		{name: "negative ttl treated as never", ttl: -5 * time.Second, advance: 1000 * time.Hour, expectedCalls: 1},
		{name: "always", ttl: Always, advance: 0, expectedCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newManualClock()
			var calls atomic.Int64
			v := New(countingSupplier(&calls), tt.ttl, WithClock(clock))

			if _, err := v.Get(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			clock.Advance(tt.advance)
			got, err := v.Get(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if calls.Load() != tt.expectedCalls {
				t.Errorf("expected %d supplier calls, got %d", tt.expectedCalls, calls.Load())
			}
			if got != tt.expectedCalls {
				t.Errorf("expected value %d, got %d", tt.expectedCalls, got)
			}
		})
	}
}

func TestValueNeverComputesOnce(t *testing.T) {
	clock := newManualClock()
	var calls atomic.Int64
	v := New(countingSupplier(&calls), Never, WithClock(clock))

	for i := 0; i < 100; i++ {
		clock.Advance(time.Duration(i) * time.Hour)
		got, err := v.Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 1 {
			t.Fatalf("call %d: expected cached value 1, got %d", i, got)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("expected supplier to run once, ran %d times", calls.Load())
	}
}

func TestValueAlwaysRecomputes(t *testing.T) {
	var calls atomic.Int64
	v := New(countingSupplier(&calls), Always)

	for i := 1; i <= 5; i++ {
		got, err := v.Get(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != int64(i) {
			t.Errorf("expected value %d, got %d", i, got)
		}
	}
}

func TestValueSingleFlight(t *testing.T) {
	const callers = 64

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})

	v := New(func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "snapshot", nil
	}, time.Hour)

	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = v.Get(context.Background())
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected exactly one supplier invocation, got %d", calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != "snapshot" {
			t.Errorf("caller %d: expected %q, got %q", i, "snapshot", results[i])
		}
	}
}

func TestValueSingleFlightSharesFailure(t *testing.T) {
	errNative := errors.New("sysctl failed")
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	v := New(func(ctx context.Context) (int, error) {
		once.Do(func() { close(started) })
		<-release
		return 0, errNative
	}, time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = v.Get(context.Background())
		}(i)
	}

	<-started
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, errNative) {
			t.Errorf("caller %d: expected %v, got %v", i, errNative, err)
		}
	}
}

func TestValueFailureIsNotCached(t *testing.T) {
	errNative := errors.New("read /proc/meminfo: permission denied")
	clock := newManualClock()

	var calls atomic.Int64
	fail := atomic.Bool{}

	v := New(func(ctx context.Context) (int64, error) {
		n := calls.Add(1)
		if fail.Load() {
			return 0, errNative
		}
		return n, nil
	}, time.Second, WithClock(clock), WithLogger(zaptest.NewLogger(t)))

	t.Run("failure without previous entry retries immediately", func(t *testing.T) {
		fail.Store(true)
		if _, err := v.Get(context.Background()); err != errNative {
			t.Fatalf("expected verbatim supplier error, got %v", err)
		}

		fail.Store(false)
		got, err := v.Get(context.Background())
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if got != 2 {
			t.Errorf("expected value from second call, got %d", got)
		}
	})

	t.Run("failure after expiry retries on next call", func(t *testing.T) {
		clock.Advance(2 * time.Second)

		fail.Store(true)
		if _, err := v.Get(context.Background()); !errors.Is(err, errNative) {
			t.Fatalf("expected supplier error, got %v", err)
		}

		fail.Store(false)
		got, err := v.Get(context.Background())
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if got != 4 {
			t.Errorf("expected value from fourth call, got %d", got)
		}

		// The fresh entry is served from cache again
		if _, err := v.Get(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls.Load() != 4 {
			t.Errorf("expected 4 supplier calls, got %d", calls.Load())
		}
	})
}

func TestValueIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "ok", nil
	}, time.Minute)

	got, err := v.Get(ctx)
	if err != nil {
		t.Fatalf("expected recomputation to run despite cancelled caller, got %v", err)
	}
	if got != "ok" {
		t.Errorf("expected %q, got %q", "ok", got)
	}
}

type recordingObserver struct {
	mu         sync.Mutex
	hits       int
	misses     int
	recomputes int
	failures   int
}

func (o *recordingObserver) CacheHit(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *recordingObserver) CacheMiss(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses++
}

func (o *recordingObserver) Recomputed(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recomputes++
	if err != nil {
		o.failures++
	}
}

func TestValueObserver(t *testing.T) {
	clock := newManualClock()
	observer := &recordingObserver{}
	var calls atomic.Int64

	v := New(countingSupplier(&calls), time.Second, WithClock(clock), WithObserver(observer), WithName("memory"))

	for i := 0; i < 3; i++ {
		if _, err := v.Get(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	clock.Advance(time.Second)
	if _, err := v.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if observer.hits != 2 {
		t.Errorf("expected 2 hits, got %d", observer.hits)
	}
	if observer.misses != 2 {
		t.Errorf("expected 2 misses, got %d", observer.misses)
	}
	if observer.recomputes != 2 {
		t.Errorf("expected 2 recomputations, got %d", observer.recomputes)
	}
	if v.Name() != "memory" {
		t.Errorf("expected name %q, got %q", "memory", v.Name())
	}
}

func TestValueTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	errNative := errors.New("perfstat unavailable")
	fail := true

	v := New(func(ctx context.Context) (int, error) {
		if fail {
			return 0, errNative
		}
		return 42, nil
	}, Never, WithName("processor"), WithTracer(provider.Tracer("test")))

	if _, err := v.Get(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	if _, err := v.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	for _, span := range spans {
		if span.Name() != TraceRecompute {
			t.Errorf("expected span name %q, got %q", TraceRecompute, span.Name())
		}
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected first span to be marked as error, got %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Ok {
		t.Errorf("expected second span to be ok, got %v", spans[1].Status().Code)
	}

	var found bool
	for _, attr := range spans[1].Attributes() {
		if string(attr.Key) == AttrName && attr.Value.AsString() == "processor" {
			found = true
		}
	}
	if !found {
		t.Error("expected memo.name attribute on span")
	}
}

func TestNewPanicsOnNilSupplier(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil supplier")
		}
	}()
	New[int](nil, time.Second)
}

func BenchmarkValueGetCached(b *testing.B) {
	v := New(func(ctx context.Context) (int, error) { return 1, nil }, Never)
	ctx := context.Background()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = v.Get(ctx)
		}
	})
}
