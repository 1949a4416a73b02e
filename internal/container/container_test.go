package container

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/shared"
)

type testService struct {
	name    string
	started bool
	stopped bool
	healthy bool

	failStart bool
	onStart   func()
	onStop    func()
}

func (s *testService) OnStart(ctx context.Context) error {
	if s.failStart {
		return errors.New("start failed")
	}
	s.started = true
	if s.onStart != nil {
		s.onStart()
	}
	return nil
}

func (s *testService) OnStop(ctx context.Context) error {
	s.stopped = true
	if s.onStop != nil {
		s.onStop()
	}
	return nil
}

func (s *testService) Health(ctx context.Context) error {
	if !s.healthy {
		return errors.New("unhealthy")
	}
	return nil
}

func mustGraph(t *testing.T, root *shared.Module) *graph.Graph {
	t.Helper()
	g, err := graph.Resolve(root)
	require.NoError(t, err)
	return g
}

func TestResolveCachesSingletonPerDeclaringModule(t *testing.T) {
	var calls int32
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Service",
			New: func(deps ...any) (any, error) {
				atomic.AddInt32(&calls, 1)
				return &testService{name: "svc"}, nil
			},
		}},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	first, err := c.Resolve(ctx, "app", "Service")
	require.NoError(t, err)
	second, err := c.Resolve(ctx, "app", "Service")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestImportersShareDeclaringModuleInstance(t *testing.T) {
	db := &shared.Module{
		Name: "db",
		Providers: []shared.Provider{{
			Token: "DB",
			New: func(deps ...any) (any, error) {
				return &testService{name: "db"}, nil
			},
		}},
		Exports: []shared.Token{"DB"},
	}
	users := &shared.Module{Name: "users", Imports: []*shared.Module{db}}
	orders := &shared.Module{Name: "orders", Imports: []*shared.Module{db}}
	app := &shared.Module{Name: "app", Imports: []*shared.Module{users, orders}}

	c := New(mustGraph(t, app))
	ctx := context.Background()

	fromUsers, err := c.Resolve(ctx, "users", "DB")
	require.NoError(t, err)
	fromOrders, err := c.Resolve(ctx, "orders", "DB")
	require.NoError(t, err)
	fromDB, err := c.Resolve(ctx, "db", "DB")
	require.NoError(t, err)

	assert.Same(t, fromUsers, fromOrders)
	assert.Same(t, fromUsers, fromDB)
}

func TestResolveEnforcesVisibility(t *testing.T) {
	db := &shared.Module{
		Name: "db",
		Providers: []shared.Provider{
			{Token: "DB", Value: "db"},
			{Token: "Pool", Value: "pool"},
		},
		Exports: []shared.Token{"DB"},
	}
	app := &shared.Module{Name: "app", Imports: []*shared.Module{db}}

	c := New(mustGraph(t, app))
	ctx := context.Background()

	_, err := c.Resolve(ctx, "app", "Pool")
	require.Error(t, err)
	assert.True(t, errors.IsProviderNotFound(err))

	// The declaring module itself still sees its private token.
	v, err := c.Resolve(ctx, "db", "Pool")
	require.NoError(t, err)
	assert.Equal(t, "pool", v)
}

func TestResolveUnknownModule(t *testing.T) {
	c := New(mustGraph(t, &shared.Module{Name: "app"}))

	_, err := c.Resolve(context.Background(), "ghost", "Anything")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownModule(err))
}

func TestResolveDetectsProviderCycle(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{
				Token:  "A",
				Inject: []shared.Dep{{Token: "B"}},
				New:    func(deps ...any) (any, error) { return "a", nil },
			},
			{
				Token:  "B",
				Inject: []shared.Dep{{Token: "A"}},
				New:    func(deps ...any) (any, error) { return "b", nil },
			},
		},
	}

	c := New(mustGraph(t, mod))

	done := make(chan error, 1)
	go func() {
		_, err := c.Resolve(context.Background(), "app", "A")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.IsCircularDependency(err))
		assert.Contains(t, err.Error(), "app/A -> app/B -> app/A")
	case <-time.After(2 * time.Second):
		t.Fatal("cycle detection hung instead of failing")
	}
}

func TestConcurrentResolutionsDetectSharedCycle(t *testing.T) {
	// A -> Slow, B and B -> A. One goroutine claims A and stalls inside
	// Slow's factory while another claims B, so each half of the cycle is
	// held by a different resolution. Both must fail with a cycle error.
	slowEntered := make(chan struct{})
	release := make(chan struct{})

	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{
				Token:  "A",
				Inject: []shared.Dep{{Token: "Slow"}, {Token: "B"}},
				New:    func(deps ...any) (any, error) { return "a", nil },
			},
			{
				Token:  "B",
				Inject: []shared.Dep{{Token: "A"}},
				New:    func(deps ...any) (any, error) { return "b", nil },
			},
			{
				Token: "Slow",
				Factory: func(deps ...any) (any, error) {
					close(slowEntered)
					<-release
					return "slow", nil
				},
			},
		},
	}

	c := New(mustGraph(t, mod))
	errs := make(chan error, 2)

	go func() {
		_, err := c.Resolve(context.Background(), "app", "A")
		errs <- err
	}()
	<-slowEntered

	go func() {
		_, err := c.Resolve(context.Background(), "app", "B")
		errs <- err
	}()

	// Let the second resolution park on A before the cycle closes.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.Error(t, err)
			assert.True(t, errors.IsCircularDependency(err))
		case <-time.After(2 * time.Second):
			t.Fatal("concurrent cycle resolution hung instead of failing")
		}
	}
}

func TestLazyDependencyBreaksCycle(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{
				Token:  "A",
				Inject: []shared.Dep{{Token: "B", Mode: shared.DepLazy}},
				New: func(deps ...any) (any, error) {
					return map[string]any{"b": deps[0]}, nil
				},
			},
			{
				Token:  "B",
				Inject: []shared.Dep{{Token: "A"}},
				New:    func(deps ...any) (any, error) { return "b-instance", nil },
			},
		},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	v, err := c.Resolve(ctx, "app", "A")
	require.NoError(t, err)

	lazy, ok := v.(map[string]any)["b"].(*Lazy)
	require.True(t, ok, "lazy dep should inject a *Lazy handle")
	assert.Equal(t, shared.Token("B"), lazy.Token())
	assert.False(t, lazy.IsResolved())

	b, err := lazy.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b-instance", b)
	assert.True(t, lazy.IsResolved())
}

func TestValueProviderSkipsDependencies(t *testing.T) {
	var depBuilt int32
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{
				Token: "Dep",
				New: func(deps ...any) (any, error) {
					atomic.AddInt32(&depBuilt, 1)
					return "dep", nil
				},
			},
			{
				Token:  "Static",
				Value:  "static-value",
				Inject: []shared.Dep{{Token: "Dep"}},
			},
		},
	}

	c := New(mustGraph(t, mod))

	v, err := c.Resolve(context.Background(), "app", "Static")
	require.NoError(t, err)
	assert.Equal(t, "static-value", v)
	assert.Equal(t, int32(0), atomic.LoadInt32(&depBuilt))
}

func TestConstructorReceivesDepsInDeclaredOrder(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{Token: "First", Value: "one"},
			{Token: "Second", Value: "two"},
			{
				Token: "Combined",
				Inject: []shared.Dep{
					{Token: "Second"},
					{Token: "First"},
				},
				Factory: func(deps ...any) (any, error) {
					return deps[0].(string) + "+" + deps[1].(string), nil
				},
			},
		},
	}

	c := New(mustGraph(t, mod))

	v, err := c.Resolve(context.Background(), "app", "Combined")
	require.NoError(t, err)
	assert.Equal(t, "two+one", v)
}

func TestFactoryDeferredResultIsAwaited(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Async",
			Factory: func(deps ...any) (any, error) {
				return shared.Async(func() (any, error) {
					time.Sleep(20 * time.Millisecond)
					return "async-value", nil
				}), nil
			},
		}},
	}

	c := New(mustGraph(t, mod))

	v, err := c.Resolve(context.Background(), "app", "Async")
	require.NoError(t, err)
	assert.Equal(t, "async-value", v)

	again, err := c.Resolve(context.Background(), "app", "Async")
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestFactoryDeferredFailureBecomesFactoryError(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Broken",
			Factory: func(deps ...any) (any, error) {
				return shared.Async(func() (any, error) {
					return nil, errors.New("backend offline")
				}), nil
			},
		}},
	}

	c := New(mustGraph(t, mod))

	_, err := c.Resolve(context.Background(), "app", "Broken")
	require.Error(t, err)
	assert.True(t, errors.IsFactoryError(err))
	assert.Contains(t, err.Error(), "backend offline")
}

func TestFailedEntryStaysFailed(t *testing.T) {
	var calls int32
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Flaky",
			New: func(deps ...any) (any, error) {
				atomic.AddInt32(&calls, 1)
				return nil, errors.New("boom")
			},
		}},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	_, err := c.Resolve(ctx, "app", "Flaky")
	require.Error(t, err)
	_, err2 := c.Resolve(ctx, "app", "Flaky")
	require.Error(t, err2)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "failed providers must not be retried")
	assert.True(t, errors.IsFactoryError(err2))
}

func TestConstructorPanicBecomesFactoryError(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Panicky",
			New: func(deps ...any) (any, error) {
				panic("constructor exploded")
			},
		}},
	}

	c := New(mustGraph(t, mod))

	_, err := c.Resolve(context.Background(), "app", "Panicky")
	require.Error(t, err)
	assert.True(t, errors.IsFactoryError(err))
	assert.Contains(t, err.Error(), "constructor exploded")
}

func TestResolveSingleFlight(t *testing.T) {
	var calls int32
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Slow",
			New: func(deps ...any) (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(50 * time.Millisecond)
				return &testService{name: "slow"}, nil
			},
		}},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	const goroutines = 16
	results := make([]any, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(ctx, "app", "Slow")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
}

func TestWaiterCancellationLeavesConstructionIntact(t *testing.T) {
	release := make(chan struct{})
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Gated",
			New: func(deps ...any) (any, error) {
				<-release
				return "gated-value", nil
			},
		}},
	}

	c := New(mustGraph(t, mod))

	ownerDone := make(chan error, 1)
	go func() {
		_, err := c.Resolve(context.Background(), "app", "Gated")
		ownerDone <- err
	}()

	// Give the owner time to claim the entry before the waiter joins.
	time.Sleep(10 * time.Millisecond)

	waiterCtx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.Resolve(waiterCtx, "app", "Gated")
		waiterDone <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-waiterDone:
		require.Error(t, err)
		assert.True(t, errors.IsContextCancelled(err))
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	close(release)
	require.NoError(t, <-ownerDone)

	v, err := c.Resolve(context.Background(), "app", "Gated")
	require.NoError(t, err)
	assert.Equal(t, "gated-value", v)
}

func TestDeferredCancellationFailsEntry(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Stuck",
			Factory: func(deps ...any) (any, error) {
				return shared.Async(func() (any, error) {
					time.Sleep(time.Second)
					return "late", nil
				}), nil
			},
		}},
	}

	c := New(mustGraph(t, mod))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Resolve(ctx, "app", "Stuck")
	require.Error(t, err)
	assert.True(t, errors.IsContextCancelled(err))

	// The constructing goroutine owned the await, so the failure sticks.
	_, err = c.Resolve(context.Background(), "app", "Stuck")
	require.Error(t, err)
	assert.True(t, errors.IsContextCancelled(err))
}

func TestOptionalDependency(t *testing.T) {
	lib := &shared.Module{
		Name:      "lib",
		Providers: []shared.Provider{{Token: "Present", Value: "here"}},
		Exports:   []shared.Token{"Present"},
	}
	app := &shared.Module{
		Name:    "app",
		Imports: []*shared.Module{lib},
		Providers: []shared.Provider{{
			Token: "Consumer",
			Inject: []shared.Dep{
				{Token: "Present", Mode: shared.DepOptional},
				{Token: "Absent", Mode: shared.DepOptional},
			},
			New: func(deps ...any) (any, error) {
				return []any{deps[0], deps[1]}, nil
			},
		}},
	}

	c := New(mustGraph(t, app))

	v, err := c.Resolve(context.Background(), "app", "Consumer")
	require.NoError(t, err)
	got := v.([]any)
	assert.Equal(t, "here", got[0])
	assert.Nil(t, got[1])
}

func TestStartAndStopInstancesFollowConstructionOrder(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(ev string) func() {
		return func() {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}
	}

	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{
				Token: "First",
				New: func(deps ...any) (any, error) {
					return &testService{name: "first", onStart: record("start:first"), onStop: record("stop:first")}, nil
				},
			},
			{
				Token: "Second",
				New: func(deps ...any) (any, error) {
					return &testService{name: "second", onStart: record("start:second"), onStop: record("stop:second")}, nil
				},
			},
			{
				Token: "Late",
				New: func(deps ...any) (any, error) {
					return &testService{name: "late", onStart: record("start:late"), onStop: record("stop:late")}, nil
				},
			},
		},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	_, err := c.Resolve(ctx, "app", "First")
	require.NoError(t, err)
	_, err = c.Resolve(ctx, "app", "Second")
	require.NoError(t, err)

	require.NoError(t, c.StartInstances(ctx))

	// Instances constructed after start receive OnStart immediately.
	late, err := c.Resolve(ctx, "app", "Late")
	require.NoError(t, err)
	assert.True(t, late.(*testService).started)

	require.NoError(t, c.StopInstances(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"start:first", "start:second", "start:late",
		"stop:late", "stop:second", "stop:first",
	}, events)
}

func TestStartInstancesReportsFailure(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{{
			Token: "Bad",
			New: func(deps ...any) (any, error) {
				return &testService{name: "bad", failStart: true}, nil
			},
		}},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	_, err := c.Resolve(ctx, "app", "Bad")
	require.NoError(t, err)

	err = c.StartInstances(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLifecycleErrorSentinel))
}

func TestHealthCheckCollectsReporters(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{Token: "Healthy", Value: &testService{name: "ok", healthy: true}},
			{Token: "Unhealthy", Value: &testService{name: "bad", healthy: false}},
			{Token: "Plain", Value: "no health hook"},
		},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	for _, tok := range []shared.Token{"Healthy", "Unhealthy", "Plain"} {
		_, err := c.Resolve(ctx, "app", tok)
		require.NoError(t, err)
	}

	results := c.HealthCheck(ctx)
	require.Len(t, results, 2)
	assert.NoError(t, results["app/Healthy"])
	assert.Error(t, results["app/Unhealthy"])
}

func TestReportListsEntries(t *testing.T) {
	mod := &shared.Module{
		Name: "app",
		Providers: []shared.Provider{
			{Token: "Good", Value: "ok"},
			{Token: "Bad", New: func(deps ...any) (any, error) { return nil, errors.New("nope") }},
		},
	}

	c := New(mustGraph(t, mod))
	ctx := context.Background()

	_, _ = c.Resolve(ctx, "app", "Good")
	_, _ = c.Resolve(ctx, "app", "Bad")

	report := c.Report()
	states := make(map[string]string, len(report))
	for _, e := range report {
		states[e.Token] = e.State
	}
	assert.Equal(t, "resolved", states["Good"])
	assert.Equal(t, "failed", states["Bad"])
}
