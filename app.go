package loom

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/config"
	"github.com/xraph/loom/internal/container"
	"github.com/xraph/loom/internal/dispatch"
	"github.com/xraph/loom/internal/graph"
	"github.com/xraph/loom/internal/metrics"
	"github.com/xraph/loom/internal/pipeline"
	"github.com/xraph/loom/internal/router"
	"github.com/xraph/loom/logger"
)

// Builtin route paths registered by Start unless WithoutBuiltinEndpoints
// is set.
const (
	HealthPath  = "/_/health"
	InfoPath    = "/_/info"
	MetricsPath = "/_/metrics"
)

// App is a composed application: the resolved module graph, its instance
// container, the middleware pipeline, and the HTTP and message bindings.
// Build one with New, then Start/Stop it yourself or let Run own the
// process lifecycle.
type App struct {
	options Options
	log     logger.Logger
	config  *config.Manager
	metrics metrics.Metrics

	graph     *graph.Graph
	container *container.Container
	bridge    *dispatch.Bridge
	router    *router.Router

	// lifecycle serializes Start and Stop; mu guards the state fields so
	// hooks and handlers may use accessors while a transition runs.
	lifecycle sync.Mutex
	mu        sync.Mutex
	started   bool
	startTime time.Time
	hooks     map[Phase][]Hook
	server    *http.Server
}

// New composes an application from the root module: the module graph is
// resolved and validated, the container and middleware pipeline are built,
// and the router is wired to the dispatch bridge. Construction stays lazy;
// nothing is instantiated until Start.
//
// Declaration errors (unknown imports, module cycles, invalid exports,
// duplicate providers, bad middleware bindings) surface here, not at
// request time.
func New(root *Module, opts ...Option) (*App, error) {
	if root == nil {
		return nil, errors.ErrValidationError("root", errors.New("root module is nil"))
	}

	options := defaultOptions(root.Name)
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	log := options.Logger
	if log == nil {
		log = logger.NewDevelopmentLogger()
	}
	log = log.Named("loom")

	g, err := graph.Resolve(root)
	if err != nil {
		return nil, err
	}
	c := container.New(g)
	table, err := pipeline.Build(context.Background(), g, c)
	if err != nil {
		return nil, err
	}
	bridge := dispatch.NewBridge(g, c, table, log)

	adapter := options.Adapter
	if adapter == nil {
		adapter = router.NewBunRouterAdapter()
	}
	for _, mw := range options.HTTPMiddleware {
		adapter.UseGlobal(mw)
	}
	r := router.New(adapter, log)
	r.OnRoute(bridge.RecordRoute)

	manager := options.Config
	if manager == nil {
		manager = config.NewManager(log)
		if options.ConfigFile != "" {
			src, err := config.NewFileSource(options.ConfigFile, config.FileSourceOptions{
				RequireFile:   options.ConfigFileRequired,
				ExpandEnvVars: true,
				Logger:        log,
			})
			if err != nil {
				return nil, err
			}
			manager.AddSource(src)
		}
		if options.EnvPrefix != "" {
			manager.AddSource(config.NewEnvSource(options.EnvPrefix, config.EnvSourceOptions{
				Priority:       100,
				TypeConversion: true,
				Logger:         log,
			}))
		}
		if err := manager.Load(context.Background()); err != nil {
			return nil, err
		}
	}

	m := options.Metrics
	if m == nil {
		m = metrics.New(metrics.Config{Enabled: true})
	}

	return &App{
		options:   options,
		log:       log,
		config:    manager,
		metrics:   m,
		graph:     g,
		container: c,
		bridge:    bridge,
		router:    r,
		hooks:     make(map[Phase][]Hook),
	}, nil
}

// OnPhase registers a lifecycle hook. Hooks run in registration order;
// register them before Start.
func (a *App) OnPhase(phase Phase, hook Hook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks[phase] = append(a.hooks[phase], hook)
}

// Start brings the application up: before-start hooks, eager construction
// (controllers and providers marked Eager), OnStart of constructed
// instances in construction order, controller binding onto the router and
// pattern table, builtin endpoints, after-start hooks.
//
// Start does not listen; Run does, or the application is served through
// ServeHTTP (httptest does this in tests).
func (a *App) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.IsStarted() {
		return errors.ErrLifecycleError("start", errors.New("application already started"))
	}

	if err := a.runHooks(ctx, PhaseBeforeStart, true); err != nil {
		return err
	}

	if a.options.WatchConfig {
		if err := a.config.Watch(context.Background()); err != nil {
			return err
		}
	}

	if err := a.bootEager(ctx); err != nil {
		return err
	}
	if err := a.container.StartInstances(ctx); err != nil {
		return err
	}
	if err := a.bindControllers(ctx); err != nil {
		// Instances already got OnStart; give them OnStop before failing.
		_ = a.container.StopInstances(ctx)
		return err
	}
	if a.options.BuiltinEndpoints {
		if err := a.registerBuiltins(); err != nil {
			_ = a.container.StopInstances(ctx)
			return err
		}
	}

	a.mu.Lock()
	a.started = true
	a.startTime = time.Now()
	a.mu.Unlock()

	a.runHooksLogged(ctx, PhaseAfterStart)

	a.log.Info("application started",
		logger.String("name", a.options.Name),
		logger.String("version", a.options.Version),
		logger.String("environment", a.options.Environment),
		logger.Int("modules", a.graph.Len()),
		logger.Int("routes", len(a.router.Routes())),
		logger.Int("patterns", len(a.bridge.Patterns())))
	return nil
}

// bootEager constructs controllers and providers marked Eager, children
// before parents so dependencies exist by the time importers resolve them.
func (a *App) bootEager(ctx context.Context) error {
	for _, node := range a.graph.Ordered() {
		mod := node.Module()
		for _, p := range mod.Providers {
			if !p.Eager {
				continue
			}
			if _, err := a.container.Resolve(ctx, node.Name(), p.Token); err != nil {
				return err
			}
		}
		for _, token := range mod.Controllers {
			if _, err := a.container.Resolve(ctx, node.Name(), token); err != nil {
				return err
			}
		}
	}
	return nil
}

// bindControllers mounts every controller's routes and message patterns.
func (a *App) bindControllers(ctx context.Context) error {
	for _, node := range a.graph.Ordered() {
		for _, token := range node.Module().Controllers {
			if err := a.bindController(ctx, node.Name(), token); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *App) bindController(ctx context.Context, module string, token Token) error {
	instance, err := a.container.Resolve(ctx, module, token)
	if err != nil {
		return err
	}

	ctrl, hasRoutes := instance.(Controller)
	patterns, hasPatterns := instance.(PatternController)
	if !hasRoutes && !hasPatterns {
		return errors.ErrInvalidProvider(module, string(token),
			"controller implements neither Controller nor PatternController")
	}

	if hasRoutes {
		prefix := ""
		if p, ok := instance.(ControllerWithPrefix); ok {
			prefix = p.Prefix()
		}
		scoped := a.router.Scoped(module, token, prefix, a.container.Scope(module), a.bridge.RouteHandler)
		if m, ok := instance.(ControllerWithMiddleware); ok {
			scoped.Use(m.Middleware()...)
		}
		if err := ctrl.Routes(scoped); err != nil {
			return errors.ErrInvalidProvider(module, string(token), "route registration failed: "+err.Error())
		}
	}

	if hasPatterns {
		for _, ph := range patterns.Patterns() {
			if err := a.bridge.RegisterPattern(module, ph); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *App) registerBuiltins() error {
	if err := a.router.GET(HealthPath, a.handleHealth, WithName("loom.health")); err != nil {
		return err
	}
	if err := a.router.GET(InfoPath, a.handleInfo, WithName("loom.info")); err != nil {
		return err
	}
	exposition := a.metrics.Handler()
	return a.router.GET(MetricsPath, func(ctx Context) error {
		exposition.ServeHTTP(ctx.Response(), ctx.Request())
		return nil
	}, WithName("loom.metrics"))
}

func (a *App) handleHealth(ctx Context) error {
	checks := a.container.HealthCheck(ctx)
	healthy := true
	detail := make(StringMap, len(checks))
	for name, err := range checks {
		if err != nil {
			healthy = false
			detail[name] = err.Error()
		} else {
			detail[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	return ctx.JSON(status, Map{
		"status": state,
		"checks": detail,
	})
}

func (a *App) handleInfo(ctx Context) error {
	modules := make([]string, 0, a.graph.Len())
	for _, node := range a.graph.Preorder() {
		modules = append(modules, node.Name())
	}
	return ctx.JSON(http.StatusOK, Map{
		"name":        a.options.Name,
		"version":     a.options.Version,
		"environment": a.options.Environment,
		"go_version":  runtime.Version(),
		"started_at":  a.StartTime().Format(time.RFC3339),
		"uptime":      a.Uptime().String(),
		"modules":     modules,
		"routes":      a.router.Routes(),
	})
}

// Stop tears the application down: before-stop hooks, OnStop of every
// started instance in reverse construction order, config watcher and
// router shutdown, after-stop hooks. Stopping an application that never
// started is a no-op.
func (a *App) Stop(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if !a.IsStarted() {
		return nil
	}

	a.runHooksLogged(ctx, PhaseBeforeStop)

	stopErr := a.container.StopInstances(ctx)
	if stopErr != nil {
		a.log.Error("instance shutdown reported errors", logger.Error(stopErr))
	}
	if err := a.config.Stop(); err != nil {
		a.log.Warn("config watcher shutdown failed", logger.Error(err))
	}
	if err := a.router.Close(); err != nil {
		a.log.Warn("router shutdown failed", logger.Error(err))
	}

	a.mu.Lock()
	a.started = false
	a.mu.Unlock()

	a.runHooksLogged(ctx, PhaseAfterStop)
	a.log.Info("application stopped", logger.String("name", a.options.Name))
	return stopErr
}

// Run starts the application, serves HTTP on the configured address and
// blocks until SIGINT/SIGTERM or a server failure, then shuts down
// gracefully within the shutdown timeout.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         a.options.Address,
		Handler:      a.router,
		ReadTimeout:  a.options.HTTPTimeout,
		WriteTimeout: a.options.HTTPTimeout,
		IdleTimeout:  2 * a.options.HTTPTimeout,
	}
	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	if a.options.Banner {
		printBanner(os.Stdout, a.bannerInfo())
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	a.log.Info("http server listening", logger.String("address", a.options.Address))

	select {
	case err := <-errChan:
		a.log.Error("http server failed", logger.Error(err))
		return errors.Join(err, a.shutdown())
	case sig := <-quit:
		a.log.Info("shutdown signal received", logger.String("signal", sig.String()))
	}
	return a.shutdown()
}

// shutdown drains the HTTP server, then stops the application, both within
// the shutdown timeout.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.options.ShutdownTimeout)
	defer cancel()

	a.mu.Lock()
	server := a.server
	a.server = nil
	a.mu.Unlock()

	var drainErr error
	if server != nil {
		drainErr = server.Shutdown(ctx)
	}
	return errors.Join(drainErr, a.Stop(ctx))
}

func (a *App) bannerInfo() bannerInfo {
	providers := 0
	for _, node := range a.graph.Ordered() {
		providers += len(node.Module().Providers)
	}
	return bannerInfo{
		Name:        a.options.Name,
		Version:     a.options.Version,
		Environment: a.options.Environment,
		Address:     a.options.Address,
		Modules:     a.graph.Len(),
		Providers:   providers,
		Routes:      len(a.router.Routes()),
		Patterns:    len(a.bridge.Patterns()),
		Builtins:    a.options.BuiltinEndpoints,
	}
}

// runHooks executes hooks for a phase; when abort is set the first error
// stops the lifecycle transition.
func (a *App) runHooks(ctx context.Context, phase Phase, abort bool) error {
	for _, hook := range a.hooksFor(phase) {
		if err := hook(ctx, a); err != nil {
			if abort {
				return errors.ErrLifecycleError(string(phase), err)
			}
			a.log.Warn("lifecycle hook failed",
				logger.String("phase", string(phase)),
				logger.Error(err))
		}
	}
	return nil
}

func (a *App) runHooksLogged(ctx context.Context, phase Phase) {
	_ = a.runHooks(ctx, phase, false)
}

func (a *App) hooksFor(phase Phase) []Hook {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Hook(nil), a.hooks[phase]...)
}

// ServeHTTP serves a request through the bound router, letting an App be
// used directly as an http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// Instance resolves a token as seen from the named module. Tests and
// adapters use this read-through accessor; application code should receive
// dependencies through injection instead.
func (a *App) Instance(ctx context.Context, module string, token Token) (any, error) {
	return a.container.Resolve(ctx, module, token)
}

// Resolver returns a resolver bound to one module's visibility.
func (a *App) Resolver(module string) Resolver {
	return a.container.Scope(module)
}

// Router returns the application root router for ad-hoc routes outside any
// module.
func (a *App) Router() Router { return a.router }

// Routes lists every bound route.
func (a *App) Routes() []RouteInfo { return a.router.Routes() }

// Patterns lists every bound message pattern.
func (a *App) Patterns() []BoundPattern { return a.bridge.Patterns() }

// Bridge exposes the dispatch bridge for messaging transports.
func (a *App) Bridge() *Bridge { return a.bridge }

// Health runs every HealthReporter instance and returns a map keyed by
// "module/token".
func (a *App) Health(ctx context.Context) map[string]error {
	return a.container.HealthCheck(ctx)
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.log }

// Config returns the application configuration manager.
func (a *App) Config() *ConfigManager { return a.config }

// Metrics returns the application metrics backend.
func (a *App) Metrics() Metrics { return a.metrics }

// Name returns the application name.
func (a *App) Name() string { return a.options.Name }

// Version returns the application version.
func (a *App) Version() string { return a.options.Version }

// Environment returns the deployment environment label.
func (a *App) Environment() string { return a.options.Environment }

// IsStarted reports whether Start has completed and Stop has not.
func (a *App) IsStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// StartTime returns when Start completed, zero before that.
func (a *App) StartTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startTime
}

// Uptime returns the time since Start completed, zero before that.
func (a *App) Uptime() time.Duration {
	start := a.StartTime()
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
