package loom

import (
	"net/http"
	"time"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/config"
	"github.com/xraph/loom/internal/metrics"
	"github.com/xraph/loom/logger"
)

// Options holds application settings accumulated from Option functions.
// Zero fields fall back to defaults in New.
type Options struct {
	// Name identifies the application in logs, the banner and /_/info.
	// Defaults to the root module's name.
	Name        string
	Version     string
	Environment string

	// Address is the listen address used by Run.
	Address string

	// HTTPTimeout bounds request reads and response writes on the server
	// started by Run.
	HTTPTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown: draining the HTTP server
	// plus stopping instances.
	ShutdownTimeout time.Duration

	Logger  logger.Logger
	Metrics metrics.Metrics
	Config  *config.Manager
	Adapter RouterAdapter

	// HTTPMiddleware wraps every handler at the adapter level, before
	// routing. Typed middleware belongs in module Configure functions or
	// on routers.
	HTTPMiddleware []func(http.Handler) http.Handler

	// ConfigFile and EnvPrefix add configuration sources to the default
	// manager. Ignored when Config is set explicitly.
	ConfigFile         string
	ConfigFileRequired bool
	EnvPrefix          string
	WatchConfig        bool

	// Banner and BuiltinEndpoints default to enabled.
	Banner           bool
	BuiltinEndpoints bool
}

// Option adjusts application Options at construction time.
type Option func(*Options) error

func defaultOptions(rootName string) Options {
	return Options{
		Name:             rootName,
		Version:          "0.1.0",
		Environment:      "development",
		Address:          ":8080",
		HTTPTimeout:      30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		Banner:           true,
		BuiltinEndpoints: true,
	}
}

// WithAppName overrides the application name, which otherwise comes from
// the root module.
func WithAppName(name string) Option {
	return func(o *Options) error {
		if name == "" {
			return errors.ErrValidationError("name", errors.New("application name is empty"))
		}
		o.Name = name
		return nil
	}
}

// WithVersion sets the application version reported by /_/info and the
// banner.
func WithVersion(version string) Option {
	return func(o *Options) error {
		o.Version = version
		return nil
	}
}

// WithEnvironment labels the deployment environment ("development",
// "staging", "production").
func WithEnvironment(env string) Option {
	return func(o *Options) error {
		o.Environment = env
		return nil
	}
}

// WithAddress sets the HTTP listen address used by Run.
func WithAddress(addr string) Option {
	return func(o *Options) error {
		if addr == "" {
			return errors.ErrValidationError("address", errors.New("listen address is empty"))
		}
		o.Address = addr
		return nil
	}
}

// WithHTTPTimeout bounds request reads and response writes.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.HTTPTimeout = d
		return nil
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) error {
		o.ShutdownTimeout = d
		return nil
	}
}

// WithLogger installs the application logger. Without it New builds a
// development logger.
func WithLogger(log logger.Logger) Option {
	return func(o *Options) error {
		if log == nil {
			return errors.ErrValidationError("logger", errors.New("logger is nil"))
		}
		o.Logger = log
		return nil
	}
}

// WithMetrics installs a metrics backend. Without it New builds a
// Prometheus-backed one on a private registry.
func WithMetrics(m Metrics) Option {
	return func(o *Options) error {
		if m == nil {
			return errors.ErrValidationError("metrics", errors.New("metrics is nil"))
		}
		o.Metrics = m
		return nil
	}
}

// WithConfig installs a pre-built configuration manager. File and env
// options are ignored when this is set.
func WithConfig(manager *ConfigManager) Option {
	return func(o *Options) error {
		if manager == nil {
			return errors.ErrValidationError("config", errors.New("config manager is nil"))
		}
		o.Config = manager
		return nil
	}
}

// WithFileConfig layers a YAML or JSON file into the configuration. A
// missing file is an empty layer; pass required to make it an error.
func WithFileConfig(path string, required ...bool) Option {
	return func(o *Options) error {
		if path == "" {
			return errors.ErrValidationError("config file", errors.New("path is empty"))
		}
		o.ConfigFile = path
		o.ConfigFileRequired = len(required) > 0 && required[0]
		return nil
	}
}

// WithEnvConfig layers prefixed environment variables over file
// configuration.
func WithEnvConfig(prefix string) Option {
	return func(o *Options) error {
		o.EnvPrefix = prefix
		return nil
	}
}

// WithConfigWatch hot-reloads file configuration while the application
// runs.
func WithConfigWatch() Option {
	return func(o *Options) error {
		o.WatchConfig = true
		return nil
	}
}

// WithAdapter swaps the HTTP engine underneath the router.
func WithAdapter(adapter RouterAdapter) Option {
	return func(o *Options) error {
		if adapter == nil {
			return errors.ErrValidationError("adapter", errors.New("adapter is nil"))
		}
		o.Adapter = adapter
		return nil
	}
}

// WithHTTPMiddleware wraps every handler at the adapter level, before
// routing. Use it for concerns that must see the raw request.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(o *Options) error {
		o.HTTPMiddleware = append(o.HTTPMiddleware, mw...)
		return nil
	}
}

// WithoutBanner suppresses the startup banner.
func WithoutBanner() Option {
	return func(o *Options) error {
		o.Banner = false
		return nil
	}
}

// WithoutBuiltinEndpoints skips registering /_/health, /_/info and
// /_/metrics.
func WithoutBuiltinEndpoints() Option {
	return func(o *Options) error {
		o.BuiltinEndpoints = false
		return nil
	}
}
