// Package config re-exports the layered configuration manager for code
// that works with configuration directly instead of through an App.
package config

import (
	"github.com/xraph/loom/internal/config"
	"github.com/xraph/loom/logger"
)

type (
	// Manager merges configuration layers from prioritized sources and
	// serves typed lookups and change notifications.
	Manager = config.Manager

	// Source supplies one configuration layer.
	Source = config.Source

	// WatchableSource is a Source that can push reloads.
	WatchableSource = config.WatchableSource

	// Change describes one key change observed during a reload.
	Change = config.Change

	// FileSource loads YAML or JSON files, optionally hot-reloaded via
	// fsnotify.
	FileSource = config.FileSource

	// FileSourceOptions tunes a FileSource.
	FileSourceOptions = config.FileSourceOptions

	// EnvSource maps prefixed environment variables to nested keys.
	EnvSource = config.EnvSource

	// EnvSourceOptions tunes an EnvSource.
	EnvSourceOptions = config.EnvSourceOptions
)

// NewManager creates an empty manager. Add sources, then Load.
func NewManager(log logger.Logger) *Manager {
	return config.NewManager(log)
}

// NewFileSource creates a file-backed source. The format is detected from
// the extension unless options say otherwise.
func NewFileSource(path string, options FileSourceOptions) (*FileSource, error) {
	return config.NewFileSource(path, options)
}

// NewEnvSource creates an environment-variable source for variables
// starting with prefix.
func NewEnvSource(prefix string, options EnvSourceOptions) *EnvSource {
	return config.NewEnvSource(prefix, options)
}
