package loom

import (
	"github.com/xraph/loom/internal/config"
	"github.com/xraph/loom/logger"
)

// ConfigManager merges configuration layers from prioritized sources and
// serves typed lookups, struct binding and change notifications. App.Config
// returns the application's manager; the config subpackage exposes the full
// source API.
type ConfigManager = config.Manager

// ConfigSource supplies one configuration layer.
type ConfigSource = config.Source

// ConfigChange describes one key change observed during a reload.
type ConfigChange = config.Change

// NewConfigManager creates an empty configuration manager. Add sources,
// then Load.
func NewConfigManager(log logger.Logger) *ConfigManager {
	return config.NewManager(log)
}
