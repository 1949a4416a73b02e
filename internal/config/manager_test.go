package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/loom/logger"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadedManager(t *testing.T, sources ...Source) *Manager {
	t.Helper()
	m := NewManager(logger.NewNoopLogger())
	for _, src := range sources {
		m.AddSource(src)
	}
	require.NoError(t, m.Load(context.Background()))
	return m
}

func TestFileSourceLoadsYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", `
server:
  host: localhost
  port: 8080
  debug: true
  timeout: 5s
tags:
  - alpha
  - beta
`)
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)

	m := loadedManager(t, src)
	assert.Equal(t, "localhost", m.GetString("server.host"))
	assert.Equal(t, 8080, m.GetInt("server.port"))
	assert.True(t, m.GetBool("server.debug"))
	assert.Equal(t, 5*time.Second, m.GetDuration("server.timeout"))
	assert.Equal(t, []string{"alpha", "beta"}, m.GetStringSlice("tags"))
}

func TestFileSourceLoadsJSON(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.json",
		`{"cache":{"enabled":true,"size":512}}`)
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)

	m := loadedManager(t, src)
	assert.True(t, m.GetBool("cache.enabled"))
	assert.Equal(t, 512, m.GetInt("cache.size"))
}

func TestFileSourceExpandsEnvVars(t *testing.T) {
	t.Setenv("LOOM_TEST_DB_HOST", "db.internal")
	path := writeConfigFile(t, t.TempDir(), "app.yaml",
		"database:\n  host: ${LOOM_TEST_DB_HOST}\n")
	src, err := NewFileSource(path, FileSourceOptions{ExpandEnvVars: true})
	require.NoError(t, err)

	m := loadedManager(t, src)
	assert.Equal(t, "db.internal", m.GetString("database.host"))
}

func TestFileSourceMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	optional, err := NewFileSource(missing, FileSourceOptions{})
	require.NoError(t, err)
	data, err := optional.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, data)

	required, err := NewFileSource(missing, FileSourceOptions{RequireFile: true})
	require.NoError(t, err)
	_, err = required.Load(context.Background())
	require.Error(t, err)
}

func TestEnvSourceMapsVariables(t *testing.T) {
	t.Setenv("LOOMCFG_SERVER_PORT", "9090")
	t.Setenv("LOOMCFG_SERVER_DEBUG", "true")
	t.Setenv("LOOMCFG_APP_NAME", "orders")
	t.Setenv("OTHER_VALUE", "ignored")

	src := NewEnvSource("LOOMCFG", EnvSourceOptions{TypeConversion: true})
	m := loadedManager(t, src)

	assert.Equal(t, 9090, m.GetInt("server.port"))
	assert.True(t, m.GetBool("server.debug"))
	assert.Equal(t, "orders", m.GetString("app.name"))
	assert.False(t, m.HasKey("other.value"))
}

func TestEnvSourceKeepsNumericStringsAsInts(t *testing.T) {
	t.Setenv("LOOMNUM_WORKERS", "1")
	src := NewEnvSource("LOOMNUM", EnvSourceOptions{TypeConversion: true})
	m := loadedManager(t, src)
	assert.Equal(t, 1, m.GetInt("workers"))
}

func TestHigherPrioritySourceWins(t *testing.T) {
	dir := t.TempDir()
	base := writeConfigFile(t, dir, "base.yaml", "server:\n  port: 8080\n  host: localhost\n")
	override := writeConfigFile(t, dir, "override.yaml", "server:\n  port: 9999\n")

	baseSrc, err := NewFileSource(base, FileSourceOptions{Priority: 0})
	require.NoError(t, err)
	overrideSrc, err := NewFileSource(override, FileSourceOptions{Priority: 10})
	require.NoError(t, err)

	m := loadedManager(t, baseSrc, overrideSrc)
	assert.Equal(t, 9999, m.GetInt("server.port"))
	assert.Equal(t, "localhost", m.GetString("server.host"))
}

func TestSetOverridesEverySource(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", "server:\n  port: 8080\n")
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)

	m := loadedManager(t, src)
	m.Set("server.port", 7070)
	assert.Equal(t, 7070, m.GetInt("server.port"))

	// Overrides survive source reloads.
	m.applySourceUpdate(src.Name(), map[string]any{"server": map[string]any{"port": 8081}})
	assert.Equal(t, 7070, m.GetInt("server.port"))
}

func TestTypedGetterDefaults(t *testing.T) {
	m := loadedManager(t)
	assert.Equal(t, "fallback", m.GetString("missing", "fallback"))
	assert.Equal(t, 42, m.GetInt("missing", 42))
	assert.Equal(t, int64(43), m.GetInt64("missing", 43))
	assert.Equal(t, 1.5, m.GetFloat64("missing", 1.5))
	assert.True(t, m.GetBool("missing", true))
	assert.Equal(t, time.Minute, m.GetDuration("missing", time.Minute))
	assert.Equal(t, []string{"x"}, m.GetStringSlice("missing", []string{"x"}))
}

func TestBindDecodesSubtree(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", `
server:
  host: 0.0.0.0
  port: 8088
  tags:
    - internal
    - beta
`)
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)
	m := loadedManager(t, src)

	type serverConfig struct {
		Host string   `yaml:"host"`
		Port int      `yaml:"port"`
		Tags []string `yaml:"tags"`
	}
	var cfg serverConfig
	require.NoError(t, m.Bind("server", &cfg))
	assert.Equal(t, serverConfig{Host: "0.0.0.0", Port: 8088, Tags: []string{"internal", "beta"}}, cfg)

	require.Error(t, m.Bind("absent", &cfg))
}

func TestKeysAndSection(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", "a:\n  b: 1\n  c: 2\nd: 3\n")
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)
	m := loadedManager(t, src)

	assert.Equal(t, []string{"a.b", "a.c", "d"}, m.Keys())
	section := m.Section("a")
	assert.Len(t, section, 2)
	assert.True(t, m.HasKey("a.b"))
	assert.False(t, m.HasKey("a.x"))
}

func TestSourceUpdateFiresCallbacks(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", "server:\n  port: 8080\n")
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)
	m := loadedManager(t, src)

	var mu sync.Mutex
	var keyHits []string
	var changes []Change
	m.WatchKey("server.port", func(key string, value any) {
		mu.Lock()
		keyHits = append(keyHits, key)
		mu.Unlock()
	})
	m.WatchKey("server", func(key string, value any) {
		mu.Lock()
		keyHits = append(keyHits, "parent:"+key)
		mu.Unlock()
	})
	m.OnChange(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	m.applySourceUpdate(src.Name(), map[string]any{"server": map[string]any{"port": 9090}})

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"server.port", "parent:server.port"}, keyHits)
	require.Len(t, changes, 1)
	assert.Equal(t, "server.port", changes[0].Key)
	assert.Equal(t, 9090, changes[0].New)
	assert.Equal(t, 9090, m.GetInt("server.port"))
}

func TestUnchangedKeysDoNotFire(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", "server:\n  port: 8080\n")
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)
	m := loadedManager(t, src)

	fired := 0
	m.OnChange(func(Change) { fired++ })
	m.applySourceUpdate(src.Name(), map[string]any{"server": map[string]any{"port": 8080}})
	assert.Zero(t, fired)
}

func TestFileWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "app.yaml", "server:\n  port: 8080\n")
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)

	m := loadedManager(t, src)
	require.Equal(t, 8080, m.GetInt("server.port"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))
	defer func() { require.NoError(t, m.Stop()) }()

	// Replace atomically, the way editors save, so the reload never sees a
	// half-written file.
	time.Sleep(20 * time.Millisecond)
	next := writeConfigFile(t, dir, "app.yaml.next", "server:\n  port: 9191\n")
	require.NoError(t, os.Rename(next, path))

	require.Eventually(t, func() bool {
		return m.GetInt("server.port") == 9191
	}, 3*time.Second, 25*time.Millisecond)
}

func TestStopAllowsRestart(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "app.yaml", "a: 1\n")
	src, err := NewFileSource(path, FileSourceOptions{})
	require.NoError(t, err)
	m := loadedManager(t, src)

	ctx := context.Background()
	require.NoError(t, m.Watch(ctx))
	require.Error(t, m.Watch(ctx))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	require.NoError(t, m.Watch(ctx))
	require.NoError(t, m.Stop())
}
