package config

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/logger"
)

// Source supplies one layer of configuration data. Sources are merged in
// priority order: a higher priority source overrides a lower one.
type Source interface {
	Name() string
	Priority() int
	Load(ctx context.Context) (map[string]any, error)
}

// WatchableSource is a Source that can push updated data when its backing
// store changes.
type WatchableSource interface {
	Source
	Watch(ctx context.Context, onChange func(map[string]any)) error
	StopWatch() error
}

// Change describes a configuration change observed during watching.
type Change struct {
	Source string
	Key    string
	Old    any
	New    any
}

// Manager merges configuration sources and exposes typed access by
// dot-separated key paths ("server.port"). Values set programmatically
// through Set override every source.
type Manager struct {
	mu              sync.RWMutex
	sources         []Source
	sourceData      map[string]map[string]any
	data            map[string]any
	overrides       map[string]any
	keyCallbacks    map[string][]func(string, any)
	changeCallbacks []func(Change)
	watching        bool
	watchCancel     context.CancelFunc
	log             logger.Logger
}

// NewManager creates an empty manager. Call AddSource and Load to
// populate it.
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Manager{
		sources:      make([]Source, 0),
		sourceData:   make(map[string]map[string]any),
		data:         make(map[string]any),
		overrides:    make(map[string]any),
		keyCallbacks: make(map[string][]func(string, any)),
		log:          log,
	}
}

// AddSource registers a source. Sources are kept sorted by priority so
// reloads merge deterministically.
func (m *Manager) AddSource(src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, src)
	sort.SliceStable(m.sources, func(i, j int) bool {
		return m.sources[i].Priority() < m.sources[j].Priority()
	})
}

// Load reads every source and rebuilds the merged view. The first source
// failure aborts the load.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, src := range m.sources {
		data, err := src.Load(ctx)
		if err != nil {
			return errors.ErrConfigError("loading source "+src.Name()+" failed", err)
		}
		m.sourceData[src.Name()] = data
	}
	m.rebuild()

	m.log.Debug("configuration loaded",
		logger.Int("sources", len(m.sources)),
		logger.Int("keys", len(m.data)))
	return nil
}

// Watch starts every watchable source. Updated data is merged in and
// change callbacks fire for affected keys. Stop cancels watching.
func (m *Manager) Watch(ctx context.Context) error {
	m.mu.Lock()
	if m.watching {
		m.mu.Unlock()
		return errors.ErrConfigError("already watching", nil)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.watching = true
	m.watchCancel = cancel
	sources := make([]Source, len(m.sources))
	copy(sources, m.sources)
	m.mu.Unlock()

	for _, src := range sources {
		watchable, ok := src.(WatchableSource)
		if !ok {
			continue
		}
		name := src.Name()
		if err := watchable.Watch(watchCtx, func(data map[string]any) {
			m.applySourceUpdate(name, data)
		}); err != nil {
			cancel()
			return errors.ErrConfigError("watching source "+name+" failed", err)
		}
	}
	return nil
}

// Stop cancels watching and stops every watchable source.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = false
	cancel := m.watchCancel
	m.watchCancel = nil
	sources := make([]Source, len(m.sources))
	copy(sources, m.sources)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var errs []error
	for _, src := range sources {
		if watchable, ok := src.(WatchableSource); ok {
			if err := watchable.StopWatch(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// applySourceUpdate swaps in fresh data for one source and notifies
// callbacks for every key whose merged value changed.
func (m *Manager) applySourceUpdate(source string, data map[string]any) {
	m.mu.Lock()
	before := flatten("", m.data)
	m.sourceData[source] = data
	m.rebuild()
	after := flatten("", m.data)
	changes := diffKeys(before, after)
	keyCallbacks := make([]func(), 0, len(changes))
	changeCallbacks := make([]func(), 0, len(changes))
	for _, key := range changes {
		old, next := before[key], after[key]
		for _, cb := range m.callbacksFor(key) {
			keyCallbacks = append(keyCallbacks, func() { cb(key, next) })
		}
		for _, cb := range m.changeCallbacks {
			change := Change{Source: source, Key: key, Old: old, New: next}
			changeCallbacks = append(changeCallbacks, func() { cb(change) })
		}
	}
	m.mu.Unlock()

	for _, fire := range keyCallbacks {
		fire()
	}
	for _, fire := range changeCallbacks {
		fire()
	}
	m.log.Debug("configuration updated",
		logger.String("source", source),
		logger.Int("changed_keys", len(changes)))
}

// callbacksFor collects key callbacks matching a changed key, including
// callbacks registered on any of its ancestors ("server" fires for
// "server.port"). Callers must hold the lock.
func (m *Manager) callbacksFor(key string) []func(string, any) {
	var out []func(string, any)
	out = append(out, m.keyCallbacks[key]...)
	for i := len(key) - 1; i > 0; i-- {
		if key[i] == '.' {
			out = append(out, m.keyCallbacks[key[:i]]...)
		}
	}
	return out
}

// rebuild re-merges source data and overrides. Callers must hold the lock.
func (m *Manager) rebuild() {
	merged := make(map[string]any)
	for _, src := range m.sources {
		if data, ok := m.sourceData[src.Name()]; ok {
			mergeMaps(merged, data)
		}
	}
	for key, value := range m.overrides {
		setPath(merged, key, value)
	}
	m.data = merged
}

// Set stores a value that overrides every source, now and across reloads.
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = value
	setPath(m.data, key, value)
}

// Get returns the raw value at a dot path, or nil.
func (m *Manager) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getPath(m.data, key)
}

// HasKey reports whether the key resolves to a value.
func (m *Manager) HasKey(key string) bool {
	return m.Get(key) != nil
}

// Keys lists every leaf key in the merged view, dot-separated and sorted.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	flat := flatten("", m.data)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Section returns the map under a key, or an empty map.
func (m *Manager) Section(key string) map[string]any {
	if section, ok := m.Get(key).(map[string]any); ok {
		out := make(map[string]any, len(section))
		for k, v := range section {
			out[k] = v
		}
		return out
	}
	return map[string]any{}
}

// GetString returns the value as a string.
func (m *Manager) GetString(key string, defaultValue ...string) string {
	if v := m.Get(key); v != nil {
		return toString(v)
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetInt returns the value as an int.
func (m *Manager) GetInt(key string, defaultValue ...int) int {
	if v := m.Get(key); v != nil {
		if n, ok := toInt64(v); ok {
			return int(n)
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetInt64 returns the value as an int64.
func (m *Manager) GetInt64(key string, defaultValue ...int64) int64 {
	if v := m.Get(key); v != nil {
		if n, ok := toInt64(v); ok {
			return n
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetFloat64 returns the value as a float64.
func (m *Manager) GetFloat64(key string, defaultValue ...float64) float64 {
	if v := m.Get(key); v != nil {
		if f, ok := toFloat64(v); ok {
			return f
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetBool returns the value as a bool.
func (m *Manager) GetBool(key string, defaultValue ...bool) bool {
	if v := m.Get(key); v != nil {
		if b, ok := toBool(v); ok {
			return b
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return false
}

// GetDuration returns the value as a duration. Strings parse with
// time.ParseDuration, numbers count nanoseconds.
func (m *Manager) GetDuration(key string, defaultValue ...time.Duration) time.Duration {
	if v := m.Get(key); v != nil {
		switch d := v.(type) {
		case time.Duration:
			return d
		case string:
			if parsed, err := time.ParseDuration(d); err == nil {
				return parsed
			}
		default:
			if n, ok := toInt64(v); ok {
				return time.Duration(n)
			}
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetStringSlice returns the value as a string slice.
func (m *Manager) GetStringSlice(key string, defaultValue ...[]string) []string {
	if v := m.Get(key); v != nil {
		switch s := v.(type) {
		case []string:
			return s
		case []any:
			out := make([]string, 0, len(s))
			for _, item := range s {
				out = append(out, toString(item))
			}
			return out
		case string:
			parts := strings.Split(s, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if trimmed := strings.TrimSpace(p); trimmed != "" {
					out = append(out, trimmed)
				}
			}
			return out
		}
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return nil
}

// GetStringMap returns the value as a map of strings.
func (m *Manager) GetStringMap(key string, defaultValue ...map[string]string) map[string]string {
	if section, ok := m.Get(key).(map[string]any); ok {
		out := make(map[string]string, len(section))
		for k, v := range section {
			out[k] = toString(v)
		}
		return out
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return nil
}

// Bind decodes the subtree under key into target through a YAML
// round-trip, honoring the target's yaml tags. An empty key binds the
// whole configuration.
func (m *Manager) Bind(key string, target any) error {
	var value any
	if key == "" {
		m.mu.RLock()
		value = m.data
		m.mu.RUnlock()
	} else {
		value = m.Get(key)
	}
	if value == nil {
		return errors.ErrConfigError("no value for key "+key, nil)
	}

	raw, err := yaml.Marshal(value)
	if err != nil {
		return errors.ErrConfigError("encoding value for key "+key+" failed", err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return errors.ErrConfigError("binding key "+key+" failed", err)
	}
	return nil
}

// WatchKey registers a callback fired when the key, or any key below it,
// changes during watching.
func (m *Manager) WatchKey(key string, callback func(key string, value any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyCallbacks[key] = append(m.keyCallbacks[key], callback)
}

// OnChange registers a callback fired once per changed key.
func (m *Manager) OnChange(callback func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeCallbacks = append(m.changeCallbacks, callback)
}

// getPath walks a dot path through nested maps.
func getPath(data map[string]any, key string) any {
	parts := strings.Split(key, ".")
	current := any(data)
	for _, part := range parts {
		section, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = section[part]
		if !ok {
			return nil
		}
	}
	return current
}

// setPath stores a value at a dot path, creating intermediate maps.
func setPath(data map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// mergeMaps deep-merges src into dst, overwriting scalars and recursing
// into nested maps.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				mergeMaps(dstMap, srcMap)
				continue
			}
			copied := make(map[string]any, len(srcMap))
			mergeMaps(copied, srcMap)
			dst[key] = copied
			continue
		}
		dst[key] = value
	}
}

// flatten converts nested maps into dot-path leaf entries.
func flatten(prefix string, data map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range data {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}

// diffKeys lists keys whose values differ between two flattened views.
func diffKeys(before, after map[string]any) []string {
	changed := make([]string, 0)
	for key, next := range after {
		if old, ok := before[key]; !ok || !equalValue(old, next) {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func equalValue(a, b any) bool {
	return toString(a) == toString(b)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case time.Duration:
		return s.String()
	case nil:
		return ""
	default:
		raw, err := yaml.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(raw))
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if parsed, err := strconv.ParseFloat(n, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed, true
		}
	case int:
		return b != 0, true
	case int64:
		return b != 0, true
	}
	return false, false
}
