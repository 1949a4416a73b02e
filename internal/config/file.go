package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/logger"
)

// FileSource loads configuration from a YAML or JSON file, with optional
// environment variable expansion and fsnotify-backed hot reload.
type FileSource struct {
	name        string
	path        string
	format      string
	priority    int
	options     FileSourceOptions
	watcher     *fsnotify.Watcher
	lastModTime time.Time
	watching    bool
	mu          sync.Mutex
	log         logger.Logger
}

// FileSourceOptions tunes a file source.
type FileSourceOptions struct {
	Name          string
	Format        string // "yaml" or "json", detected from extension when empty
	Priority      int
	RequireFile   bool // missing file is an error instead of an empty layer
	ExpandEnvVars bool // expand ${VAR} in string values
	Logger        logger.Logger
}

// NewFileSource creates a file source. The format is detected from the
// extension unless set explicitly.
func NewFileSource(path string, options FileSourceOptions) (*FileSource, error) {
	if path == "" {
		return nil, errors.ErrConfigError("file path cannot be empty", nil)
	}
	if abs, err := filepath.Abs(os.ExpandEnv(path)); err == nil {
		path = abs
	}

	format := options.Format
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			format = "json"
		default:
			format = "yaml"
		}
	}
	if format != "yaml" && format != "json" {
		return nil, errors.ErrConfigError("unsupported format: "+format, nil)
	}

	name := options.Name
	if name == "" {
		name = "file:" + filepath.Base(path)
	}
	log := options.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}

	source := &FileSource{
		name:     name,
		path:     path,
		format:   format,
		priority: options.Priority,
		options:  options,
		log:      log,
	}
	if stat, err := os.Stat(path); err == nil {
		source.lastModTime = stat.ModTime()
	}
	return source, nil
}

func (fs *FileSource) Name() string  { return fs.name }
func (fs *FileSource) Priority() int { return fs.priority }

// Path returns the resolved file path.
func (fs *FileSource) Path() string { return fs.path }

// Load parses the file. A missing file yields an empty layer unless
// RequireFile is set.
func (fs *FileSource) Load(ctx context.Context) (map[string]any, error) {
	stat, err := os.Stat(fs.path)
	if err != nil {
		if os.IsNotExist(err) && !fs.options.RequireFile {
			return make(map[string]any), nil
		}
		return nil, errors.ErrConfigError("failed to stat "+fs.path, err)
	}

	fs.mu.Lock()
	fs.lastModTime = stat.ModTime()
	fs.mu.Unlock()

	content, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, errors.ErrConfigError("failed to read "+fs.path, err)
	}

	data := make(map[string]any)
	switch fs.format {
	case "json":
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(content, &data); err != nil {
			return nil, errors.ErrConfigError("failed to parse "+fs.path, err)
		}
		data = normalizeKeys(data)
	default:
		if err := yaml.Unmarshal(content, &data); err != nil {
			return nil, errors.ErrConfigError("failed to parse "+fs.path, err)
		}
		data = normalizeKeys(data)
	}

	if fs.options.ExpandEnvVars {
		data = expandEnv(data)
	}

	fs.log.Debug("configuration file loaded",
		logger.String("path", fs.path),
		logger.Int("keys", len(data)))
	return data, nil
}

// Watch observes the file's directory so recreations (the common editor
// save pattern) are caught, reloading on write or create events.
func (fs *FileSource) Watch(ctx context.Context, onChange func(map[string]any)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.watching {
		return errors.ErrConfigError("already watching "+fs.path, nil)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.ErrConfigError("failed to create file watcher", err)
	}
	dir := filepath.Dir(fs.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return errors.ErrConfigError("failed to watch "+dir, err)
	}

	fs.watcher = watcher
	fs.watching = true
	go fs.watchLoop(ctx, watcher, onChange)

	fs.log.Debug("watching configuration file", logger.String("path", fs.path))
	return nil
}

// StopWatch closes the watcher.
func (fs *FileSource) StopWatch() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.watching {
		return nil
	}
	fs.watching = false
	if fs.watcher != nil {
		err := fs.watcher.Close()
		fs.watcher = nil
		return err
	}
	return nil
}

func (fs *FileSource) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(map[string]any)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fs.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Duplicate events for one save are common; modtime filters them.
			if stat, err := os.Stat(fs.path); err == nil {
				fs.mu.Lock()
				stale := !stat.ModTime().After(fs.lastModTime)
				fs.mu.Unlock()
				if stale {
					continue
				}
			}
			data, err := fs.Load(ctx)
			if err != nil {
				fs.log.Error("reloading configuration file failed",
					logger.String("path", fs.path),
					logger.Error(err))
				continue
			}
			onChange(data)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fs.log.Error("configuration file watch error",
				logger.String("path", fs.path),
				logger.Error(err))
		}
	}
}

// normalizeKeys converts the map[any]any values a YAML decode can produce
// into map[string]any, recursively, so path lookups work uniformly.
func normalizeKeys(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return normalizeKeys(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[toString(key)] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return value
	}
}

// expandEnv expands ${VAR} references in every string value.
func expandEnv(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		out[key] = expandEnvValue(value)
	}
	return out
}

func expandEnvValue(value any) any {
	switch v := value.(type) {
	case string:
		return os.ExpandEnv(v)
	case map[string]any:
		return expandEnv(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = expandEnvValue(item)
		}
		return out
	default:
		return value
	}
}
