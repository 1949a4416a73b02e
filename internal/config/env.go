package config

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/xraph/loom/logger"
)

// EnvSource loads configuration from environment variables. With prefix
// "LOOM", the variable LOOM_SERVER_PORT=8080 becomes the nested key
// "server.port" with the int value 8080.
type EnvSource struct {
	name     string
	prefix   string
	priority int
	options  EnvSourceOptions
	log      logger.Logger
}

// EnvSourceOptions tunes an environment source.
type EnvSourceOptions struct {
	Name           string
	Priority       int
	IgnoreEmpty    bool // skip variables with empty values
	TypeConversion bool // parse bool/int/float values instead of keeping strings
	Logger         logger.Logger
}

// NewEnvSource creates an environment source for variables starting with
// prefix. An empty prefix matches every variable.
func NewEnvSource(prefix string, options EnvSourceOptions) *EnvSource {
	name := options.Name
	if name == "" {
		if prefix != "" {
			name = "env:" + prefix
		} else {
			name = "env"
		}
	}
	log := options.Logger
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &EnvSource{
		name:     name,
		prefix:   strings.ToUpper(strings.TrimSuffix(prefix, "_")),
		priority: options.Priority,
		options:  options,
		log:      log,
	}
}

func (es *EnvSource) Name() string  { return es.name }
func (es *EnvSource) Priority() int { return es.priority }

// Load maps matching environment variables into a nested layer.
func (es *EnvSource) Load(ctx context.Context) (map[string]any, error) {
	data := make(map[string]any)
	matched := 0
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		key, ok := es.keyFor(name)
		if !ok {
			continue
		}
		if value == "" && es.options.IgnoreEmpty {
			continue
		}
		setPath(data, key, es.convert(value))
		matched++
	}

	es.log.Debug("environment configuration loaded",
		logger.String("prefix", es.prefix),
		logger.Int("variables", matched))
	return data, nil
}

// keyFor strips the prefix and maps SERVER_PORT to server.port.
func (es *EnvSource) keyFor(name string) (string, bool) {
	if es.prefix != "" {
		if !strings.HasPrefix(name, es.prefix+"_") {
			return "", false
		}
		name = strings.TrimPrefix(name, es.prefix+"_")
	}
	if name == "" {
		return "", false
	}
	return strings.ToLower(strings.ReplaceAll(name, "_", ".")), true
}

func (es *EnvSource) convert(value string) any {
	if !es.options.TypeConversion {
		return value
	}
	if b, err := strconv.ParseBool(value); err == nil && isBoolLiteral(value) {
		return b
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// isBoolLiteral keeps "1"/"0" numeric: ParseBool accepts them, but ports
// and counts set through the environment must stay ints.
func isBoolLiteral(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "t", "f":
		return true
	}
	return false
}
