package shared

import (
	"context"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var patternJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Pattern is a structured message selector. String patterns match by value;
// map patterns are canonicalized to sorted-key JSON so two equal maps always
// produce the same key regardless of declaration order.
type Pattern struct {
	key string
}

// PatternOf builds a pattern from a string, a map[string]string, or a
// map[string]any. Other values fall back to their JSON encoding.
func PatternOf(v any) Pattern {
	switch p := v.(type) {
	case Pattern:
		return p
	case string:
		return Pattern{key: p}
	case map[string]string:
		m := make(map[string]any, len(p))
		for k, val := range p {
			m[k] = val
		}
		return Pattern{key: canonicalMapKey(m)}
	case map[string]any:
		return Pattern{key: canonicalMapKey(p)}
	default:
		data, err := patternJSON.Marshal(v)
		if err != nil {
			return Pattern{key: fmt.Sprintf("%v", v)}
		}
		return Pattern{key: string(data)}
	}
}

// Key returns the canonical encoding used for routing-table lookups.
func (p Pattern) Key() string { return p.key }

// String implements fmt.Stringer.
func (p Pattern) String() string { return p.key }

func canonicalMapKey(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := patternJSON.Marshal(k)
		b.Write(kb)
		b.WriteByte(':')
		vb, err := patternJSON.Marshal(m[k])
		if err != nil {
			vb, _ = patternJSON.Marshal(fmt.Sprintf("%v", m[k]))
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// MessageHandler processes one message payload and returns the reply body.
// Transports that do not support replies discard the returned bytes.
type MessageHandler func(ctx context.Context, payload []byte) ([]byte, error)

// PatternHandler binds a pattern to its handler.
type PatternHandler struct {
	Pattern Pattern
	Handle  MessageHandler
}

// PatternController is implemented by controllers that subscribe to message
// patterns instead of (or in addition to) HTTP routes.
type PatternController interface {
	Patterns() []PatternHandler
}
