package loom

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBannerListsAppFacts(t *testing.T) {
	var buf bytes.Buffer
	printBanner(&buf, bannerInfo{
		Name:        "orders",
		Version:     "1.2.0",
		Environment: "production",
		Address:     ":9090",
		Modules:     3,
		Providers:   7,
		Routes:      12,
		Patterns:    2,
		Builtins:    true,
	})

	out := buf.String()
	assert.Contains(t, out, "orders v1.2.0")
	assert.Contains(t, out, "(production)")
	assert.Contains(t, out, "modules 3, providers 7, routes 12, patterns 2")
	assert.Contains(t, out, "listening on :9090")
	assert.Contains(t, out, "/_/health")
	assert.NotContains(t, out, "\x1b[", "piped output must stay free of ANSI escapes")
}

func TestBannerSkipsBuiltinPathsWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	printBanner(&buf, bannerInfo{Name: "orders", Version: "0.1.0", Address: ":8080"})

	assert.NotContains(t, buf.String(), "/_/health")
}
