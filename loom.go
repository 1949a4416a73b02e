// Package loom composes applications out of modules. A module declares the
// providers it constructs, the modules it imports, the tokens it exports and
// the controllers it mounts; loom resolves the module graph, builds a
// lazy singleton container with per-module visibility, assembles the
// middleware pipeline and binds controllers to an HTTP router and a message
// pattern table.
//
// The smallest useful program:
//
//	app, err := loom.New(&loom.Module{
//		Name:        "app",
//		Providers:   []loom.Provider{loom.Value("Greeting", "hello")},
//		Controllers: []loom.Token{"HelloController"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	app.Run()
//
// Everything user code touches is re-exported here so applications import a
// single package; the subpackages errors, logger and testing stay separate
// imports because libraries use them without pulling in the runtime.
package loom

import "github.com/xraph/loom/logger"

// Map is shorthand for the loosely typed maps used in configuration layers
// and JSON payloads.
type Map = map[string]any

// StringMap is shorthand for string-to-string maps.
type StringMap = map[string]string

// Logger is the structured logging interface used across the framework;
// the logger subpackage has constructors and field helpers.
type Logger = logger.Logger
