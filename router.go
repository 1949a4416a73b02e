package loom

import (
	"github.com/xraph/loom/internal/router"
	"github.com/xraph/loom/internal/shared"
)

// Router registers routes. Controllers receive one scoped to their module
// and prefix; App.Router returns the application root.
type Router = shared.Router

// RouterAdapter is the pluggable HTTP engine underneath the router. The
// default is bunrouter; chi and httprouter adapters live in extras.
type RouterAdapter = shared.RouterAdapter

// RouteOption configures a single route at registration time.
type RouteOption = shared.RouteOption

// RouteInfo describes one registered route.
type RouteInfo = shared.RouteInfo

// Controller is implemented by provider instances that register routes.
type Controller = shared.Controller

// ControllerWithPrefix mounts all of a controller's routes under a path
// prefix.
type ControllerWithPrefix = shared.ControllerWithPrefix

// ControllerWithMiddleware applies middleware to all of a controller's
// routes.
type ControllerWithMiddleware = shared.ControllerWithMiddleware

// PatternController is implemented by provider instances that handle
// message patterns instead of (or besides) HTTP routes.
type PatternController = shared.PatternController

// PatternHandler couples one message pattern with its handler.
type PatternHandler = shared.PatternHandler

// MessageHandler handles one decoded message payload.
type MessageHandler = shared.MessageHandler

// Pattern is a canonicalized message pattern.
type Pattern = shared.Pattern

// PatternOf canonicalizes a string or map into a Pattern.
var PatternOf = shared.PatternOf

// Route options, applied at registration:
//
//	r.GET("/users/:id", h, loom.WithName("users.show"), loom.WithTimeout(2*time.Second))
var (
	WithName       = shared.WithName
	WithMiddleware = shared.WithMiddleware
	WithTimeout    = shared.WithTimeout
)

// NewBunRouterAdapter returns the default bunrouter-backed adapter. New
// uses it when no WithAdapter option is given; it is exported for apps
// that build one to share or tune.
func NewBunRouterAdapter() RouterAdapter {
	return router.NewBunRouterAdapter()
}
