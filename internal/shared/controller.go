package shared

// Controller exposes a route table. Providers listed in a module's
// Controllers field must resolve to an implementation; routes register
// against a router scoped to the controller's module during application
// start.
type Controller interface {
	// Name identifies the controller in route listings and logs.
	Name() string

	// Routes registers the controller's routes. The router already
	// carries the controller's prefix and module scope.
	Routes(r Router) error
}

// ControllerWithPrefix adds a path prefix to every route the controller
// registers.
type ControllerWithPrefix interface {
	Prefix() string
}

// ControllerWithMiddleware contributes middleware applied to every route
// the controller registers, inside module-level bindings.
type ControllerWithMiddleware interface {
	Middleware() []Middleware
}
