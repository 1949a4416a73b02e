package router

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/loom/errors"
	"github.com/xraph/loom/internal/shared"
	"github.com/xraph/loom/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestContext is the concrete request context handed to handlers. It
// embeds the request's context.Context, so deadlines, cancellation, and
// values injected by adapters flow through unchanged.
type RequestContext struct {
	context.Context

	w        http.ResponseWriter
	req      *http.Request
	resolver shared.Resolver
	log      logger.Logger

	values  map[string]any
	status  int
	written bool
}

// NewRequestContext builds a request context over the writer/request pair.
// The resolver scopes ctx.Resolve to the module that owns the route.
func NewRequestContext(w http.ResponseWriter, req *http.Request, resolver shared.Resolver, log logger.Logger) *RequestContext {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &RequestContext{
		Context:  req.Context(),
		w:        w,
		req:      req,
		resolver: resolver,
		log:      log.WithContext(req.Context()),
	}
}

func (c *RequestContext) Request() *http.Request        { return c.req }
func (c *RequestContext) Response() http.ResponseWriter { return c.w }

// Set stores a request-scoped value, readable downstream with Get.
func (c *RequestContext) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns a value stored with Set, or nil.
func (c *RequestContext) Get(key string) any {
	return c.values[key]
}

// WithContext replaces the underlying context, keeping the request in
// sync so Request().Context() and the embedded context agree.
func (c *RequestContext) WithContext(ctx context.Context) {
	c.Context = ctx
	c.req = c.req.WithContext(ctx)
}

// Param returns a path parameter stored by the router adapter.
func (c *RequestContext) Param(name string) string {
	return c.Params()[name]
}

// Params returns all path parameters of the matched route.
func (c *RequestContext) Params() map[string]string {
	if params, ok := c.Value(shared.ParamsContextKey).(map[string]string); ok {
		return params
	}
	return map[string]string{}
}

func (c *RequestContext) Query(name string) string {
	return c.req.URL.Query().Get(name)
}

func (c *RequestContext) QueryDefault(name, defaultValue string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return defaultValue
}

func (c *RequestContext) Header(key string) string {
	return c.req.Header.Get(key)
}

func (c *RequestContext) SetHeader(key, value string) {
	c.w.Header().Set(key, value)
}

// Bind decodes the JSON request body into v. Malformed bodies surface as
// 400s rather than opaque internal errors.
func (c *RequestContext) Bind(v any) error {
	if c.req.Body == nil {
		return errors.BadRequest("request body is empty")
	}
	if err := json.NewDecoder(c.req.Body).Decode(v); err != nil {
		return &errors.HTTPError{
			Code:    http.StatusBadRequest,
			Message: "invalid request body",
			Err:     err,
		}
	}
	return nil
}

// JSON writes v as a JSON response with the given status code.
func (c *RequestContext) JSON(code int, v any) error {
	c.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.writeHeader(c.resolveStatus(code, http.StatusOK))
	return json.NewEncoder(c.w).Encode(v)
}

// String writes a plain-text response with the given status code.
func (c *RequestContext) String(code int, s string) error {
	c.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.writeHeader(c.resolveStatus(code, http.StatusOK))
	_, err := c.w.Write([]byte(s))
	return err
}

// Bytes writes raw bytes with an explicit content type.
func (c *RequestContext) Bytes(code int, contentType string, data []byte) error {
	if contentType != "" {
		c.w.Header().Set("Content-Type", contentType)
	}
	c.writeHeader(c.resolveStatus(code, http.StatusOK))
	_, err := c.w.Write(data)
	return err
}

// NoContent writes an empty response, 204 unless a status was staged via
// Status.
func (c *RequestContext) NoContent() error {
	c.writeHeader(c.resolveStatus(0, http.StatusNoContent))
	return nil
}

// Redirect sends an HTTP redirect.
func (c *RequestContext) Redirect(code int, url string) error {
	c.written = true
	http.Redirect(c.w, c.req, url, code)
	return nil
}

// Status stages the status code used by the next bodyless write.
func (c *RequestContext) Status(code int) shared.Context {
	c.status = code
	return c
}

// Resolve resolves a provider token in the module scope that owns the
// matched route.
func (c *RequestContext) Resolve(token shared.Token) (any, error) {
	if c.resolver == nil {
		return nil, errors.NewError(errors.CodeProviderNotFound,
			"no module scope is attached to this request", nil).
			WithContext("token", string(token))
	}
	return c.resolver.Resolve(c.Context, token)
}

// Logger returns the request-scoped logger.
func (c *RequestContext) Logger() logger.Logger { return c.log }

// Written reports whether a response has already been committed.
func (c *RequestContext) Written() bool { return c.written }

// StatusCode returns the committed response status, or 0 when no response
// has been written yet.
func (c *RequestContext) StatusCode() int {
	if !c.written {
		return 0
	}
	return c.status
}

func (c *RequestContext) writeHeader(code int) {
	if c.written {
		return
	}
	c.written = true
	c.status = code
	c.w.WriteHeader(code)
}

func (c *RequestContext) resolveStatus(code, fallback int) int {
	if code > 0 {
		return code
	}
	if c.status > 0 {
		return c.status
	}
	return fallback
}
