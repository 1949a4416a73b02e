package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors.
const (
	CodeUnknownModule      = "UNKNOWN_MODULE"
	CodeModuleCycle        = "MODULE_CYCLE"
	CodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeFactoryError       = "FACTORY_ERROR"
	CodeInvalidExport      = "INVALID_EXPORT"
	CodeDuplicateModule    = "DUPLICATE_MODULE"
	CodeDuplicateProvider  = "DUPLICATE_PROVIDER"
	CodeInvalidProvider    = "INVALID_PROVIDER"
	CodeConfigError        = "CONFIG_ERROR"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeLifecycleError     = "LIFECYCLE_ERROR"
	CodeContextCancelled   = "CONTEXT_CANCELLED"
	CodeTimeoutError       = "TIMEOUT_ERROR"
	CodeHealthCheckFailed  = "HEALTH_CHECK_FAILED"
)

// =============================================================================
// LOOM ERROR (STRUCTURED ERROR)
// =============================================================================

// LoomError is a structured error carrying a stable code, a human-readable
// message, an optional cause and optional context fields.
type LoomError struct {
	Code    string
	Message string
	Cause   error
	Context map[string]any
}

// NewError creates a structured error with the given code, message and cause.
func NewError(code, message string, cause error) *LoomError {
	return &LoomError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func (e *LoomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoomError) Unwrap() error {
	return e.Cause
}

// Is matches two LoomErrors by code, so sentinel comparisons like
// errors.Is(err, &LoomError{Code: CodeModuleCycle}) work regardless of message.
func (e *LoomError) Is(target error) bool {
	t, ok := target.(*LoomError)
	if !ok {
		return false
	}

	return e.Code == t.Code
}

// WithContext attaches a context field to the error and returns it.
func (e *LoomError) WithContext(key string, value any) *LoomError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}

	e.Context[key] = value

	return e
}

// =============================================================================
// GRAPH / RESOLUTION ERRORS
// =============================================================================

// ErrUnknownModule reports an import edge to a module that was never declared.
func ErrUnknownModule(name string) *LoomError {
	return NewError(CodeUnknownModule, "module '"+name+"' is referenced but not declared", nil)
}

// ErrModuleCycle reports an import cycle among modules. The path lists the
// modules on the cycle in traversal order.
func ErrModuleCycle(path []string) *LoomError {
	return NewError(CodeModuleCycle, "module import cycle: "+strings.Join(path, " -> "), nil).
		WithContext("path", path)
}

// ErrProviderNotFound reports a token that is not visible from the requesting
// module's scope.
func ErrProviderNotFound(token, module string) *LoomError {
	return NewError(CodeProviderNotFound,
		"provider '"+token+"' is not visible from module '"+module+"'", nil).
		WithContext("token", token).
		WithContext("module", module)
}

// ErrCircularDependency reports a provider dependency cycle that was not
// broken by lazy or factory indirection. The path lists module/token pairs in
// resolution order, ending where the cycle closes.
func ErrCircularDependency(path []string) *LoomError {
	return NewError(CodeCircularDependency, "circular dependency: "+strings.Join(path, " -> "), nil).
		WithContext("path", path)
}

// ErrFactory reports a constructor or factory that returned an error, panicked
// or settled a deferred result with a failure.
func ErrFactory(token, module string, cause error) *LoomError {
	return NewError(CodeFactoryError,
		"provider '"+token+"' in module '"+module+"' failed to construct", cause).
		WithContext("token", token).
		WithContext("module", module)
}

// ErrInvalidExport reports an exported token that is neither declared by the
// module nor importable from one of its imports.
func ErrInvalidExport(module, token string) *LoomError {
	return NewError(CodeInvalidExport,
		"module '"+module+"' exports '"+token+"' which it neither declares nor imports", nil)
}

// ErrDuplicateModule reports two distinct module values sharing one name.
// Module names are identities; reusing a name for a different definition is
// a declaration error, not a diamond import.
func ErrDuplicateModule(name string) *LoomError {
	return NewError(CodeDuplicateModule,
		"module name '"+name+"' is declared by two different modules", nil)
}

// ErrDuplicateProvider reports two declarations of the same token within one
// module.
func ErrDuplicateProvider(module, token string) *LoomError {
	return NewError(CodeDuplicateProvider,
		"module '"+module+"' declares provider '"+token+"' more than once", nil)
}

// ErrInvalidProvider reports a provider declaration that does not carry
// exactly one instantiation strategy.
func ErrInvalidProvider(module, token, reason string) *LoomError {
	return NewError(CodeInvalidProvider,
		"provider '"+token+"' in module '"+module+"': "+reason, nil)
}

// =============================================================================
// RUNTIME ERRORS
// =============================================================================

// ErrConfigError creates a config error.
func ErrConfigError(message string, cause error) *LoomError {
	return NewError(CodeConfigError, message, cause)
}

// ErrValidationError creates a validation error for a named field.
func ErrValidationError(field string, cause error) *LoomError {
	return NewError(CodeValidationError, fmt.Sprintf("validation error for field '%s'", field), cause)
}

// ErrLifecycleError creates a lifecycle error.
func ErrLifecycleError(phase string, cause error) *LoomError {
	return NewError(CodeLifecycleError, "lifecycle error during "+phase, cause)
}

func ErrContextCancelled(operation string) *LoomError {
	return NewError(CodeContextCancelled, "context cancelled during "+operation, nil)
}

func ErrTimeoutError(operation string, timeout time.Duration) *LoomError {
	return NewError(CodeTimeoutError, "timeout during "+operation+" after "+timeout.String(), nil)
}

func ErrHealthCheckFailed(name string, cause error) *LoomError {
	return NewError(CodeHealthCheckFailed, "health check failed for '"+name+"'", cause)
}

// =============================================================================
// STANDARD ERRORS PACKAGE INTEGRATION
// =============================================================================

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so,
// sets target to that error value and returns true. Otherwise, it returns false.
// This is a convenience wrapper around errors.As from the standard library.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if err's
// type contains an Unwrap method returning error. Otherwise, Unwrap returns nil.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// New returns an error that formats as the given text.
// This is a convenience wrapper around errors.New from the standard library.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error that wraps the given errors.
// Any nil error values are discarded.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// =============================================================================
// SENTINEL ERRORS (for use with Is)
// =============================================================================

// Sentinel errors that can be used with errors.Is comparisons.
var (
	// ErrUnknownModuleSentinel matches any unknown-module error.
	ErrUnknownModuleSentinel = &LoomError{Code: CodeUnknownModule}

	// ErrModuleCycleSentinel matches any module import cycle error.
	ErrModuleCycleSentinel = &LoomError{Code: CodeModuleCycle}

	// ErrProviderNotFoundSentinel matches any provider-not-found error.
	ErrProviderNotFoundSentinel = &LoomError{Code: CodeProviderNotFound}

	// ErrCircularDependencySentinel matches any circular dependency error.
	ErrCircularDependencySentinel = &LoomError{Code: CodeCircularDependency}

	// ErrFactorySentinel matches any factory failure error.
	ErrFactorySentinel = &LoomError{Code: CodeFactoryError}

	// ErrInvalidExportSentinel matches any invalid export error.
	ErrInvalidExportSentinel = &LoomError{Code: CodeInvalidExport}

	// ErrDuplicateModuleSentinel matches any duplicate module name error.
	ErrDuplicateModuleSentinel = &LoomError{Code: CodeDuplicateModule}

	// ErrDuplicateProviderSentinel matches any duplicate provider error.
	ErrDuplicateProviderSentinel = &LoomError{Code: CodeDuplicateProvider}

	// ErrInvalidProviderSentinel matches any invalid provider declaration error.
	ErrInvalidProviderSentinel = &LoomError{Code: CodeInvalidProvider}

	// ErrConfigErrorSentinel matches any config error.
	ErrConfigErrorSentinel = &LoomError{Code: CodeConfigError}

	// ErrValidationErrorSentinel matches any validation error.
	ErrValidationErrorSentinel = &LoomError{Code: CodeValidationError}

	// ErrLifecycleErrorSentinel matches any lifecycle error.
	ErrLifecycleErrorSentinel = &LoomError{Code: CodeLifecycleError}

	// ErrContextCancelledSentinel matches any context cancellation error.
	ErrContextCancelledSentinel = &LoomError{Code: CodeContextCancelled}

	// ErrTimeoutErrorSentinel matches any timeout error.
	ErrTimeoutErrorSentinel = &LoomError{Code: CodeTimeoutError}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsUnknownModule checks if the error reports an undeclared module import.
func IsUnknownModule(err error) bool {
	return Is(err, ErrUnknownModuleSentinel)
}

// IsModuleCycle checks if the error reports a module import cycle.
func IsModuleCycle(err error) bool {
	return Is(err, ErrModuleCycleSentinel)
}

// IsProviderNotFound checks if the error reports a token outside the
// requesting module's visibility.
func IsProviderNotFound(err error) bool {
	return Is(err, ErrProviderNotFoundSentinel)
}

// IsCircularDependency checks if the error reports a provider cycle.
func IsCircularDependency(err error) bool {
	return Is(err, ErrCircularDependencySentinel)
}

// IsFactoryError checks if the error reports a failed construction.
func IsFactoryError(err error) bool {
	return Is(err, ErrFactorySentinel)
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	return Is(err, ErrValidationErrorSentinel)
}

// IsContextCancelled checks if the error is a context cancelled error.
func IsContextCancelled(err error) bool {
	return Is(err, ErrContextCancelledSentinel)
}

// IsTimeout checks if the error is a timeout error.
func IsTimeout(err error) bool {
	return Is(err, ErrTimeoutErrorSentinel)
}
