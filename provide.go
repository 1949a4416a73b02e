package loom

import (
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Provide declares a class provider from an ordinary function without
// writing the ...any unpacking by hand. fn is called with the resolved
// dependencies in declaration order and must return the instance, or the
// instance and an error:
//
//	loom.Provide("UserService", NewUserService, loom.Use("UserRepo"))
//
// Tokens stay explicit; reflection only adapts the call shape. Provide
// panics when fn is not a function, when its parameter count differs from
// the number of deps, or when its results are not (T) or (T, error).
// Modules are declared at package init time, so a malformed constructor is
// a programming error surfaced immediately rather than an error value
// threaded through every declaration.
func Provide(token Token, fn any, deps ...Dep) Provider {
	return Provider{Token: token, New: adaptConstructor(token, fn, len(deps)), Inject: deps}
}

func adaptConstructor(token Token, fn any, arity int) Constructor {
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		panic(fmt.Sprintf("loom: Provide(%s): constructor must be a function, got %T", token, fn))
	}
	if fnType.IsVariadic() {
		panic(fmt.Sprintf("loom: Provide(%s): variadic constructors are not supported", token))
	}
	if fnType.NumIn() != arity {
		panic(fmt.Sprintf("loom: Provide(%s): constructor takes %d parameters but %d dependencies are declared", token, fnType.NumIn(), arity))
	}
	switch fnType.NumOut() {
	case 1:
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			panic(fmt.Sprintf("loom: Provide(%s): second return value must be error, got %s", token, fnType.Out(1)))
		}
	default:
		panic(fmt.Sprintf("loom: Provide(%s): constructor must return (T) or (T, error)", token))
	}

	return func(deps ...any) (any, error) {
		args := make([]reflect.Value, len(deps))
		for i, dep := range deps {
			if dep == nil {
				// Optional dependencies resolve to nil; pass the typed
				// zero value so the call does not panic.
				args[i] = reflect.Zero(fnType.In(i))
			} else {
				args[i] = reflect.ValueOf(dep)
			}
		}
		results := fnValue.Call(args)
		if len(results) == 2 && !results[1].IsNil() {
			return nil, results[1].Interface().(error)
		}
		return results[0].Interface(), nil
	}
}
