package safe

import (
	"fmt"
	"reflect"

	"github.com/Virstriker/ChatApp/logger"
	"github.com/Virstriker/ChatApp/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required dependencies in constructors.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// DefaultString returns s, or fallback when s is empty.
func DefaultString(s string, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Go starts a goroutine that recovers from panic, so that one
// misbehaving connection cannot crash the process.
func Go(name string, f func()) {
	go func() {
		defer Recover(name)
		f()
	}()
}

// Recover logs a recovered panic; it must be called directly by defer.
func Recover(name string) {
	if r := recover(); r != nil {
		logger.Error("[safe] panic recovered",
			zap.String("goroutine", name),
			zap.Error(errs.ErrPanic(r)),
			zap.Stack("stack"))
	}
}
