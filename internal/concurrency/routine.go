package concurrency

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn in a goroutine with panic recovery.
func SafeGo(fn func(), onPanic func(interface{})) {
	go func() {
		defer Recover("goroutine", onPanic)
		fn()
	}()
}

// Recover must be deferred. It logs a recovered panic with its stack and
// hands the value to onPanic.
func Recover(scope string, onPanic func(interface{})) {
	if r := recover(); r != nil {
		slog.Error("Panic recovered", "scope", scope, "panic", r, "stack", string(debug.Stack()))
		if onPanic != nil {
			onPanic(r)
		}
	}
}

// PanicError converts a recovered value into an error.
func PanicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", r)
}
