// internal/recovery/recovery.go
package recovery

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
)

// ErrPanic wraps a value recovered by Guard.
var ErrPanic = errors.New("recovered panic")

// HandlePanic should be deferred at the top of main().
// It prints panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// HandlePanicFunc prints panic details, runs cleanup (e.g. closing the
// result database) and exits with code 1.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
}

// Guard runs fn and turns a panic inside it into an error wrapping ErrPanic.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
