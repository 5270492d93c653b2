package catchpanic

import (
	"fmt"
	"runtime"

	"fknsrs.biz/p/clipcatalog/internal/stackutil"
)

// PanicError is what a recovered panic turns into. Stack starts at the frame
// that panicked.
type PanicError struct {
	Value interface{}
	Stack []runtime.Frame
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func (e *PanicError) FormatStack() []string {
	return stackutil.FormatStack(e.Stack)
}

// Call runs fn, converting a panic into a *PanicError. The zero T is
// returned alongside it.
func Call[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if v := recover(); v != nil {
			var zero T

			res = zero
			err = fmt.Errorf("catchpanic.Call: %w", &PanicError{
				Value: v,
				Stack: stackutil.WithoutPackages(stackutil.Callers(1, 64), "runtime"),
			})
		}
	}()

	return fn()
}

// Catch is Call for functions with nothing to return.
func Catch(fn func()) error {
	_, err := Call(func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	})

	return err
}
