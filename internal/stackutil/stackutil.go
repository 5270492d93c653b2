package stackutil

import (
	"fmt"
	"runtime"
	"strings"
)

// Callers returns up to depth frames, starting at the function that called
// Callers and skipping skip more frames above it.
func Callers(skip, depth int) []runtime.Frame {
	pc := make([]uintptr, depth)

	// 0 is runtime.Callers, 1 is this function
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pc[:n])

	a := make([]runtime.Frame, 0, n)
	for {
		frame, more := frames.Next()
		a = append(a, frame)

		if !more {
			break
		}
	}

	return a
}

// InPackage reports whether f belongs to one of the named packages. Sub
// packages don't count.
func InPackage(f runtime.Frame, packages ...string) bool {
	for _, p := range packages {
		if strings.HasPrefix(f.Function, p+".") {
			return true
		}
	}

	return false
}

// WithoutPackages drops every frame belonging to one of the named packages.
func WithoutPackages(a []runtime.Frame, packages ...string) []runtime.Frame {
	r := make([]runtime.Frame, 0, len(a))
	for _, f := range a {
		if !InPackage(f, packages...) {
			r = append(r, f)
		}
	}

	return r
}

func FormatStack(a []runtime.Frame) []string {
	r := make([]string, len(a))
	for i, e := range a {
		r[i] = FormatStackFrame(e)
	}
	return r
}

func FormatStackFrame(f runtime.Frame) string {
	return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Function)
}
