// Package errors annotates errors with the source location where they were created and with structured
// [slog.Attr] that are rendered by [SlogError].
//
// It is a drop-in replacement for the standard library errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
)

// Is reports whether any error in err's tree matches target. See [stderrors.Is].
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target. See [stderrors.As].
func As(err error, target any) bool { return stderrors.As(err, target) }

// Unwrap returns the result of calling the Unwrap method on err. See [stderrors.Unwrap].
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// Join returns an error that wraps the given errors. See [stderrors.Join].
func Join(errs ...error) error { return stderrors.Join(errs...) }

// sentinel is a comparable error without location information meant for package-level error variables.
type sentinel struct {
	msg string
}

func (s *sentinel) Error() string { return s.msg }

// NewSentinel creates an error meant to be declared once as a package-level variable and compared with [Is].
func NewSentinel(msg string) error {
	return &sentinel{msg: msg}
}

type annotatedError struct {
	msg   string
	err   error
	attrs []slog.Attr
	frame runtime.Frame
}

func (e *annotatedError) Error() string {
	if e.err == nil {
		return e.msg
	}
	inner := e.err.Error()
	switch {
	case inner == "":
		return e.msg
	case e.msg == "":
		return inner
	default:
		return e.msg + ": " + inner
	}
}

func (e *annotatedError) Unwrap() error { return e.err }

// New creates an error annotated with the caller's source location and the given attributes.
func New(msg string, attrs ...slog.Attr) error {
	return &annotatedError{
		msg:   msg,
		err:   nil,
		attrs: attrs,
		frame: callerFrame(1),
	}
}

// Wrap annotates err with a message, the caller's source location, and the given attributes.
//
// Wrap returns nil if err is nil.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return &annotatedError{
		msg:   msg,
		err:   err,
		attrs: attrs,
		frame: callerFrame(1),
	}
}

// DecoratePanic converts a recovered panic value into an error annotated with the location of the panic.
//
// Returns nil if v is nil.
func DecoratePanic(v any) error {
	if v == nil {
		return nil
	}
	var err error
	if e, ok := v.(error); ok {
		err = e
	}
	return &annotatedError{
		msg:   fmt.Sprintf("panic: %v", v),
		err:   unwrapOnly(err),
		attrs: nil,
		frame: panicFrame(),
	}
}

// unwrapOnly hides the panic error from Error() while keeping it reachable for [Is] and [As].
func unwrapOnly(err error) error {
	if err == nil {
		return nil
	}
	return &silentError{err: err}
}

type silentError struct {
	err error
}

func (e *silentError) Error() string { return "" }
func (e *silentError) Unwrap() error { return e.err }

// SlogError renders err as an "error" group containing the message, the source location of the innermost
// annotated error and the annotations collected from the whole error tree.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{Key: "error", Value: slog.AnyValue(nil)}
	}

	var (
		annotations []any
		source      string
	)
	walk(err, func(ae *annotatedError) {
		for _, a := range ae.attrs {
			annotations = append(annotations, a)
		}
		if ae.frame.File != "" {
			source = ae.frame.File + ":" + strconv.Itoa(ae.frame.Line)
		}
	})

	args := []any{slog.String("message", err.Error())}
	if source != "" {
		args = append(args, slog.String("source", source))
	}
	if len(annotations) > 0 {
		args = append(args, slog.Group("annotations", annotations...))
	}
	return slog.Group("error", args...)
}

// walk visits every annotated error in the tree rooted at err, outermost first.
func walk(err error, visit func(*annotatedError)) {
	if err == nil {
		return
	}
	if ae, ok := err.(*annotatedError); ok { //nolint:errorlint // walking the tree manually.
		visit(ae)
	}
	switch u := err.(type) { //nolint:errorlint // walking the tree manually.
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			walk(e, visit)
		}
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), visit)
	}
}

// callerFrame returns the frame skip levels above the caller of callerFrame.
func callerFrame(skip int) runtime.Frame {
	pcs := make([]uintptr, 1)
	if runtime.Callers(skip+2, pcs) == 0 { //nolint:mnd // skip runtime.Callers and callerFrame.
		return runtime.Frame{}
	}
	frame, _ := runtime.CallersFrames(pcs).Next()
	return frame
}

// panicFrame returns the frame that called panic when invoked from a deferred recover.
func panicFrame() runtime.Frame {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var (
		fallback       runtime.Frame
		sawPanic, more = false, true
		frame          runtime.Frame
	)
	for more {
		frame, more = frames.Next()
		if sawPanic {
			if strings.HasPrefix(frame.Function, "runtime.") {
				continue
			}
			return frame
		}
		if frame.Function == "runtime.gopanic" {
			sawPanic = true
			continue
		}
		if fallback.File == "" && !strings.HasPrefix(frame.Function, "runtime.") &&
			!strings.HasSuffix(frame.Function, "errors.panicFrame") &&
			!strings.HasSuffix(frame.Function, "errors.DecoratePanic") {
			fallback = frame
		}
	}
	return fallback
}
