// Package sandbox runs untrusted operator-authored code: subject and
// template expressions, and resumable campaign flow programs. Every call
// gets a fresh goja.Runtime with a bounded execution window; nothing is
// cached or shared between calls.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Error is returned for any failure inside sandboxed code: a thrown
// exception, a compile error, or an interrupt from exceeding the deadline.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

func newError(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

func wrapError(err error, context string) *Error {
	return &Error{Message: context + ": " + err.Error(), Err: err}
}

// Sandbox executes goja programs with a fixed per-call timeout.
type Sandbox struct {
	Timeout time.Duration
}

// New returns a Sandbox with the given execution timeout. A zero timeout
// sets no deadline; the runtime is still interrupted if the caller's
// context is cancelled.
func New(timeout time.Duration) *Sandbox {
	return &Sandbox{Timeout: timeout}
}

// arm starts the interrupt goroutine that bounds rt's total execution time
// to s.Timeout, mirroring the ictx/cancel pattern of a disposable-VM
// interpreter: the goroutine outlives no longer than the returned disarm
// call. disarm must always run before rt is discarded.
func (s *Sandbox) arm(ctx context.Context, rt *goja.Runtime) (disarm func()) {
	runCtx := ctx
	var cancel context.CancelFunc
	if s.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			rt.Interrupt("sandbox: execution timed out")
		case <-done:
		}
	}()
	return func() {
		close(done)
		cancel()
	}
}

func translateRunErr(runErr error) error {
	var interrupted *goja.InterruptedError
	if errors.As(runErr, &interrupted) {
		return newError("sandbox: interrupted: %s", interrupted.Error())
	}
	var jsErr *goja.Exception
	if errors.As(runErr, &jsErr) {
		return newError("sandbox: %s", jsErr.Error())
	}
	return wrapError(runErr, "sandbox")
}

// run compiles src as an expression yielding a single value, executes it
// with the interrupt goroutine armed, and returns the resulting value.
func (s *Sandbox) run(ctx context.Context, src string, bind func(rt *goja.Runtime)) (goja.Value, error) {
	program, err := goja.Compile("", src, true)
	if err != nil {
		return nil, wrapError(err, "compile")
	}

	rt := goja.New()
	if bind != nil {
		bind(rt)
	}

	disarm := s.arm(ctx, rt)
	v, runErr := rt.RunProgram(program)
	disarm()

	if runErr != nil {
		return nil, translateRunErr(runErr)
	}
	return v, nil
}

// EvalUserExpr renders source as a `<%= %>`/`<% %>` tag template with the
// given user attributes bound as `user`, and returns the rendered string.
func (s *Sandbox) EvalUserExpr(ctx context.Context, source string, user map[string]any) (string, error) {
	return s.RenderTemplate(ctx, source, "", map[string]any{"user": user})
}

// EvalUserEventExpr renders source like EvalUserExpr, with both `user` and
// `event` bound.
func (s *Sandbox) EvalUserEventExpr(ctx context.Context, source string, user, event map[string]any) (string, error) {
	return s.RenderTemplate(ctx, source, "", map[string]any{"user": user, "event": event})
}
