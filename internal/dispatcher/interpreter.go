// File: internal/dispatcher/interpreter.go
package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
)

// outputCap bounds the stdout returned from interpreted code.
const outputCap = 4000

const truncationMarker = "... [truncated]"

// driverLaunchDenied is returned when interpreted code tries to spawn its own
// automation driver instead of using the session it was handed.
const driverLaunchDenied = "PYTHON_ERROR: launching a browser driver is not allowed from the interpreter. Use the existing session context."

// driverLaunchDenylist holds substrings associated with spawning a new
// automation-driver instance. Matching code is refused regardless of safe
// mode; the check runs before anything is interpreted.
var driverLaunchDenylist = []string{
	"chromedp.NewContext",
	"chromedp.NewExecAllocator",
	"chromedp.NewRemoteAllocator",
	"github.com/chromedp/chromedp",
	"os/exec",
	"sync_playwright(",
	"async_playwright(",
	"from playwright",
	"import playwright",
}

// Interpret executes agent-supplied code inside a restricted yaegi interpreter.
// Only stdlib symbols are available; stdout and stderr are captured, capped at
// outputCap characters, and returned as the observation. When a session is
// supplied, read-only facts about it (current URL, user agent, cookies as
// JSON) are pre-declared in the namespace. Unconditionally refused in safe
// mode; driver-launch attempts refused regardless of safe mode.
func (d *Dispatcher) Interpret(ctx context.Context, s schemas.SessionContext, code string) string {
	if d.safeMode {
		return "SAFE_MODE: python_interpreter disabled"
	}
	for _, needle := range driverLaunchDenylist {
		if strings.Contains(code, needle) {
			return driverLaunchDenied
		}
	}

	var buf bytes.Buffer
	i := interp.New(interp.Options{Stdout: &buf, Stderr: &buf})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Sprintf("PYTHON_ERROR: %v", err)
	}

	if s != nil {
		if err := d.declareSessionFacts(ctx, i, s); err != nil {
			d.logger.Warn("Could not expose session facts to the interpreter", zap.Error(err))
		}
	}

	if err := d.evalBounded(ctx, i, code); err != nil {
		return fmt.Sprintf("PYTHON_ERROR: %v", err)
	}

	out := buf.String()
	if len(out) > outputCap {
		out = out[:outputCap] + truncationMarker
	}
	return out
}

// declareSessionFacts pre-populates the interpreter namespace with read-only
// facts about the live session. Lookup failures leave the corresponding fact
// empty rather than aborting the interpretation.
func (d *Dispatcher) declareSessionFacts(ctx context.Context, i *interp.Interpreter, s schemas.SessionContext) error {
	currentURL, err := s.URL(ctx)
	if err != nil {
		d.logger.Debug("Could not read current URL for interpreter", zap.Error(err))
	}
	userAgent, err := s.UserAgent(ctx)
	if err != nil {
		d.logger.Debug("Could not read user agent for interpreter", zap.Error(err))
	}
	cookiesJSON := "[]"
	if cookies, err := s.Cookies(ctx); err == nil {
		if enc, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(cookies); err == nil {
			cookiesJSON = enc
		}
	} else {
		d.logger.Debug("Could not read cookies for interpreter", zap.Error(err))
	}

	prelude := fmt.Sprintf(
		"currentURL := %q\nuserAgent := %q\ncookies := %q\n_, _, _ = currentURL, userAgent, cookies\n",
		currentURL, userAgent, cookiesJSON,
	)
	_, err = i.Eval(prelude)
	return err
}

// evalBounded runs the interpretation in a goroutine so a runaway script
// cannot block the dispatcher past its timeout. yaegi has no cooperative
// cancellation, so a timed-out interpretation is abandoned, not killed.
func (d *Dispatcher) evalBounded(ctx context.Context, i *interp.Interpreter, code string) error {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%v", r)
			}
		}()
		_, err := i.Eval(code)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("execution timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
