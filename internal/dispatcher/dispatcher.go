// File: internal/dispatcher/dispatcher.go
package dispatcher

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
	"github.com/roguesec/rogue/internal/config"
)

// Observation texts with fixed meaning to the orchestrator.
const (
	ObservationComplete  = "Completed"
	ObservationInputDone = "Input done!"
	ObservationAuthDone  = "Authentication done!"
)

// discoverFormsScript walks every form element and its interactive descendants
// and returns the result as a JSON-encoded array.
const discoverFormsScript = `
() => {
  const out = [];
  document.querySelectorAll('form').forEach((form, idx) => {
    const f = { index: idx, method: (form.method||'GET').toUpperCase(), action: form.action||'', fields: [] };
    form.querySelectorAll('input, select, textarea, button').forEach(el => {
      f.fields.push({
        tag: el.tagName.toLowerCase(),
        type: (el.type||'').toLowerCase(),
        name: el.name||'',
        id: el.id||'',
        placeholder: el.placeholder||'',
        required: !!el.required
      });
    });
    out.push(f);
  });
  return JSON.stringify(out);
}
`

// Prompter blocks until a human operator acknowledges a request. The default
// implementation reads a line from stdin.
type Prompter interface {
	Prompt(message string) error
}

// StdinPrompter prints the message and waits for the operator to press enter.
type StdinPrompter struct{}

// Prompt implements Prompter.
func (StdinPrompter) Prompt(message string) error {
	fmt.Print(message)
	_, err := bufio.NewReader(os.Stdin).ReadString('\n')
	return err
}

// Dispatcher turns resolved action requests into safety-gated, retried
// operations against a live browsing session. Every operation returns a plain
// observation string; failures become tagged error strings, never Go errors,
// so the orchestrator can reason about them in the transcript. The dispatcher
// keeps no state across calls; safe mode and the per-attempt timeout are fixed
// at construction.
type Dispatcher struct {
	logger   *zap.Logger
	safeMode bool
	timeout  time.Duration
	retries  int
	prompter Prompter
}

// New creates a Dispatcher from the run configuration.
func New(cfg config.Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		safeMode: cfg.Scan.SafeMode,
		timeout:  cfg.Browser.DefaultTimeout,
		retries:  cfg.Agent.Retries,
		prompter: StdinPrompter{},
	}
}

// SetPrompter swaps the operator-input collaborator (used by tests).
func (d *Dispatcher) SetPrompter(p Prompter) { d.prompter = p }

// withRetries invokes fn up to retries+1 times, returning on first success.
// Retries are silent; the caller cannot tell a retried success from a first
// try success. The last error propagates when every attempt fails.
func (d *Dispatcher) withRetries(fn func() error) error {
	var last error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			last = err
		}
	}
	return last
}

// ExecuteScript normalizes and evaluates JavaScript in the session under the
// configured timeout. Failures return a JS_ERROR observation.
func (d *Dispatcher) ExecuteScript(ctx context.Context, s schemas.SessionContext, code string) string {
	script := NormalizeScript(code)
	var result interface{}
	if err := s.Evaluate(ctx, script, d.timeout, &result); err != nil {
		return fmt.Sprintf("JS_ERROR: %v", err)
	}
	return stringify(result)
}

// stringify renders an evaluation result the way the transcript expects:
// strings verbatim, everything else as JSON.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return out
	}
}

// Click waits for the selector and clicks it, returning the page markup.
// Refused in safe mode.
func (d *Dispatcher) Click(ctx context.Context, s schemas.SessionContext, selector string) string {
	if d.safeMode {
		return "SAFE_MODE: click disabled"
	}
	if err := d.mutate(ctx, s, selector, func() error {
		return s.Click(ctx, selector, d.timeout)
	}); err != nil {
		return fmt.Sprintf("CLICK_ERROR: %v", err)
	}
	return d.pageMarkup(ctx, s, "CLICK_ERROR")
}

// Fill waits for the selector and sets the field value, returning the page
// markup. Refused in safe mode.
func (d *Dispatcher) Fill(ctx context.Context, s schemas.SessionContext, selector, value string) string {
	if d.safeMode {
		return "SAFE_MODE: fill disabled"
	}
	if err := d.mutate(ctx, s, selector, func() error {
		return s.Fill(ctx, selector, value, d.timeout)
	}); err != nil {
		return fmt.Sprintf("FILL_ERROR: %v", err)
	}
	return d.pageMarkup(ctx, s, "FILL_ERROR")
}

// Submit waits for the selector and clicks it to submit its form, returning
// the page markup. Refused in safe mode.
func (d *Dispatcher) Submit(ctx context.Context, s schemas.SessionContext, selector string) string {
	if d.safeMode {
		return "SAFE_MODE: submit disabled"
	}
	if err := d.mutate(ctx, s, selector, func() error {
		return s.SubmitClick(ctx, selector, d.timeout)
	}); err != nil {
		return fmt.Sprintf("SUBMIT_ERROR: %v", err)
	}
	return d.pageMarkup(ctx, s, "SUBMIT_ERROR")
}

// mutate runs the wait-then-act sequence shared by the mutating operations,
// each half retried independently.
func (d *Dispatcher) mutate(ctx context.Context, s schemas.SessionContext, selector string, act func() error) error {
	if err := d.withRetries(func() error {
		return s.WaitSelector(ctx, selector, d.timeout)
	}); err != nil {
		return err
	}
	return d.withRetries(act)
}

// Goto navigates to the URL, retried, returning the page markup. Navigation is
// read-only with respect to target state, so it is not safe-mode gated.
func (d *Dispatcher) Goto(ctx context.Context, s schemas.SessionContext, url string) string {
	if err := d.withRetries(func() error {
		return s.Navigate(ctx, url, d.timeout)
	}); err != nil {
		return fmt.Sprintf("GOTO_ERROR: %v", err)
	}
	return d.pageMarkup(ctx, s, "GOTO_ERROR")
}

// Refresh reloads the current page, retried, returning the page markup.
func (d *Dispatcher) Refresh(ctx context.Context, s schemas.SessionContext) string {
	if err := d.withRetries(func() error {
		return s.Reload(ctx, d.timeout)
	}); err != nil {
		return fmt.Sprintf("REFRESH_ERROR: %v", err)
	}
	return d.pageMarkup(ctx, s, "REFRESH_ERROR")
}

// PressKey dispatches a keyboard key and returns the updated page markup.
// Not retried and, unlike the other mutating operations, not safe-mode gated;
// failures surface as errors and are tagged only by the dynamic dispatch layer.
func (d *Dispatcher) PressKey(ctx context.Context, s schemas.SessionContext, key string) (string, error) {
	if err := s.KeyPress(ctx, key); err != nil {
		return "", err
	}
	return s.InnerHTML(ctx, "html")
}

// DiscoverForms evaluates the fixed form-walking script and returns its JSON
// output, or a DISCOVER_FORMS_ERROR observation.
func (d *Dispatcher) DiscoverForms(ctx context.Context, s schemas.SessionContext) string {
	var out string
	if err := s.Evaluate(ctx, discoverFormsScript, d.timeout, &out); err != nil {
		return fmt.Sprintf("DISCOVER_FORMS_ERROR: %v", err)
	}
	return out
}

// GetUserInput blocks until the operator responds to the prompt.
func (d *Dispatcher) GetUserInput(prompt string) string {
	if err := d.prompter.Prompt(prompt); err != nil {
		d.logger.Warn("Operator prompt failed", zap.Error(err))
	}
	return ObservationInputDone
}

// AuthNeeded blocks until the operator confirms they have authenticated.
func (d *Dispatcher) AuthNeeded() string {
	if err := d.prompter.Prompt("Authentication needed. Please login and press enter to continue."); err != nil {
		d.logger.Warn("Operator prompt failed", zap.Error(err))
	}
	return ObservationAuthDone
}

// Complete returns the terminal marker observation that tells the orchestrator
// to advance.
func (d *Dispatcher) Complete() string {
	return ObservationComplete
}

// pageMarkup fetches the full current page markup after a successful action.
func (d *Dispatcher) pageMarkup(ctx context.Context, s schemas.SessionContext, errTag string) string {
	html, err := s.InnerHTML(ctx, "html")
	if err != nil {
		return fmt.Sprintf("%s: %v", errTag, err)
	}
	return html
}
