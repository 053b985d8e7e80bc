// File: internal/dispatcher/dispatcher_test.go
package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
	"github.com/roguesec/rogue/internal/config"
)

// fakeSession is a scriptable SessionContext that counts calls per method and
// can be told to fail a method a fixed number of times or forever.
type fakeSession struct {
	calls    map[string]int
	failures map[string]int // remaining failures per method; -1 fails forever
	html     string
	evalOut  interface{}
	url      string
	ua       string
	cookies  []schemas.Cookie
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		calls:    map[string]int{},
		failures: map[string]int{},
		html:     "<body>ok</body>",
		url:      "https://target.test/app",
		ua:       "test-agent/1.0",
	}
}

func (f *fakeSession) step(method string) error {
	f.calls[method]++
	switch n := f.failures[method]; {
	case n < 0:
		return errors.New(method + " failed")
	case n > 0:
		f.failures[method] = n - 1
		return errors.New(method + " failed")
	}
	return nil
}

func (f *fakeSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return f.step("Navigate")
}
func (f *fakeSession) Reload(ctx context.Context, timeout time.Duration) error {
	return f.step("Reload")
}
func (f *fakeSession) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return f.step("WaitSelector")
}
func (f *fakeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return f.step("Click")
}
func (f *fakeSession) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return f.step("Fill")
}
func (f *fakeSession) SubmitClick(ctx context.Context, selector string, timeout time.Duration) error {
	return f.step("SubmitClick")
}
func (f *fakeSession) Evaluate(ctx context.Context, script string, timeout time.Duration, out interface{}) error {
	if err := f.step("Evaluate"); err != nil {
		return err
	}
	switch p := out.(type) {
	case *interface{}:
		*p = f.evalOut
	case *string:
		if s, ok := f.evalOut.(string); ok {
			*p = s
		}
	}
	return nil
}
func (f *fakeSession) KeyPress(ctx context.Context, key string) error {
	return f.step("KeyPress")
}
func (f *fakeSession) InnerHTML(ctx context.Context, root string) (string, error) {
	if err := f.step("InnerHTML"); err != nil {
		return "", err
	}
	return f.html, nil
}
func (f *fakeSession) URL(ctx context.Context) (string, error) {
	if err := f.step("URL"); err != nil {
		return "", err
	}
	return f.url, nil
}
func (f *fakeSession) UserAgent(ctx context.Context) (string, error) {
	if err := f.step("UserAgent"); err != nil {
		return "", err
	}
	return f.ua, nil
}
func (f *fakeSession) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	if err := f.step("Cookies"); err != nil {
		return nil, err
	}
	return f.cookies, nil
}

// fakePrompter records prompts instead of blocking on stdin.
type fakePrompter struct {
	prompts []string
	err     error
}

func (p *fakePrompter) Prompt(message string) error {
	p.prompts = append(p.prompts, message)
	return p.err
}

func newTestDispatcher(t *testing.T, safeMode bool) *Dispatcher {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Scan.SafeMode = safeMode
	cfg.Browser.DefaultTimeout = time.Second
	d := New(*cfg, zap.NewNop())
	d.SetPrompter(&fakePrompter{})
	return d
}

func TestExecuteScript(t *testing.T) {
	ctx := context.Background()

	t.Run("String Result Returned Verbatim", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.evalOut = "hello"
		assert.Equal(t, "hello", d.ExecuteScript(ctx, s, "document.title"))
	})

	t.Run("Structured Result Encoded As JSON", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.evalOut = map[string]interface{}{"a": 1}
		assert.Equal(t, `{"a":1}`, d.ExecuteScript(ctx, s, "x"))
	})

	t.Run("Failure Tagged JS_ERROR", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.failures["Evaluate"] = -1
		out := d.ExecuteScript(ctx, s, "x")
		assert.True(t, strings.HasPrefix(out, "JS_ERROR: "), "got %q", out)
	})

	t.Run("Allowed In Safe Mode", func(t *testing.T) {
		d := newTestDispatcher(t, true)
		s := newFakeSession()
		s.evalOut = "still works"
		assert.Equal(t, "still works", d.ExecuteScript(ctx, s, "x"))
	})
}

func TestMutatingOperationsSafeMode(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, true)
	s := newFakeSession()

	assert.Equal(t, "SAFE_MODE: click disabled", d.Click(ctx, s, "#a"))
	assert.Equal(t, "SAFE_MODE: fill disabled", d.Fill(ctx, s, "#a", "v"))
	assert.Equal(t, "SAFE_MODE: submit disabled", d.Submit(ctx, s, "#a"))

	// The refusal must happen before the session is touched at all.
	assert.Empty(t, s.calls)
}

func TestNavigationNotSafeModeGated(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, true)
	s := newFakeSession()

	assert.Equal(t, s.html, d.Goto(ctx, s, "https://target.test"))
	assert.Equal(t, s.html, d.Refresh(ctx, s))
	assert.Equal(t, 1, s.calls["Navigate"])
	assert.Equal(t, 1, s.calls["Reload"])
}

func TestMutatingOperationsReturnMarkup(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, false)
	s := newFakeSession()

	assert.Equal(t, s.html, d.Click(ctx, s, "#a"))
	assert.Equal(t, s.html, d.Fill(ctx, s, "#a", "v"))
	assert.Equal(t, s.html, d.Submit(ctx, s, "#a"))
	assert.Equal(t, 3, s.calls["WaitSelector"])
}

func TestRetryBehavior(t *testing.T) {
	ctx := context.Background()

	t.Run("Transient Failure Recovers Silently", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.failures["Navigate"] = 2 // default retries = 2, so third attempt succeeds
		out := d.Goto(ctx, s, "https://target.test")
		assert.Equal(t, s.html, out)
		assert.Equal(t, 3, s.calls["Navigate"])
	})

	t.Run("Exhausted Retries Return Tagged Error", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.failures["Navigate"] = -1
		out := d.Goto(ctx, s, "https://target.test")
		assert.True(t, strings.HasPrefix(out, "GOTO_ERROR: "), "got %q", out)
		assert.Equal(t, 3, s.calls["Navigate"])
	})

	t.Run("Wait And Act Retried Independently", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.failures["WaitSelector"] = 1
		s.failures["Click"] = 1
		assert.Equal(t, s.html, d.Click(ctx, s, "#a"))
		assert.Equal(t, 2, s.calls["WaitSelector"])
		assert.Equal(t, 2, s.calls["Click"])
	})
}

func TestClickErrorTag(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, false)
	s := newFakeSession()
	s.failures["WaitSelector"] = -1

	out := d.Click(ctx, s, "#missing")
	assert.True(t, strings.HasPrefix(out, "CLICK_ERROR: "), "got %q", out)
	// The click itself must never run when the wait failed.
	assert.Zero(t, s.calls["Click"])
}

func TestPressKey(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, false)

	t.Run("Returns Markup On Success", func(t *testing.T) {
		s := newFakeSession()
		out, err := d.PressKey(ctx, s, "Enter")
		require.NoError(t, err)
		assert.Equal(t, s.html, out)
	})

	t.Run("Propagates Error Without Retry", func(t *testing.T) {
		s := newFakeSession()
		s.failures["KeyPress"] = -1
		_, err := d.PressKey(ctx, s, "Enter")
		require.Error(t, err)
		assert.Equal(t, 1, s.calls["KeyPress"])
	})

	t.Run("Not Safe Mode Gated", func(t *testing.T) {
		ds := newTestDispatcher(t, true)
		s := newFakeSession()
		out, err := ds.PressKey(ctx, s, "Tab")
		require.NoError(t, err)
		assert.Equal(t, s.html, out)
	})
}

func TestDiscoverForms(t *testing.T) {
	ctx := context.Background()
	d := newTestDispatcher(t, false)

	t.Run("Returns Script Output", func(t *testing.T) {
		s := newFakeSession()
		s.evalOut = `[{"index":0,"method":"POST","action":"/login","fields":[]}]`
		assert.JSONEq(t, s.evalOut.(string), d.DiscoverForms(ctx, s))
	})

	t.Run("Failure Tagged", func(t *testing.T) {
		s := newFakeSession()
		s.failures["Evaluate"] = -1
		out := d.DiscoverForms(ctx, s)
		assert.True(t, strings.HasPrefix(out, "DISCOVER_FORMS_ERROR: "), "got %q", out)
	})
}

func TestOperatorInteractions(t *testing.T) {
	d := newTestDispatcher(t, false)
	p := &fakePrompter{}
	d.SetPrompter(p)

	assert.Equal(t, ObservationInputDone, d.GetUserInput("enter the OTP: "))
	assert.Equal(t, ObservationAuthDone, d.AuthNeeded())
	require.Len(t, p.prompts, 2)
	assert.Equal(t, "enter the OTP: ", p.prompts[0])

	// Prompter errors do not change the observations.
	p.err = errors.New("stdin closed")
	assert.Equal(t, ObservationInputDone, d.GetUserInput("again: "))
}

func TestComplete(t *testing.T) {
	d := newTestDispatcher(t, false)
	assert.Equal(t, "Completed", d.Complete())
}
