// File: internal/dispatcher/call_test.go
package dispatcher

import (
	"context"
	"strings"
	"testing"
	"time"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall(t *testing.T) {
	t.Run("Simple Call", func(t *testing.T) {
		call, err := ParseToolCall(`refresh(page)`)
		require.NoError(t, err)
		assert.Equal(t, "refresh", call.Name)
		require.Len(t, call.Args, 1)
		assert.Equal(t, "page", call.Args[0].Value)
		assert.False(t, call.Args[0].Quoted)
	})

	t.Run("Quoted Arguments", func(t *testing.T) {
		call, err := ParseToolCall(`fill(page, "#user", 'admin'' OR 1=1--')`)
		require.NoError(t, err)
		assert.Equal(t, "fill", call.Name)
		require.Len(t, call.Args, 4)
		assert.Equal(t, "#user", call.Args[1].Value)
		assert.Equal(t, "admin", call.Args[2].Value)
	})

	t.Run("Triple Quoted String", func(t *testing.T) {
		call, err := ParseToolCall(`execute_js(page, """document.cookie = "a=1"; return document.cookie""")`)
		require.NoError(t, err)
		require.Len(t, call.Args, 2)
		assert.Equal(t, `document.cookie = "a=1"; return document.cookie`, call.Args[1].Value)
		assert.True(t, call.Args[1].Quoted)
	})

	t.Run("Backtick String Keeps Backslashes", func(t *testing.T) {
		call, err := ParseToolCall("execute_js(page, `a\\nb`)")
		require.NoError(t, err)
		require.Len(t, call.Args, 2)
		assert.Equal(t, `a\nb`, call.Args[1].Value)
	})

	t.Run("Escapes In Double Quotes", func(t *testing.T) {
		call, err := ParseToolCall(`fill(page, "#q", "line1\nline2")`)
		require.NoError(t, err)
		assert.Equal(t, "line1\nline2", call.Args[2].Value)
	})

	t.Run("Nested Parens In Bare Token", func(t *testing.T) {
		call, err := ParseToolCall(`execute_js(page, alert(document.domain))`)
		require.NoError(t, err)
		require.Len(t, call.Args, 2)
		assert.Equal(t, "alert(document.domain)", call.Args[1].Value)
	})

	t.Run("Unknown Tool Rejected", func(t *testing.T) {
		_, err := ParseToolCall(`delete_everything(page)`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
	})

	t.Run("Prose Rejected", func(t *testing.T) {
		_, err := ParseToolCall(`I will now click the login button.`)
		require.Error(t, err)
	})

	t.Run("Trailing Text Rejected", func(t *testing.T) {
		_, err := ParseToolCall(`complete() and then some`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected text")
	})

	t.Run("Unterminated Call Rejected", func(t *testing.T) {
		_, err := ParseToolCall(`click(page, "#a"`)
		require.Error(t, err)
	})

	t.Run("Unterminated String Rejected", func(t *testing.T) {
		_, err := ParseToolCall(`click(page, "#a)`)
		require.Error(t, err)
	})

	t.Run("Empty Argument List", func(t *testing.T) {
		call, err := ParseToolCall(`complete()`)
		require.NoError(t, err)
		assert.Empty(t, call.Args)
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Page Handle Stripped", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		out := d.Dispatch(ctx, s, `click(page, "#login")`)
		assert.Equal(t, s.html, out)
		assert.Equal(t, 1, s.calls["Click"])
	})

	t.Run("Parse Failure Becomes Observation", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		out := d.Dispatch(ctx, s, `sudo rm -rf /`)
		assert.True(t, strings.HasPrefix(out, "Error executing tool: "), "got %q", out)
		assert.Empty(t, s.calls)
	})

	t.Run("Arity Mismatch Becomes Observation", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		out := d.Dispatch(ctx, s, `fill(page, "#user")`)
		assert.True(t, strings.HasPrefix(out, "Error executing tool: "), "got %q", out)
	})

	t.Run("PressKey Error Becomes Observation", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		s := newFakeSession()
		s.failures["KeyPress"] = -1
		out := d.Dispatch(ctx, s, `presskey(page, "Enter")`)
		assert.True(t, strings.HasPrefix(out, "Error executing tool: "), "got %q", out)
	})

	t.Run("Complete Terminates", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		assert.Equal(t, ObservationComplete, d.Dispatch(ctx, newFakeSession(), `complete()`))
	})

	t.Run("Interpreter Gets Session Facts Only With Page Handle", func(t *testing.T) {
		d := newTestDispatcher(t, false)
		d.timeout = 5 * time.Second

		s := newFakeSession()
		out := d.Dispatch(ctx, s, "python_interpreter(page, `println(currentURL)`)")
		assert.Equal(t, s.url+"\n", out)

		s2 := newFakeSession()
		out = d.Dispatch(ctx, s2, "python_interpreter(`println(\"no session\")`)")
		assert.Equal(t, "no session\n", out)
		assert.Zero(t, s2.calls["URL"])
	})
}

func FuzzParseToolCall(f *testing.F) {
	f.Add([]byte(`click(page, "#a")`))
	f.Add([]byte(`execute_js(page, """return 1""")`))
	f.Add([]byte(`fill(page, '#user', 'a\tb')`))
	f.Add([]byte(`complete()`))
	f.Add([]byte(`goto(page`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fz := fuzz.NewConsumer(data)
		raw, err := fz.GetString()
		if err != nil {
			return
		}
		call, err := ParseToolCall(raw)
		if err != nil {
			return
		}
		// Every accepted call must name an allow-listed tool.
		if _, ok := toolNames[call.Name]; !ok {
			t.Fatalf("parser accepted unknown tool %q from %q", call.Name, raw)
		}
	})
}
