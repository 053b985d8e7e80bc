// File: api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// SessionContext is the live browsing session the action dispatcher executes
// against. The dispatcher never creates or destroys one; the caller owns the
// lifecycle. Implementations drive a real browser tab over CDP.
type SessionContext interface {
	// Navigate loads the URL and waits for the load event.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Reload refreshes the current document.
	Reload(ctx context.Context, timeout time.Duration) error
	// WaitSelector blocks until the selector matches a visible element.
	WaitSelector(ctx context.Context, selector string, timeout time.Duration) error
	// Click dispatches a click on the first element matching the selector.
	Click(ctx context.Context, selector string, timeout time.Duration) error
	// Fill sets the value of the form field matching the selector.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	// SubmitClick clicks the located element to submit its form.
	SubmitClick(ctx context.Context, selector string, timeout time.Duration) error
	// Evaluate runs a script in the page and stores the result in out (may be nil).
	Evaluate(ctx context.Context, script string, timeout time.Duration, out interface{}) error
	// KeyPress dispatches a keyboard key to the focused element.
	KeyPress(ctx context.Context, key string) error
	// InnerHTML returns the markup under the given root selector.
	InnerHTML(ctx context.Context, root string) (string, error)
	// URL returns the current document location.
	URL(ctx context.Context) (string, error)
	// UserAgent returns the session's user agent string.
	UserAgent(ctx context.Context) (string, error)
	// Cookies returns the cookies visible to the session.
	Cookies(ctx context.Context) ([]Cookie, error)
}

// Cookie is the subset of cookie state exposed to the sandboxed interpreter.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	HTTPOnly bool   `json:"http_only"`
	Secure   bool   `json:"secure"`
}

// ReasoningClient is the opaque natural-language capability consumed for
// judging, parsing, and summarizing text. Given an ordered list of role/content
// messages it returns generated text.
type ReasoningClient interface {
	Reason(ctx context.Context, messages []Message) (string, error)
}

// NetworkRecorder supplies the raw traffic records the crawl summarizer reads.
type NetworkRecorder interface {
	NetworkData() NetworkData
}
