// File: internal/browser/session.go
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
	"github.com/roguesec/rogue/internal/config"
)

// Session is one live browser tab implementing schemas.SessionContext.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.Config
	logger *zap.Logger

	harvester *Harvester
	onClose   func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.SessionContext = (*Session)(nil)

// namedKeys maps the key names agents use to the CDP key runes.
var namedKeys = map[string]string{
	"Enter":      kb.Enter,
	"Tab":        kb.Tab,
	"Escape":     kb.Escape,
	"Backspace":  kb.Backspace,
	"Delete":     kb.Delete,
	"ArrowUp":    kb.ArrowUp,
	"ArrowDown":  kb.ArrowDown,
	"ArrowLeft":  kb.ArrowLeft,
	"ArrowRight": kb.ArrowRight,
	"PageUp":     kb.PageUp,
	"PageDown":   kb.PageDown,
	"Home":       kb.Home,
	"End":        kb.End,
}

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.Config, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", id[:8])),
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Harvester returns the traffic recorder attached to this session, or nil when
// capture is disabled.
func (s *Session) Harvester() *Harvester { return s.harvester }

// Close terminates the tab. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return
	}
	s.isClosed = true
	s.mu.Unlock()

	if s.harvester != nil {
		s.harvester.Stop()
	}
	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Debug("Browser session closed")
}

// run executes chromedp actions bounded by the caller's context and timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx := combine(s.ctx, ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(opCtx, timeout)
		defer cancel()
	}
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads the URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	return s.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Reload refreshes the current document.
func (s *Session) Reload(ctx context.Context, timeout time.Duration) error {
	return s.run(ctx, timeout,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitSelector blocks until the selector matches a visible element.
func (s *Session) WaitSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Click dispatches a click on the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Fill sets the value of the form field matching the selector.
func (s *Session) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return s.run(ctx, timeout,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// SubmitClick clicks the located element to submit its form.
func (s *Session) SubmitClick(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Click(selector, chromedp.ByQuery))
}

// Evaluate runs a script in the page. Callable scripts are invoked; promises
// are awaited. A nil out discards the result.
func (s *Session) Evaluate(ctx context.Context, script string, timeout time.Duration, out interface{}) error {
	expr := script
	if isCallable(script) {
		expr = "(" + script + ")()"
	}
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	return s.run(ctx, timeout, chromedp.Evaluate(expr, out, awaitPromise))
}

// isCallable reports whether the script text is a function value that must be
// invoked rather than evaluated as a bare expression.
func isCallable(script string) bool {
	t := strings.TrimSpace(script)
	return strings.HasPrefix(t, "(() =>") ||
		strings.HasPrefix(t, "() =>") ||
		strings.HasPrefix(t, "async ") ||
		strings.HasPrefix(t, "function")
}

// KeyPress dispatches a keyboard key to the focused element. Well-known key
// names are translated to their CDP runes; anything else is sent as typed text.
func (s *Session) KeyPress(ctx context.Context, key string) error {
	keys := key
	if mapped, ok := namedKeys[key]; ok {
		keys = mapped
	}
	return s.run(ctx, s.cfg.Browser.DefaultTimeout, chromedp.KeyEvent(keys))
}

// InnerHTML returns the markup under the given root selector.
func (s *Session) InnerHTML(ctx context.Context, root string) (string, error) {
	var html string
	err := s.run(ctx, s.cfg.Browser.DefaultTimeout, chromedp.InnerHTML(root, &html, chromedp.ByQuery))
	return html, err
}

// URL returns the current document location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, s.cfg.Browser.DefaultTimeout, chromedp.Location(&loc))
	return loc, err
}

// UserAgent returns the session's user agent string.
func (s *Session) UserAgent(ctx context.Context) (string, error) {
	var ua string
	err := s.Evaluate(ctx, "navigator.userAgent", s.cfg.Browser.DefaultTimeout, &ua)
	return ua, err
}

// Cookies returns the cookies visible to the session.
func (s *Session) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var out []schemas.Cookie
	err := s.run(ctx, s.cfg.Browser.DefaultTimeout, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := network.GetCookies().Do(c)
		if err != nil {
			return err
		}
		out = make([]schemas.Cookie, 0, len(cookies))
		for _, ck := range cookies {
			out = append(out, schemas.Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
			})
		}
		return nil
	}))
	return out, err
}
