// File: internal/browser/harvester.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
)

// Harvester listens to CDP events on one tab and accumulates the request and
// response records the crawl summarizer consumes. In safe mode it also
// intercepts mutating xhr/fetch requests and fails them before they leave the
// browser, recording a synthetic status-zero response carrying the safe-mode
// marker.
type Harvester struct {
	logger   *zap.Logger
	safeMode bool

	sessionCtx     context.Context
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	mu        sync.RWMutex
	requests  []schemas.RequestRecord
	responses []schemas.ResponseRecord
	pairs     map[network.RequestID]schemas.RequestRecord
	data      schemas.NetworkData
	isStarted bool
}

var _ schemas.NetworkRecorder = (*Harvester)(nil)

// NewHarvester creates a traffic recorder for a specific tab.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger, safeMode bool) *Harvester {
	return &Harvester{
		sessionCtx: sessionCtx,
		logger:     logger.Named("harvester"),
		safeMode:   safeMode,
		pairs:      make(map[network.RequestID]schemas.RequestRecord),
	}
}

// Start enables the CDP domains and begins listening.
func (h *Harvester) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isStarted {
		return nil
	}

	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)
	go h.listen()

	actions := []chromedp.Action{network.Enable()}
	if h.safeMode {
		// Pause every request at the request stage so mutating xhr/fetch can
		// be refused before leaving the browser.
		actions = append(actions, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageRequest},
		}))
	}

	if err := chromedp.Run(combine(h.sessionCtx, ctx), actions...); err != nil {
		h.cancelListener()
		return fmt.Errorf("failed to enable capture domains: %w", err)
	}

	h.isStarted = true
	h.logger.Debug("Harvester started", zap.Bool("safe_mode", h.safeMode))
	return nil
}

func (h *Harvester) listen() {
	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			h.handleRequest(e)
		case *network.EventResponseReceived:
			h.handleResponse(e)
		case *fetch.EventRequestPaused:
			// CDP calls cannot run inside the event callback without
			// deadlocking the target handler.
			go h.handlePaused(e)
		}
	})
}

func (h *Harvester) handleRequest(e *network.EventRequestWillBeSent) {
	rec := schemas.RequestRecord{
		URL:          e.Request.URL,
		Method:       e.Request.Method,
		ResourceType: strings.ToLower(string(e.Type)),
	}
	h.mu.Lock()
	h.requests = append(h.requests, rec)
	h.pairs[e.RequestID] = rec
	h.mu.Unlock()
}

func (h *Harvester) handleResponse(e *network.EventResponseReceived) {
	headers := make(map[string]string, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		headers[k] = fmt.Sprint(v)
	}
	rec := schemas.ResponseRecord{
		URL:     e.Response.URL,
		Status:  int(e.Response.Status),
		Headers: headers,
	}

	h.mu.Lock()
	h.responses = append(h.responses, rec)
	if req, ok := h.pairs[e.RequestID]; ok {
		h.data.Pairs = append(h.data.Pairs, schemas.RequestResponsePair{Request: req, Response: rec})
		delete(h.pairs, e.RequestID)
	}
	h.mu.Unlock()
}

// handlePaused continues or fails an intercepted request. Only mutating
// xhr/fetch traffic is refused; everything else flows through untouched.
func (h *Harvester) handlePaused(e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(h.sessionCtx)
	if c == nil {
		return
	}
	execCtx := cdp.WithExecutor(h.sessionCtx, c.Target)

	resourceType := strings.ToLower(string(e.ResourceType))
	mutating := e.Request.Method != http.MethodGet &&
		(resourceType == schemas.ResourceTypeXHR || resourceType == schemas.ResourceTypeFetch)

	if !mutating {
		if err := fetch.ContinueRequest(e.RequestID).Do(execCtx); err != nil && h.listenerCtx.Err() == nil {
			h.logger.Debug("Failed to continue intercepted request", zap.Error(err))
		}
		return
	}

	h.logger.Info("Blocked mutating request in safe mode",
		zap.String("method", e.Request.Method), zap.String("url", e.Request.URL))

	if err := fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx); err != nil &&
		h.listenerCtx.Err() == nil {
		h.logger.Debug("Failed to fail intercepted request", zap.Error(err))
	}

	h.mu.Lock()
	h.responses = append(h.responses, schemas.ResponseRecord{
		URL:    e.Request.URL,
		Status: 0,
		Headers: map[string]string{
			"x-rogue-blocked": schemas.SafeModeMarker + " non-GET " + resourceType + " blocked",
		},
	})
	h.mu.Unlock()
}

// NetworkData returns a snapshot of everything recorded so far.
func (h *Harvester) NetworkData() schemas.NetworkData {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := schemas.NetworkData{
		Requests:  append([]schemas.RequestRecord(nil), h.requests...),
		Responses: append([]schemas.ResponseRecord(nil), h.responses...),
		Pairs:     append([]schemas.RequestResponsePair(nil), h.data.Pairs...),
	}
	return out
}

// Stop ends event listening. Recorded data stays readable.
func (h *Harvester) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.isStarted {
		return
	}
	h.isStarted = false
	h.cancelListener()
	h.logger.Debug("Harvester stopped",
		zap.Int("requests", len(h.requests)), zap.Int("responses", len(h.responses)))
}
