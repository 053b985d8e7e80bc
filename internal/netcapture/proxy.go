// File: internal/netcapture/proxy.go

// Package netcapture records HTTP traffic through a forward proxy and, in
// safe mode, refuses mutating requests before they leave the machine. It is
// the capture path for clients that do not run inside the instrumented
// browser tab.
package netcapture

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roguesec/rogue/api/schemas"
	"github.com/roguesec/rogue/internal/config"
)

const blockedHeader = "x-rogue-blocked"

// RecordingProxy is a forward HTTP proxy that mirrors every request and
// response into a NetworkData snapshot. With safe mode on, non-GET requests
// are answered locally with a refusal and recorded as a blocked attempt.
type RecordingProxy struct {
	logger   *zap.Logger
	proxy    *goproxy.ProxyHttpServer
	server   *http.Server
	addr     string
	safeMode bool

	mu        sync.Mutex
	requests  []schemas.RequestRecord
	responses []schemas.ResponseRecord
	pairs     []schemas.RequestResponsePair
	inflight  map[int64]schemas.RequestRecord
}

// New builds a RecordingProxy from the network section of the config. The
// proxy does not listen until Start is called.
func New(cfg *config.Config, logger *zap.Logger) *RecordingProxy {
	p := &RecordingProxy{
		logger:   logger.Named("netcapture"),
		proxy:    goproxy.NewProxyHttpServer(),
		addr:     cfg.Network.ProxyAddr,
		safeMode: cfg.Scan.SafeMode,
		inflight: make(map[int64]schemas.RequestRecord),
	}
	p.proxy.OnRequest().DoFunc(p.handleRequest)
	p.proxy.OnResponse().DoFunc(p.handleResponse)
	return p
}

// Addr returns the address the proxy is configured to listen on.
func (p *RecordingProxy) Addr() string { return p.addr }

// Start serves the proxy until ctx is cancelled, then shuts the listener
// down and returns. A nil return means a clean shutdown.
func (p *RecordingProxy) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("netcapture listen on %s: %w", p.addr, err)
	}
	p.server = &http.Server{Handler: p.proxy}
	p.logger.Info("Capture proxy listening", zap.String("addr", ln.Addr().String()), zap.Bool("safe_mode", p.safeMode))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("netcapture serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (p *RecordingProxy) handleRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	rec := schemas.RequestRecord{
		URL:          r.URL.String(),
		Method:       r.Method,
		ResourceType: classifyRequest(r),
	}

	p.mu.Lock()
	p.requests = append(p.requests, rec)
	if ctx != nil {
		p.inflight[ctx.Session] = rec
	}
	p.mu.Unlock()

	if p.safeMode && r.Method != http.MethodGet {
		p.recordBlocked(rec, ctx)
		p.logger.Warn("Blocked mutating request",
			zap.String("method", r.Method),
			zap.String("url", rec.URL))
		return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusForbidden,
			fmt.Sprintf("%s: non-GET request blocked", schemas.SafeModeMarker))
	}
	return r, nil
}

func (p *RecordingProxy) handleResponse(r *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if r == nil {
		return nil
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}
	rec := schemas.ResponseRecord{
		Status:  r.StatusCode,
		Headers: headers,
	}
	if r.Request != nil && r.Request.URL != nil {
		rec.URL = r.Request.URL.String()
	}

	p.mu.Lock()
	p.responses = append(p.responses, rec)
	if ctx != nil {
		if req, ok := p.inflight[ctx.Session]; ok {
			p.pairs = append(p.pairs, schemas.RequestResponsePair{Request: req, Response: rec})
			delete(p.inflight, ctx.Session)
		}
	}
	p.mu.Unlock()
	return r
}

// recordBlocked stores the synthetic zero-status response the crawl
// summarizer counts as a blocked mutation.
func (p *RecordingProxy) recordBlocked(req schemas.RequestRecord, ctx *goproxy.ProxyCtx) {
	rec := schemas.ResponseRecord{
		URL:    req.URL,
		Status: 0,
		Headers: map[string]string{
			blockedHeader: fmt.Sprintf("%s non-GET %s blocked", schemas.SafeModeMarker, strings.ToLower(req.Method)),
		},
	}
	p.mu.Lock()
	p.responses = append(p.responses, rec)
	p.pairs = append(p.pairs, schemas.RequestResponsePair{Request: req, Response: rec})
	if ctx != nil {
		delete(p.inflight, ctx.Session)
	}
	p.mu.Unlock()
}

// NetworkData returns a point-in-time copy of everything recorded so far.
func (p *RecordingProxy) NetworkData() schemas.NetworkData {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := schemas.NetworkData{
		Requests:  make([]schemas.RequestRecord, len(p.requests)),
		Responses: make([]schemas.ResponseRecord, len(p.responses)),
		Pairs:     make([]schemas.RequestResponsePair, len(p.pairs)),
	}
	copy(out.Requests, p.requests)
	copy(out.Responses, p.responses)
	copy(out.Pairs, p.pairs)
	return out
}

// classifyRequest maps fetch-metadata headers onto the resource types the
// summarizer understands. Browsers send Sec-Fetch-Dest on modern requests;
// anything unclassifiable is treated as a plain document fetch.
func classifyRequest(r *http.Request) string {
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "empty":
		if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
			return schemas.ResourceTypeXHR
		}
		return schemas.ResourceTypeFetch
	case "script":
		return schemas.ResourceTypeScript
	case "document":
		return schemas.ResourceTypeDocument
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return schemas.ResourceTypeXHR
	}
	return schemas.ResourceTypeDocument
}
