// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/internal/config"
)

// Manager owns the browser process and hands out isolated tab sessions.
type Manager struct {
	cfg    config.Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	isClosed bool
}

// NewManager launches the browser allocator. Call Close to tear the process down.
func NewManager(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Manager, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Browser.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.Browser.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}
	if cfg.Network.ProxyEnabled && cfg.Network.ProxyAddr != "" {
		opts = append(opts, chromedp.ProxyServer("http://"+cfg.Network.ProxyAddr))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Manager{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}, nil
}

// NewSession opens a fresh tab and connects its capture layer.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isClosed {
		return nil, fmt.Errorf("browser manager is closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	// Force target creation so CDP is connected before anyone uses the session.
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(combine(tabCtx, startCtx)); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to initialize browser tab: %w", err)
	}

	s := newSession(tabCtx, tabCancel, m.cfg, m.logger)
	if m.cfg.Network.CaptureEnabled {
		s.harvester = NewHarvester(tabCtx, m.logger, m.cfg.Scan.SafeMode)
		if err := s.harvester.Start(startCtx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start traffic harvester: %w", err)
		}
	}

	m.sessions[s.ID()] = s
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
	}

	m.logger.Info("Browser session created", zap.String("session_id", s.ID()))
	return s, nil
}

// Close tears down all sessions and the browser process.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.isClosed {
		m.mu.Unlock()
		return
	}
	m.isClosed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	m.allocCancel()
	m.logger.Debug("Browser manager closed")
}

// combine derives a context from the chromedp tab context that is also
// cancelled when the caller's context is done. chromedp.Run needs the tab
// context's values, so the tab context must be the parent.
func combine(tabCtx, callerCtx context.Context) context.Context {
	combined, cancel := context.WithCancel(tabCtx)
	go func() {
		select {
		case <-callerCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined
}
