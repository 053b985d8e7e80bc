// File: internal/orchestrator/orchestrator.go

// Package orchestrator drives a scan end to end: it opens a browser session
// on the target, runs the reasoning loop that picks one tool call per
// iteration, and hands the transcript to the validator when the loop ends.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
	"github.com/roguesec/rogue/internal/browser"
	"github.com/roguesec/rogue/internal/config"
	"github.com/roguesec/rogue/internal/dispatcher"
	"github.com/roguesec/rogue/internal/validator"
)

// agentSystemPrompt frames the reasoning service as a tester that answers
// with exactly one tool call per turn. The tool surface mirrors the
// dispatcher's allow-list.
const agentSystemPrompt = `
You are a web application security testing agent operating a real browser session. Each turn you receive the current page state or the result of your last action, and you respond with EXACTLY ONE tool call and nothing else.

Available tools:
- execute_js(page, js_code) - run JavaScript in the page and get the result
- click(page, "css_selector") - click an element
- fill(page, "css_selector", "value") - fill an input
- submit(page, "css_selector") - click a submit element
- goto(page, "url") - navigate to a URL
- refresh(page) - reload the current page
- presskey(page, "key") - press a keyboard key
- python_interpreter("code") - run code in a sandboxed interpreter
- discover_forms(page) - list the forms on the current page as JSON
- get_user_input("message") - ask the human operator for input
- auth_needed() - pause for the human operator to authenticate
- complete() - finish testing when you have proven a finding or exhausted your ideas

Work methodically: understand the page, probe inputs and endpoints, and when you believe you have proven an exploitable issue, collect concrete evidence before calling complete(). Call complete() when done.
`

// maxObservation bounds how much page markup is fed back per turn so the
// transcript stays within model context.
const maxObservation = 20000

// Orchestrator owns the per-scan wiring between the browser, the action
// dispatcher, the reasoning service, and the validator.
type Orchestrator struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     schemas.ReasoningClient
	manager    *browser.Manager
	dispatcher *dispatcher.Dispatcher
	validator  *validator.Validator
}

// New assembles an Orchestrator from already-constructed components.
func New(cfg *config.Config, logger *zap.Logger, client schemas.ReasoningClient, mgr *browser.Manager, disp *dispatcher.Dispatcher, val *validator.Validator) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		client:     client,
		manager:    mgr,
		dispatcher: disp,
		validator:  val,
	}
}

// Run executes a full scan against the configured target and returns the
// final verdict. Reasoning failures abort the scan; action failures are
// observations the loop feeds back to the model.
func (o *Orchestrator) Run(ctx context.Context) (schemas.Verdict, error) {
	session, err := o.manager.NewSession(ctx)
	if err != nil {
		return schemas.Verdict{}, fmt.Errorf("opening browser session: %w", err)
	}
	defer session.Close()

	target := o.cfg.Scan.TargetURL
	o.logger.Info("Starting scan", zap.String("target", target), zap.Bool("safe_mode", o.cfg.Scan.SafeMode))

	initial := o.dispatcher.Goto(ctx, session, target)
	transcript := []schemas.Message{
		{Role: schemas.RoleSystem, Content: agentSystemPrompt},
		{Role: schemas.RoleUser, Content: fmt.Sprintf("Target: %s\n\nCurrent page:\n%s", target, clip(initial, maxObservation))},
	}

	for i := 0; i < o.cfg.Agent.MaxIterations; i++ {
		reply, err := o.client.Reason(ctx, transcript)
		if err != nil {
			return schemas.Verdict{}, fmt.Errorf("reasoning at iteration %d: %w", i, err)
		}
		reply = strings.TrimSpace(reply)
		transcript = append(transcript, schemas.Message{Role: schemas.RoleAssistant, Content: reply})
		o.logger.Debug("Agent action", zap.Int("iteration", i), zap.String("call", clip(reply, 200)))

		observation := o.dispatcher.Dispatch(ctx, session, reply)
		if observation == dispatcher.ObservationComplete {
			o.logger.Info("Agent declared completion", zap.Int("iterations", i+1))
			break
		}
		transcript = append(transcript, schemas.Message{Role: schemas.RoleUser, Content: clip(observation, maxObservation)})
	}

	verdict, err := o.validator.Report(ctx, transcript)
	if err != nil {
		return schemas.Verdict{}, fmt.Errorf("validating transcript: %w", err)
	}
	o.logger.Info("Scan judged", zap.Bool("proven", verdict.Proven))

	if _, err := o.validator.GenerateSummary(ctx); err != nil {
		return verdict, fmt.Errorf("generating summary: %w", err)
	}

	if o.cfg.Scan.SafeMode && o.cfg.Network.CaptureEnabled {
		if err := o.writeCrawlArtifacts(ctx, session); err != nil {
			return verdict, err
		}
	}
	return verdict, nil
}

// writeCrawlArtifacts snapshots the session's captured traffic and the forms
// on the final page into the safe-crawl summary files.
func (o *Orchestrator) writeCrawlArtifacts(ctx context.Context, session *browser.Session) error {
	harvester := session.Harvester()
	if harvester == nil {
		o.logger.Warn("No network capture attached, skipping crawl artifacts")
		return nil
	}
	formsJSON := o.dispatcher.DiscoverForms(ctx, session)
	if strings.HasPrefix(formsJSON, "DISCOVER_FORMS_ERROR") {
		formsJSON = "[]"
	}
	if _, err := o.validator.GenerateSafeCrawlSummary(harvester.NetworkData(), formsJSON); err != nil {
		return fmt.Errorf("writing crawl artifacts: %w", err)
	}
	return nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... [truncated]"
}
