// File: internal/validator/validator.go

// Package validator judges agent transcripts for proven exploits and
// produces the report and crawl artifacts for a scan.
package validator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
	"github.com/roguesec/rogue/internal/config"
)

const reportDelimiter = "\n\n-------\n\n"

// Validator runs the two-stage judge/parse protocol against the reasoning
// service and persists the findings that survive it.
type Validator struct {
	logger   *zap.Logger
	client   schemas.ReasoningClient
	target   string
	outDir   string
	baseName string

	includeThirdParty bool
	exportCSV         bool

	reports []string
}

// New builds a Validator for a single target. The base filename is derived
// from the target URL with the scheme stripped and slashes flattened.
func New(cfg *config.Config, client schemas.ReasoningClient, logger *zap.Logger) *Validator {
	return &Validator{
		logger:   logger.Named("validator"),
		client:   client,
		target:   cfg.Scan.TargetURL,
		outDir:   cfg.Scan.OutputDir,
		baseName: SanitizeTarget(cfg.Scan.TargetURL),

		includeThirdParty: cfg.Scan.IncludeThirdParty,
		exportCSV:         cfg.Scan.ExportCSV,
	}
}

// SanitizeTarget turns a target URL into a filesystem-safe base name.
func SanitizeTarget(target string) string {
	s := strings.TrimPrefix(target, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.ReplaceAll(s, "/", "_")
}

// Reports returns the findings accepted so far, in acceptance order.
func (v *Validator) Reports() []string {
	out := make([]string, len(v.reports))
	copy(out, v.reports)
	return out
}

// Report judges a transcript. Stage one asks the reasoning service, under a
// strict rubric, whether the transcript proves a working exploit; stage two
// classifies the judge's prose with an independent call. A positive verdict
// appends the report and rewrites the report file.
func (v *Validator) Report(ctx context.Context, history []schemas.Message) (schemas.Verdict, error) {
	msgs := make([]schemas.Message, 0, len(history)+2)
	msgs = append(msgs, schemas.Message{Role: schemas.RoleSystem, Content: judgeSystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, schemas.Message{Role: schemas.RoleUser, Content: judgeTrailingRequest})

	report, err := v.client.Reason(ctx, msgs)
	if err != nil {
		return schemas.Verdict{}, fmt.Errorf("judge stage: %w", err)
	}

	proven, err := v.parseReport(ctx, report)
	if err != nil {
		return schemas.Verdict{}, fmt.Errorf("parse stage: %w", err)
	}

	if proven {
		v.reports = append(v.reports, report)
		if err := v.saveReports(); err != nil {
			return schemas.Verdict{}, err
		}
		v.logger.Info("Exploit report accepted", zap.Int("total_reports", len(v.reports)))
	} else {
		v.logger.Debug("Report rejected by parse stage")
	}

	return schemas.Verdict{Proven: proven, Report: report}, nil
}

// parseReport classifies a judge-stage report with a second reasoning call.
// The reply is lower-cased and tested for the substring "yes"; the loose
// containment match is intentional and covered by tests.
func (v *Validator) parseReport(ctx context.Context, report string) (bool, error) {
	msgs := []schemas.Message{
		{Role: schemas.RoleSystem, Content: parseSystemPrompt},
		{Role: schemas.RoleUser, Content: report},
	}
	resp, err := v.client.Reason(ctx, msgs)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(resp), "yes"), nil
}

// saveReports rewrites the report file from scratch with every accepted
// report, joined by the section delimiter.
func (v *Validator) saveReports() error {
	if err := os.MkdirAll(v.outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(v.outDir, v.baseName+".txt")
	content := strings.Join(v.reports, reportDelimiter)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing report file: %w", err)
	}
	return nil
}

// GenerateSummary reads the accumulated report file and asks the reasoning
// service for a Markdown summary, which is written next to the reports. A
// missing report file is summarized as having no findings rather than
// treated as an error.
func (v *Validator) GenerateSummary(ctx context.Context) (string, error) {
	content := "No vulns were reported."
	raw, err := os.ReadFile(filepath.Join(v.outDir, v.baseName+".txt"))
	if err == nil {
		content = string(raw)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading report file: %w", err)
	}

	msgs := []schemas.Message{
		{Role: schemas.RoleSystem, Content: summarySystemPrompt},
		{Role: schemas.RoleUser, Content: content},
	}
	summary, err := v.client.Reason(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("summary stage: %w", err)
	}

	if err := os.MkdirAll(v.outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	path := filepath.Join(v.outDir, v.baseName+"_summary.md")
	if err := os.WriteFile(path, []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("writing summary file: %w", err)
	}
	v.logger.Info("Summary report written", zap.String("path", path))
	return summary, nil
}
