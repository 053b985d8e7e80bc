// File: internal/validator/crawl.go
package validator

import (
	"encoding/csv"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/roguesec/rogue/api/schemas"
)

const mdListLimit = 200

// GenerateSafeCrawlSummary builds read-only crawl artifacts from captured
// network data and discovered forms. No reasoning calls are involved; the
// output is a pure function of the capture. JSON and Markdown files are
// always written, CSV exports only when enabled for the scan.
func (v *Validator) GenerateSafeCrawlSummary(data schemas.NetworkData, formsJSON string) (*schemas.CrawlSummary, error) {
	outDir := filepath.Join(v.outDir, "safe_crawl")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating crawl output dir: %w", err)
	}
	ts := time.Now().UTC().Format("20060102T150405Z")
	base := v.baseName + "_" + ts

	summary := v.buildCrawlSummary(data, formsJSON, ts)

	jsonPath := filepath.Join(outDir, base+".json")
	raw, err := jsoniter.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding crawl summary: %w", err)
	}
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("writing crawl summary json: %w", err)
	}

	mdPath := filepath.Join(outDir, base+".md")
	if err := os.WriteFile(mdPath, []byte(renderCrawlMarkdown(summary)), 0o644); err != nil {
		return nil, fmt.Errorf("writing crawl summary markdown: %w", err)
	}

	if v.exportCSV {
		if err := writeEndpointsCSV(filepath.Join(outDir, base+"_endpoints.csv"), summary.JSEndpoints); err != nil {
			return nil, err
		}
		if err := writeFormsCSV(filepath.Join(outDir, base+"_forms.csv"), formsJSON); err != nil {
			return nil, err
		}
	}

	v.logger.Info("Safe crawl artifacts written",
		zap.String("json", jsonPath),
		zap.Int("visited_urls", len(summary.VisitedURLs)),
		zap.Int("js_endpoints", len(summary.JSEndpoints)),
		zap.Int("blocked_non_get", summary.BlockedNonGETAttempts))
	return summary, nil
}

func (v *Validator) buildCrawlSummary(data schemas.NetworkData, formsJSON, ts string) *schemas.CrawlSummary {
	startHost := hostOf(v.target)

	sameOrigin := func(u string) bool {
		return hostOf(u) == startHost && startHost != ""
	}

	var visited, endpoints []string
	for _, req := range data.Requests {
		if req.URL == "" {
			continue
		}
		if !v.includeThirdParty && !sameOrigin(req.URL) {
			continue
		}
		visited = append(visited, stripFragment(req.URL))
		if req.ResourceType == schemas.ResourceTypeXHR || req.ResourceType == schemas.ResourceTypeFetch {
			endpoints = append(endpoints, stripFragment(req.URL))
		}
	}

	blocked := 0
	headerCounts := map[string]int{}
	for _, res := range data.Responses {
		if res.Status == 0 && containsSafeModeMarker(res) {
			blocked++
		}
		for name := range res.Headers {
			headerCounts[strings.ToLower(name)]++
		}
	}

	return &schemas.CrawlSummary{
		Target:                v.target,
		GeneratedAt:           ts,
		VisitedURLs:           sortedUnique(visited),
		JSEndpoints:           sortedUnique(endpoints),
		FormsJSON:             formsJSON,
		CommonResponseHeaders: topHeaders(headerCounts, 15),
		BlockedNonGETAttempts: blocked,
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// containsSafeModeMarker reports whether the serialized response carries the
// safe-mode marker anywhere in its fields, matching how blocked requests are
// recorded by the capture layer.
func containsSafeModeMarker(res schemas.ResponseRecord) bool {
	raw, err := jsoniter.MarshalToString(res)
	if err != nil {
		return false
	}
	return strings.Contains(raw, schemas.SafeModeMarker)
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// topHeaders returns the n most frequent header names, most frequent first,
// ties broken by name ascending so the output is stable.
func topHeaders(counts map[string]int, n int) []schemas.HeaderCount {
	out := make([]schemas.HeaderCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, schemas.HeaderCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func renderCrawlMarkdown(s *schemas.CrawlSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Safe Crawl Summary - %s\n", s.Target)
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt)

	b.WriteString("## Visited URLs\n")
	for _, u := range capList(s.VisitedURLs, mdListLimit) {
		fmt.Fprintf(&b, "- %s\n", u)
	}

	b.WriteString("\n## JS Endpoints (XHR/Fetch)\n")
	for _, u := range capList(s.JSEndpoints, mdListLimit) {
		fmt.Fprintf(&b, "- %s\n", u)
	}

	b.WriteString("\n## Forms (JSON)\n")
	fmt.Fprintf(&b, "```json\n%s\n```\n", s.FormsJSON)

	b.WriteString("\n## Common Response Headers\n")
	for _, h := range s.CommonResponseHeaders {
		fmt.Fprintf(&b, "- %s: %d\n", h.Name, h.Count)
	}

	fmt.Fprintf(&b, "\nBlocked non-GET attempts: %d\n", s.BlockedNonGETAttempts)
	return b.String()
}

func capList(in []string, limit int) []string {
	if len(in) > limit {
		return in[:limit]
	}
	return in
}

func writeEndpointsCSV(path string, endpoints []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating endpoints csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"url"}); err != nil {
		return fmt.Errorf("writing endpoints csv: %w", err)
	}
	for _, u := range endpoints {
		if err := w.Write([]string{u}); err != nil {
			return fmt.Errorf("writing endpoints csv: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeFormsCSV(path string, formsJSON string) error {
	var forms []schemas.Form
	// A malformed forms payload degrades to an empty export, same as the
	// JSON artifact carrying it verbatim.
	_ = jsoniter.UnmarshalFromString(formsJSON, &forms)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating forms csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"form_index", "method", "action", "field_tag", "field_type", "name", "id", "placeholder", "required"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing forms csv: %w", err)
	}
	for _, form := range forms {
		for _, fld := range form.Fields {
			row := []string{
				strconv.Itoa(form.Index),
				form.Method,
				form.Action,
				fld.Tag,
				fld.Type,
				fld.Name,
				fld.ID,
				fld.Placeholder,
				strconv.FormatBool(fld.Required),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("writing forms csv: %w", err)
			}
		}
	}
	w.Flush()
	return w.Error()
}
