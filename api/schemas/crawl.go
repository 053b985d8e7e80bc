// File: api/schemas/crawl.go
package schemas

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// HeaderCount is one (header name, occurrence count) pair. It serializes as a
// two-element JSON array so the artifact shape stays pipeline-compatible.
type HeaderCount struct {
	Name  string
	Count int
}

// MarshalJSON emits the pair as ["name", count].
func (h HeaderCount) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal([2]interface{}{h.Name, h.Count})
}

// UnmarshalJSON reads the ["name", count] pair form.
func (h *HeaderCount) UnmarshalJSON(data []byte) error {
	var raw [2]interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, ok := raw[0].(string)
	if !ok {
		return fmt.Errorf("header count pair: first element must be a string")
	}
	count, ok := raw[1].(float64)
	if !ok {
		return fmt.Errorf("header count pair: second element must be a number")
	}
	h.Name = name
	h.Count = int(count)
	return nil
}

// CrawlSummary is the deterministic, non-LLM aggregation of observed traffic.
// URLs are deduplicated after fragment stripping; header names are case-folded
// before counting and CommonResponseHeaders is capped at the 15 most frequent.
type CrawlSummary struct {
	Target                string        `json:"target"`
	GeneratedAt           string        `json:"generated_at"`
	VisitedURLs           []string      `json:"visited_urls"`
	JSEndpoints           []string      `json:"js_endpoints"`
	FormsJSON             string        `json:"forms_json"`
	CommonResponseHeaders []HeaderCount `json:"common_response_headers"`
	BlockedNonGETAttempts int           `json:"blocked_non_get_attempts"`
}
