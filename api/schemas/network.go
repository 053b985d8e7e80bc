// File: api/schemas/network.go
package schemas

// Resource type classifications as reported by the capture layer. Only the
// AJAX-style types matter to endpoint extraction; the rest pass through.
const (
	ResourceTypeDocument = "document"
	ResourceTypeXHR      = "xhr"
	ResourceTypeFetch    = "fetch"
	ResourceTypeScript   = "script"
)

// RequestRecord is one observed outgoing request.
type RequestRecord struct {
	URL          string `json:"url"`
	Method       string `json:"method,omitempty"`
	ResourceType string `json:"resource_type"`
}

// ResponseRecord is one observed response. A Status of zero paired with the
// safe-mode marker header means the capture layer refused a mutating request.
type ResponseRecord struct {
	URL     string            `json:"url"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
}

// RequestResponsePair correlates a request with the response it produced,
// when the capture layer can make that association.
type RequestResponsePair struct {
	Request  RequestRecord  `json:"request"`
	Response ResponseRecord `json:"response"`
}

// NetworkData is the full traffic picture handed to the crawl summarizer.
type NetworkData struct {
	Requests  []RequestRecord       `json:"requests"`
	Responses []ResponseRecord      `json:"responses"`
	Pairs     []RequestResponsePair `json:"pairs,omitempty"`
}

// SafeModeMarker is embedded in synthetic responses for blocked mutations.
// The crawl summarizer counts occurrences with a best-effort substring scan
// over the serialized record rather than a structured field.
const SafeModeMarker = "SAFE_MODE"
