// File: api/schemas/forms.go
package schemas

// FormField describes one input/select/textarea/button descendant of a form.
type FormField struct {
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	Required    bool   `json:"required"`
}

// Form is one discovered form element with its interactive descendants.
// The JSON shape matches what the in-page discovery script emits.
type Form struct {
	Index  int         `json:"index"`
	Method string      `json:"method"`
	Action string      `json:"action"`
	Fields []FormField `json:"fields"`
}
