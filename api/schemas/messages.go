// File: api/schemas/messages.go
package schemas

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one ordered entry in the run transcript exchanged between the
// orchestrator, the reasoning service, and the system under test.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Verdict is the terminal output of the two-stage validation protocol:
// a binary proven/not-proven classification plus the judge-stage report text.
type Verdict struct {
	Proven bool   `json:"proven"`
	Report string `json:"report"`
}
