// File: internal/dispatcher/script.go
package dispatcher

import "strings"

// NormalizeScript rewrites agent-supplied JavaScript so it is valid for
// in-page evaluation. Reasoning models frequently emit a bare top-level
// `return`, which is an illegal statement outside a function body; that form
// is rewritten into a single-expression arrow function. Text that already
// looks like a function, and plain expressions, pass through trimmed but
// otherwise untouched. The transform is idempotent.
func NormalizeScript(code string) string {
	stripped := strings.TrimSpace(code)

	// Already a function, arrow, or IIFE: leave as is.
	if strings.HasPrefix(stripped, "(() =>") ||
		strings.HasPrefix(stripped, "() =>") ||
		strings.HasPrefix(stripped, "function") {
		return stripped
	}

	// Bare top-level return: wrap the remainder in an arrow function.
	if strings.HasPrefix(stripped, "return ") {
		return "() => " + strings.TrimPrefix(stripped, "return ")
	}

	// A simple expression is acceptable as is.
	return stripped
}
