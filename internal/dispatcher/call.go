// File: internal/dispatcher/call.go
package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/roguesec/rogue/api/schemas"
)

// Call is a resolved action request: an allow-listed operation name plus its
// parsed arguments. Nothing outside the allow-list ever reaches a session.
type Call struct {
	Name string
	Args []Arg
}

// Arg is one parsed argument. Quoted distinguishes string literals from bare
// tokens such as the `page` handle the reasoning service is instructed to pass.
type Arg struct {
	Value  string
	Quoted bool
}

// toolNames is the closed set of operations the dispatcher will execute.
var toolNames = map[string]struct{}{
	"execute_js":         {},
	"click":              {},
	"fill":               {},
	"submit":             {},
	"goto":               {},
	"refresh":            {},
	"presskey":           {},
	"python_interpreter": {},
	"discover_forms":     {},
	"get_user_input":     {},
	"auth_needed":        {},
	"complete":           {},
}

// ParseToolCall parses `name(arg, ...)` call syntax. Arguments may be single,
// double, backtick, or triple-quoted strings, or bare tokens; this is a
// deliberately minimal parser, not an expression evaluator. Anything it cannot
// account for is an error, and unknown names are rejected before any argument
// handling.
func ParseToolCall(raw string) (Call, error) {
	text := strings.TrimSpace(raw)
	open := strings.IndexByte(text, '(')
	if open <= 0 {
		return Call{}, fmt.Errorf("not a tool call: %q", truncateForError(text))
	}

	name := strings.TrimSpace(text[:open])
	if !isIdentifier(name) {
		return Call{}, fmt.Errorf("invalid tool name: %q", truncateForError(name))
	}
	if _, ok := toolNames[name]; !ok {
		return Call{}, fmt.Errorf("unknown tool: %q", name)
	}

	args, rest, err := parseArgs(text[open+1:])
	if err != nil {
		return Call{}, err
	}
	if strings.TrimSpace(rest) != "" {
		return Call{}, fmt.Errorf("unexpected text after call: %q", truncateForError(rest))
	}
	return Call{Name: name, Args: args}, nil
}

// parseArgs consumes the argument list up to and including the closing
// parenthesis, returning the remainder of the input.
func parseArgs(s string) ([]Arg, string, error) {
	var args []Arg
	i := 0
	for {
		// Skip separators.
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r' || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			return nil, "", fmt.Errorf("unterminated call: missing closing parenthesis")
		}
		if s[i] == ')' {
			return args, s[i+1:], nil
		}

		// Triple-quoted strings first so they are not read as empty pairs.
		if strings.HasPrefix(s[i:], `'''`) || strings.HasPrefix(s[i:], `"""`) {
			delim := s[i : i+3]
			end := strings.Index(s[i+3:], delim)
			if end < 0 {
				return nil, "", fmt.Errorf("unterminated triple-quoted string")
			}
			args = append(args, Arg{Value: s[i+3 : i+3+end], Quoted: true})
			i += 3 + end + 3
			continue
		}

		if s[i] == '\'' || s[i] == '"' || s[i] == '`' {
			value, next, err := parseQuoted(s, i)
			if err != nil {
				return nil, "", err
			}
			args = append(args, Arg{Value: value, Quoted: true})
			i = next
			continue
		}

		// Bare token: read to the next top-level comma or closing parenthesis.
		start := i
		depth := 0
		for i < len(s) {
			switch s[i] {
			case '(':
				depth++
			case ')':
				if depth == 0 {
					goto bareDone
				}
				depth--
			case ',':
				if depth == 0 {
					goto bareDone
				}
			}
			i++
		}
	bareDone:
		if i >= len(s) {
			return nil, "", fmt.Errorf("unterminated call: missing closing parenthesis")
		}
		token := strings.TrimSpace(s[start:i])
		if token != "" {
			args = append(args, Arg{Value: token})
		}
	}
}

// parseQuoted reads a single/double/backtick-quoted string starting at i,
// honoring backslash escapes, and returns the value and the index after the
// closing quote.
func parseQuoted(s string, i int) (string, int, error) {
	quote := s[i]
	var sb strings.Builder
	j := i + 1
	for j < len(s) {
		c := s[j]
		if c == '\\' && j+1 < len(s) && quote != '`' {
			next := s[j+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(next)
			}
			j += 2
			continue
		}
		if c == quote {
			return sb.String(), j + 1, nil
		}
		sb.WriteByte(c)
		j++
	}
	return "", 0, fmt.Errorf("unterminated string starting at offset %d", i)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		if !alpha && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func truncateForError(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// Dispatch resolves a textual action request produced by the reasoning service
// into one named operation and executes it. This is the single entry point for
// agent-produced text; resolution or execution failures come back as
// "Error executing tool: ..." observations and never abort the run.
func (d *Dispatcher) Dispatch(ctx context.Context, s schemas.SessionContext, raw string) string {
	call, err := ParseToolCall(raw)
	if err != nil {
		return dispatchError(err)
	}

	// The reasoning service is told to pass the page handle as a bare first
	// argument for browser tools. Strip it here; its only significance is for
	// python_interpreter, where it requests session facts.
	sessionRequested := false
	args := make([]string, 0, len(call.Args))
	for _, a := range call.Args {
		if !a.Quoted && a.Value == "page" {
			sessionRequested = true
			continue
		}
		args = append(args, a.Value)
	}

	switch call.Name {
	case "execute_js":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		return d.ExecuteScript(ctx, s, args[0])
	case "click":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		return d.Click(ctx, s, args[0])
	case "fill":
		if len(args) != 2 {
			return arityError(call.Name, 2, len(args))
		}
		return d.Fill(ctx, s, args[0], args[1])
	case "submit":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		return d.Submit(ctx, s, args[0])
	case "goto":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		return d.Goto(ctx, s, args[0])
	case "refresh":
		if len(args) != 0 {
			return arityError(call.Name, 0, len(args))
		}
		return d.Refresh(ctx, s)
	case "presskey":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		out, err := d.PressKey(ctx, s, args[0])
		if err != nil {
			return dispatchError(err)
		}
		return out
	case "python_interpreter":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		if sessionRequested {
			return d.Interpret(ctx, s, args[0])
		}
		return d.Interpret(ctx, nil, args[0])
	case "discover_forms":
		if len(args) != 0 {
			return arityError(call.Name, 0, len(args))
		}
		return d.DiscoverForms(ctx, s)
	case "get_user_input":
		if len(args) != 1 {
			return arityError(call.Name, 1, len(args))
		}
		return d.GetUserInput(args[0])
	case "auth_needed":
		if len(args) != 0 {
			return arityError(call.Name, 0, len(args))
		}
		return d.AuthNeeded()
	case "complete":
		if len(args) != 0 {
			return arityError(call.Name, 0, len(args))
		}
		return d.Complete()
	}
	// Unreachable: ParseToolCall already rejected unknown names.
	return dispatchError(fmt.Errorf("unknown tool: %q", call.Name))
}

func dispatchError(err error) string {
	return fmt.Sprintf("Error executing tool: %v", err)
}

func arityError(name string, want, got int) string {
	return dispatchError(fmt.Errorf("%s expects %d argument(s), got %d", name, want, got))
}
