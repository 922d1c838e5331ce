package memory

import (
	"fmt"
	"strings"
)

// ConflictError is raised when a semantic write collides with an existing
// active decision for the same (target, namespace) and cannot be resolved
// automatically (§4.10). The root package re-exports this as its own
// ConflictError via a type alias.
type ConflictError struct {
	Target      string
	Namespace   string
	Competitors []string
	Suggestions []string
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CONFLICT: active decision(s) already exist for target %q in namespace %q: %s",
		e.Target, e.Namespace, strings.Join(e.Competitors, ", "))
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, " (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

// ValueError reports schema or sanitization failures (§4.1). The root
// package re-exports this as its own ValueError via a type alias.
type ValueError struct {
	Field  string
	Detail string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}
