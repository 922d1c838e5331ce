package ledgermind

import (
	"errors"
	"fmt"

	"github.com/ashita-ai/ledgermind/internal/memory"
)

// ErrNotFound mirrors the teacher's storage.ErrNotFound sentinel-error style
// (internal/storage/errors.go): a single shared "missing entity" sentinel
// that callers compare with errors.Is.
var ErrNotFound = errors.New("ledgermind: not found")

// ErrAuditUnavailable is returned when the audit backend cannot be
// initialized and no audit-disabling override is configured (§4.2).
var ErrAuditUnavailable = errors.New("ledgermind: audit backend unavailable")

// ConflictError is raised when a semantic write collides with an existing
// active decision for the same (target, namespace) and cannot be resolved
// automatically (§4.10). Aliased to the internal/memory type that actually
// constructs it, so errors.As works across the package boundary.
type ConflictError = memory.ConflictError

// ValueError reports schema, sanitization, or path-traversal failures
// (§4.1). Aliased to the internal/memory type that actually constructs it.
type ValueError = memory.ValueError

// InvariantViolation describes a violation of I1-I5 (§3 Relationships and
// invariants). Nothing in this module returns it: the integrity scanner
// reports violations with its own internal/integrity type.
type InvariantViolation struct {
	Invariant string // "I1".."I5"
	FID       string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant %s violated at %q: %s", e.Invariant, e.FID, e.Detail)
}

// IntegrityViolation carries an offending fid and detail (§4.7). Nothing in
// this module returns it: the integrity checker reports its own type.
type IntegrityViolation struct {
	FID    string
	Detail string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation at %q: %s", e.FID, e.Detail)
}

// PermissionError describes a write refused by trust-boundary policy (§3
// Trust Boundary). Nothing in this module returns it: the router reports
// such a refusal as a routing decision that does not persist.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "permission denied: " + e.Reason }

// TimeoutError describes a lock acquisition that exceeded its configured
// budget (§5 Locking). Nothing in this module returns it: the transaction
// manager reports a lock timeout as a plain wrapped error.
type TimeoutError struct {
	Operation string
	Budget    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout acquiring lock for %s (budget %s)", e.Operation, e.Budget)
}
