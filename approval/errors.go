// approval/errors.go
package approval

import "errors"

// Error taxonomy for every engine operation. Handlers translate these into
// HTTP statuses at the boundary; the engine never retries on its own.
var (
	// ErrInvalid marks malformed input: bad id format, unknown approval
	// type, a workflow with zero levels.
	ErrInvalid = errors.New("invalid")

	// ErrNotFound marks a missing request, payload, workflow or organization.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a duplicate pending request, an action against a
	// terminal request, or a lost concurrent-update race.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks dispatch preconditions that are not met yet:
	// organization not configured, season database unreachable. The request
	// stays actionable so a retry of approve resumes correctly.
	ErrUnavailable = errors.New("unavailable")

	// ErrForbidden marks an actor who is neither submitter, current approver
	// nor org-visible for the operation attempted.
	ErrForbidden = errors.New("forbidden")
)
