package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for survey engine operations.
var (
	// ErrRuleNotFound indicates a trigger rule id resolved to no row.
	ErrRuleNotFound = errors.New("trigger rule not found")

	// ErrAssignmentNotFound indicates an assignment id resolved to no row.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrInstrumentNotFound indicates the catalog has no such instrument.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrSubjectNotFound indicates the directory has no such subject.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrInvalidTransition indicates a lifecycle operation was attempted
	// from a status that does not permit it.
	ErrInvalidTransition = errors.New("invalid assignment transition")

	// ErrRuleMisconfigured indicates a rule whose load-bearing field for its
	// trigger type is absent. Skipped and logged at evaluation time.
	ErrRuleMisconfigured = errors.New("trigger rule misconfigured")

	// ErrNoSealKey indicates no partial-answer encryption key is configured.
	ErrNoSealKey = errors.New("no partial answer encryption key configured")

	// ErrUnknownSealKey indicates a stored value references a key id that is
	// no longer in the configured key set.
	ErrUnknownSealKey = errors.New("unknown partial answer encryption key id")

	// ErrHiddenAnswer indicates an answer survived for a question whose
	// governing section is not visible. Internal invariant violation.
	ErrHiddenAnswer = errors.New("answer present for hidden question")
)

// ValidationError rejects a submit that is missing required answers for
// currently visible questions. Surfaced to the submitting user; the
// assignment stays in_progress.
type ValidationError struct {
	Missing []QuestionID
}

func (e *ValidationError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, q := range e.Missing {
		ids[i] = string(q)
	}
	return fmt.Sprintf("missing required answers: %s", strings.Join(ids, ", "))
}
