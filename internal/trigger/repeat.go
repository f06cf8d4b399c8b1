package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/surveyengine/internal/types"
)

/*
 * Repeat-policy guard.
 *
 * The guard is a point-in-time read; the dedupe key on the assignment row is
 * the concurrency-proof backstop. Two concurrent evaluations can both pass
 * the guard, but only one INSERT wins the unique constraint — the loser's
 * intent is dropped silently.
 */

// repeatAllowed decides whether a new assignment would violate the rule's
// repetition contract for this subject.
func (e *Engine) repeatAllowed(ctx context.Context, rule *types.TriggerRule, subject *types.Subject) (bool, error) {
	switch rule.RepeatPolicy {
	case types.RepeatOncePerSubject:
		// Any assignment for the pair, in any status, blocks.
		var n int
		if err := e.q.Get(ctx, "count-assignments-for-pair", &n, rule.InstrumentID, subject.SubjectID); err != nil {
			return false, fmt.Errorf("failed repeat check: %w", err)
		}
		return n == 0, nil

	case types.RepeatOncePerEnrolment:
		// An assignment created at or after the current enrolment start blocks.
		start := e.enrolmentStart(rule, subject)
		var n int
		if err := e.q.Get(ctx, "count-assignments-for-pair-since", &n, rule.InstrumentID, subject.SubjectID, start); err != nil {
			return false, fmt.Errorf("failed repeat check: %w", err)
		}
		return n == 0, nil

	case types.RepeatRecurring:
		// Only a currently pending/in_progress assignment blocks.
		var n int
		if err := e.q.Get(ctx, "count-open-assignments-for-pair", &n, rule.InstrumentID, subject.SubjectID); err != nil {
			return false, fmt.Errorf("failed repeat check: %w", err)
		}
		return n == 0, nil

	default:
		return false, fmt.Errorf("%w: unknown repeat policy %q", types.ErrRuleMisconfigured, rule.RepeatPolicy)
	}
}

// dedupeKey derives the uniqueness key the atomic create is guarded by.
// The policy prefix lets terminal transitions release only recurring keys.
func dedupeKey(rule *types.TriggerRule, subject *types.Subject) *string {
	var key string
	switch rule.RepeatPolicy {
	case types.RepeatOncePerSubject:
		key = fmt.Sprintf("sub:%s:%s", rule.InstrumentID, subject.SubjectID)
	case types.RepeatOncePerEnrolment:
		start := enrolmentStartFor(rule, subject)
		key = fmt.Sprintf("enr:%s:%s:%s", rule.InstrumentID, subject.SubjectID, start.Format("2006-01-02"))
	case types.RepeatRecurring:
		key = fmt.Sprintf("rec:%s:%s", rule.InstrumentID, subject.SubjectID)
	default:
		return nil
	}
	return &key
}

func (e *Engine) enrolmentStart(rule *types.TriggerRule, subject *types.Subject) time.Time {
	return enrolmentStartFor(rule, subject)
}

// enrolmentStartFor picks the enrolment period the once_per_enrolment policy
// measures against: the rule's target program when it names one, otherwise
// the subject's most recent enrolment.
func enrolmentStartFor(rule *types.TriggerRule, subject *types.Subject) time.Time {
	if rule.ProgramID != nil {
		if enr := subject.EnrolmentIn(*rule.ProgramID); enr != nil {
			return enr.StartDate
		}
	}
	return subject.CurrentEnrolmentStart()
}
