package trigger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/surveyengine/internal/types"
)

// resolveAnchor computes the reference timestamp a time rule measures elapsed
// time against. Returns the zero time when no anchor exists (e.g. the subject
// has never completed the instrument under anchor=last_completed); the rule
// is then skipped for this subject.
func (e *Engine) resolveAnchor(ctx context.Context, rule *types.TriggerRule, enr *types.Enrolment) (time.Time, error) {
	switch rule.Anchor {
	case types.AnchorEnrolmentDate:
		return enr.StartDate, nil

	case types.AnchorLastCompleted:
		var completed time.Time
		err := e.q.Get(ctx, "latest-completed-at", &completed, rule.InstrumentID, enr.SubjectID)
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to resolve last completed anchor: %w", err)
		}
		return completed, nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown anchor %q", types.ErrRuleMisconfigured, rule.Anchor)
	}
}
