package assignment

import (
	"context"
	"fmt"
	"strings"

	"github.com/careloop/surveyengine/internal/audit"
	"github.com/careloop/surveyengine/internal/scoring"
	"github.com/careloop/surveyengine/internal/types"
	"github.com/careloop/surveyengine/internal/visibility"
)

/*
 * Submit is the critical path of the lifecycle. One transaction:
 *
 *   1. re-read the assignment and require in_progress
 *   2. read the draft answer set
 *   3. resolve visible sections; delete any draft for a hidden question
 *      (invariant violation, logged at Error, never surfaced to the user)
 *   4. validate required visible questions; reject with a structured
 *      ValidationError listing offenders, leaving everything untouched
 *   5. promote drafts into one Response plus Answers
 *   6. compute and persist section/aggregate scores
 *   7. delete the superseded drafts
 *   8. move the assignment to completed (guarded on in_progress)
 *
 * Any failure rolls the transaction back: the assignment stays in_progress
 * with its drafts intact, never half-submitted. Because the status flip and
 * the Response share a commit, no reader can observe completed without the
 * finalized Response.
 */

// Submit promotes an in_progress assignment's drafts into a permanent
// Response and completes the assignment.
func (m *Manager) Submit(ctx context.Context, id types.AssignmentID, actor string) (*types.Response, error) {
	tx, err := m.q.DB().Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin submit transaction: %w", err)
	}
	defer tx.Rollback()

	var a types.Assignment
	if err := m.q.GetTx(ctx, tx, "get-assignment", &a, id); err != nil {
		return nil, types.ErrAssignmentNotFound
	}
	if a.Status != types.StatusInProgress {
		return nil, types.ErrInvalidTransition
	}

	instrument, err := m.catalog.Instrument(ctx, a.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument %s: %w", a.InstrumentID, err)
	}

	answers, err := m.partials.ReadAllTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	// Drafts for hidden questions should have been retracted at mutation
	// time; finding one here is an internal invariant violation.
	if hidden := visibility.Retractions(instrument, answers); len(hidden) > 0 {
		m.log.Error("answers present for hidden questions at submit",
			"assignment", id, "questions", hidden, "error", types.ErrHiddenAnswer)
		if err := m.partials.DiscardQuestionsTx(ctx, tx, id, hidden); err != nil {
			return nil, err
		}
		for _, q := range hidden {
			delete(answers, q)
		}
	}

	visible := visibility.VisibleSections(instrument, answers)
	if missing := missingRequired(visible, answers); len(missing) > 0 {
		return nil, &types.ValidationError{Missing: missing}
	}

	now := m.now()
	response := &types.Response{
		ResponseID:   types.NewResponseID(),
		InstrumentID: a.InstrumentID,
		SubmittedAt:  now,
	}
	if !instrument.Anonymous {
		response.AssignmentID = &a.AssignmentID
		response.SubjectID = &a.SubjectID
	}

	if _, err := m.q.ExecTx(ctx, tx, "create-response",
		response.ResponseID, response.InstrumentID, response.AssignmentID,
		response.SubjectID, response.SubmittedAt); err != nil {
		return nil, fmt.Errorf("failed to create response: %w", err)
	}

	for si := range visible {
		for qi := range visible[si].Questions {
			q := &visible[si].Questions[qi]
			value, ok := answers[q.QuestionID]
			if !ok || value.Empty() {
				continue
			}
			ans := buildAnswer(response.ResponseID, q, value)
			if _, err := m.q.ExecTx(ctx, tx, "create-answer",
				ans.AnswerID, ans.ResponseID, ans.QuestionID,
				ans.TextValue, ans.NumericValue); err != nil {
				return nil, fmt.Errorf("failed to create answer for %s: %w", q.QuestionID, err)
			}
		}
	}

	scores := scoring.Compute(instrument, visible, answers)
	for _, s := range scores.Sections {
		if _, err := m.q.ExecTx(ctx, tx, "create-response-score",
			response.ResponseID, s.SectionID, s.Score, s.Method); err != nil {
			return nil, fmt.Errorf("failed to persist section score: %w", err)
		}
	}
	if scores.Aggregate != nil {
		if _, err := m.q.ExecTx(ctx, tx, "create-response-score",
			response.ResponseID, nil, *scores.Aggregate, "aggregate"); err != nil {
			return nil, fmt.Errorf("failed to persist aggregate score: %w", err)
		}
	}

	if err := m.partials.DeleteAllTx(ctx, tx, id); err != nil {
		return nil, err
	}

	res, err := m.q.ExecTx(ctx, tx, "mark-completed", now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete assignment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// A concurrent submit won the race.
		return nil, types.ErrInvalidTransition
	}

	if err := m.auditor.RecordTx(ctx, tx, audit.Entry{
		Kind:         audit.KindSubmitted,
		SubjectID:    &a.SubjectID,
		AssignmentID: &id,
		Actor:        &actor,
		Detail:       fmt.Sprintf("response=%s", response.ResponseID),
	}); err != nil {
		return nil, fmt.Errorf("failed to record submit audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit submit: %w", err)
	}

	return response, nil
}

// missingRequired lists required questions in visible sections that lack a
// usable answer.
func missingRequired(visible []types.Section, answers map[types.QuestionID]types.AnswerValue) []types.QuestionID {
	var missing []types.QuestionID
	for si := range visible {
		for qi := range visible[si].Questions {
			q := &visible[si].Questions[qi]
			if !q.Required {
				continue
			}
			value, ok := answers[q.QuestionID]
			if !ok || value.Empty() {
				missing = append(missing, q.QuestionID)
			}
		}
	}
	return missing
}

// buildAnswer converts a draft value into its final Answer representation.
// Free text lands in text_value, numeric input in numeric_value; choice
// selections record the selected option values as text and the summed option
// points as the numeric value for scored question types.
func buildAnswer(response types.ResponseID, q *types.Question, value types.AnswerValue) types.Answer {
	ans := types.Answer{
		AnswerID:   types.NewAnswerID(),
		ResponseID: response,
		QuestionID: q.QuestionID,
	}

	switch q.Kind {
	case types.QuestionText:
		text := value.Text
		ans.TextValue = &text
	case types.QuestionNumber:
		ans.NumericValue = value.Number
	case types.QuestionSingleChoice, types.QuestionMultiChoice:
		var labels []string
		for _, id := range value.Options {
			if opt := q.Option(id); opt != nil {
				labels = append(labels, opt.Value)
			}
		}
		text := strings.Join(labels, ",")
		ans.TextValue = &text
		points := scoring.OptionPoints(q, value)
		ans.NumericValue = &points
	}

	return ans
}
