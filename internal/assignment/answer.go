package assignment

import (
	"context"
	"fmt"

	"github.com/careloop/surveyengine/internal/types"
	"github.com/careloop/surveyengine/internal/visibility"
)

// Projection is the "currently visible sections/pages" view handed to the
// rendering layer after every answer mutation. Derived, never persisted.
type Projection struct {
	Visible []types.Section
	Pages   [][]types.Section
}

// Answer records one draft answer for an in_progress assignment, then
// recomputes visibility. When the new answer turns a previously-satisfied
// section condition false, every draft belonging to that section's questions
// is deleted — the section's contribution is fully retracted, not merely
// hidden.
func (m *Manager) Answer(ctx context.Context, id types.AssignmentID, question types.QuestionID, value types.AnswerValue) (*Projection, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != types.StatusInProgress {
		return nil, types.ErrInvalidTransition
	}

	instrument, err := m.catalog.Instrument(ctx, a.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument %s: %w", a.InstrumentID, err)
	}
	if instrument.Question(question) == nil {
		return nil, fmt.Errorf("instrument %s has no question %s", a.InstrumentID, question)
	}

	if err := m.partials.Upsert(ctx, id, question, value); err != nil {
		return nil, err
	}

	answers, err := m.partials.ReadAll(ctx, id)
	if err != nil {
		return nil, err
	}

	if retract := visibility.Retractions(instrument, answers); len(retract) > 0 {
		if err := m.partials.DiscardQuestions(ctx, id, retract); err != nil {
			return nil, err
		}
		for _, q := range retract {
			delete(answers, q)
		}
	}

	return &Projection{
		Visible: visibility.VisibleSections(instrument, answers),
		Pages:   visibility.Pages(instrument, answers),
	}, nil
}

// CurrentProjection recomputes the visibility projection without mutating
// anything, for page revisits.
func (m *Manager) CurrentProjection(ctx context.Context, id types.AssignmentID) (*Projection, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	instrument, err := m.catalog.Instrument(ctx, a.InstrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument %s: %w", a.InstrumentID, err)
	}

	answers, err := m.partials.ReadAll(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Projection{
		Visible: visibility.VisibleSections(instrument, answers),
		Pages:   visibility.Pages(instrument, answers),
	}, nil
}
