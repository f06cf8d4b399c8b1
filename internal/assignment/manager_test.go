package assignment

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/surveyengine/internal/audit"
	"github.com/careloop/surveyengine/internal/catalog"
	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/core/db/dbtest"
	"github.com/careloop/surveyengine/internal/partial"
	"github.com/careloop/surveyengine/internal/types"
)

const testKeyID = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	m       *Manager
	q       *db.Queries
	auditor *audit.Recorder
}

func newTestEnv(t *testing.T, instruments ...types.Instrument) *testEnv {
	t.Helper()

	q := dbtest.New(t)
	sealer, err := partial.NewSealer(map[string][]byte{testKeyID: make([]byte, 32)})
	require.NoError(t, err)

	auditor := audit.NewRecorder(q)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(q, catalog.NewStatic(instruments), partial.NewStore(q, sealer), auditor, logger)
	return &testEnv{m: m, q: q, auditor: auditor}
}

// moodInstrument is a two-section definition where the detail section only
// applies while the screening question is answered "yes".
func moodInstrument() types.Instrument {
	return types.Instrument{
		InstrumentID: "instr-mood",
		Title:        "Mood Check",
		State:        types.PublishPublished,
		Aggregate:    true,
		Sections: []types.Section{
			{
				SectionID: "s-screen",
				Scoring:   types.ScoringSum,
				Questions: []types.Question{{
					QuestionID: "q-low-mood",
					Prompt:     "Have you felt low recently?",
					Kind:       types.QuestionSingleChoice,
					Required:   true,
					Options: []types.Option{
						{OptionID: "opt-yes", Label: "Yes", Value: "yes", Points: 1},
						{OptionID: "opt-no", Label: "No", Value: "no", Points: 0},
					},
				}},
			},
			{
				SectionID: "s-detail",
				Scoring:   types.ScoringSum,
				Condition: &types.SectionCondition{QuestionID: "q-low-mood", Value: "yes"},
				Questions: []types.Question{
					{
						QuestionID: "q-frequency",
						Prompt:     "How often?",
						Kind:       types.QuestionSingleChoice,
						Options: []types.Option{
							{OptionID: "opt-some", Label: "Several days", Value: "several_days", Points: 2},
							{OptionID: "opt-most", Label: "Most days", Value: "most_days", Points: 3},
						},
					},
					{QuestionID: "q-notes", Prompt: "Anything to add?", Kind: types.QuestionText},
				},
			},
		},
	}
}

func pick(options ...types.OptionID) types.AnswerValue {
	return types.AnswerValue{Options: options}
}

func manualIntent(subject types.SubjectID) types.AssignmentIntent {
	actor := "staff-1"
	return types.AssignmentIntent{
		SubjectID:    subject,
		InstrumentID: "instr-mood",
		Reason:       "manual assignment by staff-1",
		Actor:        &actor,
	}
}

func createInProgress(t *testing.T, env *testEnv, subject types.SubjectID) *types.Assignment {
	t.Helper()
	ctx := context.Background()

	a, created, err := env.m.Create(ctx, manualIntent(subject))
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, env.m.Open(ctx, a.AssignmentID, "subj"))
	return a
}

func TestCreate_ManualIsPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	a, created, err := env.m.Create(ctx, manualIntent("subj-1"))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, types.StatusPending, a.Status)
	assert.Nil(t, a.RuleID)
	assert.Nil(t, a.DedupeKey)

	got, err := env.m.Get(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, "staff-1", *got.AssignedBy)
}

func TestCreate_RuleWithoutAutoAssignAwaitsApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	rule := &types.TriggerRule{RuleID: types.NewRuleID(), TriggerType: types.TriggerEvent, AutoAssign: false}
	a, created, err := env.m.Create(ctx, types.AssignmentIntent{
		SubjectID:    "subj-1",
		InstrumentID: "instr-mood",
		Rule:         rule,
		Reason:       "event rule",
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, types.StatusAwaitingApproval, a.Status)
	assert.Equal(t, rule.RuleID, *a.RuleID)

	queue, err := env.m.ListAwaitingApproval(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, a.AssignmentID, queue[0].AssignmentID)
}

func TestCreate_DuplicateDedupeKeyDropped(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	key := "sub:instr-mood:subj-1"
	intent := manualIntent("subj-1")
	intent.DedupeKey = &key

	_, created, err := env.m.Create(ctx, intent)
	require.NoError(t, err)
	require.True(t, created)

	// Second intent with the same key is silently dropped.
	a, created, err := env.m.Create(ctx, intent)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, a)

	list, err := env.m.ListBySubject(ctx, "subj-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreate_ManualAssignmentsNeverCollide(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	for i := 0; i < 3; i++ {
		_, created, err := env.m.Create(ctx, manualIntent("subj-1"))
		require.NoError(t, err)
		assert.True(t, created)
	}

	list, err := env.m.ListBySubject(ctx, "subj-1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestLifecycle_ApproveThenOpen(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	rule := &types.TriggerRule{RuleID: types.NewRuleID(), TriggerType: types.TriggerEvent}
	a, _, err := env.m.Create(ctx, types.AssignmentIntent{
		SubjectID:    "subj-1",
		InstrumentID: "instr-mood",
		Rule:         rule,
		Reason:       "event rule",
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusAwaitingApproval, a.Status)

	// Opening before approval is invalid.
	assert.ErrorIs(t, env.m.Open(ctx, a.AssignmentID, "subj"), types.ErrInvalidTransition)

	require.NoError(t, env.m.Approve(ctx, a.AssignmentID, "staff-1"))
	got, err := env.m.Get(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)

	// Approving twice is invalid.
	assert.ErrorIs(t, env.m.Approve(ctx, a.AssignmentID, "staff-1"), types.ErrInvalidTransition)

	require.NoError(t, env.m.Open(ctx, a.AssignmentID, "subj"))
	got, err = env.m.Get(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.LastOpenedAt)
}

func TestLifecycle_DeclineIsTerminal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	rule := &types.TriggerRule{RuleID: types.NewRuleID(), TriggerType: types.TriggerEvent}
	a, _, err := env.m.Create(ctx, types.AssignmentIntent{
		SubjectID:    "subj-1",
		InstrumentID: "instr-mood",
		Rule:         rule,
		Reason:       "event rule",
	})
	require.NoError(t, err)

	require.NoError(t, env.m.Decline(ctx, a.AssignmentID, "staff-1"))
	got, err := env.m.Get(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDismissed, got.Status)

	// No way out of dismissed.
	assert.ErrorIs(t, env.m.Approve(ctx, a.AssignmentID, "staff-1"), types.ErrInvalidTransition)
	assert.ErrorIs(t, env.m.Open(ctx, a.AssignmentID, "subj"), types.ErrInvalidTransition)
}

func TestLifecycle_DeclineRequiresAwaitingApproval(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	a, _, err := env.m.Create(ctx, manualIntent("subj-1"))
	require.NoError(t, err)

	assert.ErrorIs(t, env.m.Decline(ctx, a.AssignmentID, "staff-1"), types.ErrInvalidTransition)
}

func TestOpen_IdempotentAndPreservesDrafts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())
	a := createInProgress(t, env, "subj-1")

	started, err := env.m.Get(ctx, a.AssignmentID)
	require.NoError(t, err)

	_, err = env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	require.NoError(t, err)

	// Re-opening is not an error and keeps the draft and the start marker.
	require.NoError(t, env.m.Open(ctx, a.AssignmentID, "subj"))

	got, err := env.m.Get(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status)
	assert.Equal(t, started.StartedAt.Unix(), got.StartedAt.Unix())

	proj, err := env.m.CurrentProjection(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Len(t, proj.Visible, 2, "answered draft survives reopening")
}

func TestTransitions_NotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	id := types.NewAssignmentID()
	assert.ErrorIs(t, env.m.Approve(ctx, id, "staff-1"), types.ErrAssignmentNotFound)
	assert.ErrorIs(t, env.m.Open(ctx, id, "subj"), types.ErrAssignmentNotFound)
	_, err := env.m.Get(ctx, id)
	assert.ErrorIs(t, err, types.ErrAssignmentNotFound)
}

func TestAudit_TrailCoversLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	a := createInProgress(t, env, "subj-1")
	_, err := env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-no"))
	require.NoError(t, err)
	_, err = env.m.Submit(ctx, a.AssignmentID, "subj")
	require.NoError(t, err)

	entries, err := env.auditor.BySubject(ctx, "subj-1")
	require.NoError(t, err)

	var kinds []audit.Kind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, audit.KindManualAssignment)
	assert.Contains(t, kinds, audit.KindSubmitted)
}
