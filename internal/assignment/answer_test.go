package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/surveyengine/internal/types"
)

func sectionIDs(sections []types.Section) []types.SectionID {
	ids := make([]types.SectionID, 0, len(sections))
	for _, s := range sections {
		ids = append(ids, s.SectionID)
	}
	return ids
}

func TestAnswer_RevealsConditionalSection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())
	a := createInProgress(t, env, "subj-1")

	proj, err := env.m.CurrentProjection(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, []types.SectionID{"s-screen"}, sectionIDs(proj.Visible), "conditional section hidden while unanswered")

	proj, err = env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	require.NoError(t, err)
	assert.Equal(t, []types.SectionID{"s-screen", "s-detail"}, sectionIDs(proj.Visible))
}

func TestAnswer_ChangingConditionRetractsSection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())
	a := createInProgress(t, env, "subj-1")

	_, err := env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	require.NoError(t, err)
	_, err = env.m.Answer(ctx, a.AssignmentID, "q-frequency", pick("opt-most"))
	require.NoError(t, err)
	_, err = env.m.Answer(ctx, a.AssignmentID, "q-notes", types.AnswerValue{Text: "worse at night"})
	require.NoError(t, err)

	// Flipping the screening answer hides the detail section and deletes its
	// drafts outright.
	proj, err := env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-no"))
	require.NoError(t, err)
	assert.Equal(t, []types.SectionID{"s-screen"}, sectionIDs(proj.Visible))

	// Flipping back reveals the section again, but the retracted answers are
	// gone for good.
	proj, err = env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	require.NoError(t, err)
	require.Equal(t, []types.SectionID{"s-screen", "s-detail"}, sectionIDs(proj.Visible))

	response, err := env.m.Submit(ctx, a.AssignmentID, "subj")
	require.NoError(t, err)

	var answers []types.Answer
	require.NoError(t, env.q.Select(ctx, "list-answers-by-response", &answers, response.ResponseID))
	require.Len(t, answers, 1, "only the screening answer survives the retraction")
	assert.Equal(t, types.QuestionID("q-low-mood"), answers[0].QuestionID)
}

func TestAnswer_RequiresInProgress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())

	a, _, err := env.m.Create(ctx, manualIntent("subj-1"))
	require.NoError(t, err)

	_, err = env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
}

func TestAnswer_UnknownQuestionRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())
	a := createInProgress(t, env, "subj-1")

	_, err := env.m.Answer(ctx, a.AssignmentID, "q-unknown", types.AnswerValue{Text: "x"})
	assert.Error(t, err)
}

func TestAnswer_OverwriteKeepsLatestValue(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())
	a := createInProgress(t, env, "subj-1")

	_, err := env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	require.NoError(t, err)
	_, err = env.m.Answer(ctx, a.AssignmentID, "q-notes", types.AnswerValue{Text: "first draft"})
	require.NoError(t, err)
	_, err = env.m.Answer(ctx, a.AssignmentID, "q-notes", types.AnswerValue{Text: "second draft"})
	require.NoError(t, err)

	response, err := env.m.Submit(ctx, a.AssignmentID, "subj")
	require.NoError(t, err)

	var answers []types.Answer
	require.NoError(t, env.q.Select(ctx, "list-answers-by-response", &answers, response.ResponseID))
	for _, ans := range answers {
		if ans.QuestionID == "q-notes" {
			assert.Equal(t, "second draft", *ans.TextValue)
			return
		}
	}
	t.Fatal("no finalized answer for q-notes")
}

func TestCurrentProjection_PageRevisitDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, moodInstrument())
	a := createInProgress(t, env, "subj-1")

	_, err := env.m.Answer(ctx, a.AssignmentID, "q-low-mood", pick("opt-yes"))
	require.NoError(t, err)
	_, err = env.m.Answer(ctx, a.AssignmentID, "q-frequency", pick("opt-some"))
	require.NoError(t, err)

	first, err := env.m.CurrentProjection(ctx, a.AssignmentID)
	require.NoError(t, err)
	second, err := env.m.CurrentProjection(ctx, a.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, sectionIDs(first.Visible), sectionIDs(second.Visible))
	assert.Equal(t, len(first.Pages), len(second.Pages))
}
