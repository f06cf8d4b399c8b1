package partial

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/surveyengine/internal/core/db/dbtest"
	"github.com/careloop/surveyengine/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sealer, err := NewSealer(map[string][]byte{
		"0123456789abcdef0123456789abcdef": make([]byte, 32),
	})
	require.NoError(t, err)
	return NewStore(dbtest.New(t), sealer)
}

func TestStore_UpsertAndReadAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := types.NewAssignmentID()

	require.NoError(t, s.Upsert(ctx, id, "q-1", types.AnswerValue{Text: "hello"}))
	n := 7.0
	require.NoError(t, s.Upsert(ctx, id, "q-2", types.AnswerValue{Number: &n}))

	answers, err := s.ReadAll(ctx, id)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "hello", answers["q-1"].Text)
	assert.Equal(t, 7.0, *answers["q-2"].Number)
}

func TestStore_UpsertReplacesDraft(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := types.NewAssignmentID()

	require.NoError(t, s.Upsert(ctx, id, "q-1", types.AnswerValue{Text: "first"}))
	require.NoError(t, s.Upsert(ctx, id, "q-1", types.AnswerValue{Text: "second"}))

	answers, err := s.ReadAll(ctx, id)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "second", answers["q-1"].Text)
}

func TestStore_UpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := types.NewAssignmentID()

	base := time.Now().UTC()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Upsert(ctx, id, "q-1", types.AnswerValue{Text: "newer"}))

	// A write carrying an older timestamp loses silently.
	s.now = func() time.Time { return base.Add(-time.Minute) }
	require.NoError(t, s.Upsert(ctx, id, "q-1", types.AnswerValue{Text: "stale"}))

	answers, err := s.ReadAll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "newer", answers["q-1"].Text)
}

func TestStore_DiscardQuestions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := types.NewAssignmentID()

	require.NoError(t, s.Upsert(ctx, id, "q-1", types.AnswerValue{Text: "a"}))
	require.NoError(t, s.Upsert(ctx, id, "q-2", types.AnswerValue{Text: "b"}))
	require.NoError(t, s.Upsert(ctx, id, "q-3", types.AnswerValue{Text: "c"}))

	require.NoError(t, s.DiscardQuestions(ctx, id, []types.QuestionID{"q-1", "q-3"}))

	answers, err := s.ReadAll(ctx, id)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "b", answers["q-2"].Text)
}

func TestStore_AssignmentsIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a1 := types.NewAssignmentID()
	a2 := types.NewAssignmentID()

	require.NoError(t, s.Upsert(ctx, a1, "q-1", types.AnswerValue{Text: "mine"}))
	require.NoError(t, s.Upsert(ctx, a2, "q-1", types.AnswerValue{Text: "theirs"}))

	answers, err := s.ReadAll(ctx, a1)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "mine", answers["q-1"].Text)
}
