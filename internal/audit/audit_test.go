package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/surveyengine/internal/core/db/dbtest"
	"github.com/careloop/surveyengine/internal/types"
)

func TestRecorder_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(dbtest.New(t))

	subject := types.SubjectID("subj-1")
	assignmentID := types.NewAssignmentID()
	actor := "staff-1"

	require.NoError(t, r.Record(ctx, Entry{
		Kind:         KindManualAssignment,
		SubjectID:    &subject,
		AssignmentID: &assignmentID,
		Actor:        &actor,
		Detail:       "manual assignment",
	}))
	require.NoError(t, r.Record(ctx, Entry{
		Kind:      KindSuppressed,
		SubjectID: &subject,
		Detail:    "open assignment limit 5 reached",
	}))

	entries, err := r.BySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, KindManualAssignment, entries[0].Kind)
	assert.Equal(t, assignmentID, *entries[0].AssignmentID)
	assert.Equal(t, "staff-1", *entries[0].Actor)
	assert.False(t, entries[0].OccurredAt.IsZero())

	assert.Equal(t, KindSuppressed, entries[1].Kind)
	assert.Nil(t, entries[1].AssignmentID)
}

func TestRecorder_RecordTx(t *testing.T) {
	ctx := context.Background()
	q := dbtest.New(t)
	r := NewRecorder(q)
	subject := types.SubjectID("subj-1")

	// A rolled-back transaction leaves no trace.
	tx, err := q.DB().Beginx()
	require.NoError(t, err)
	require.NoError(t, r.RecordTx(ctx, tx, Entry{Kind: KindSubmitted, SubjectID: &subject}))
	require.NoError(t, tx.Rollback())

	entries, err := r.BySubject(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A committed one does.
	tx, err = q.DB().Beginx()
	require.NoError(t, err)
	require.NoError(t, r.RecordTx(ctx, tx, Entry{Kind: KindSubmitted, SubjectID: &subject}))
	require.NoError(t, tx.Commit())

	entries, err = r.BySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindSubmitted, entries[0].Kind)
}

func TestRecorder_BySubjectFiltersOthers(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(dbtest.New(t))

	s1 := types.SubjectID("subj-1")
	s2 := types.SubjectID("subj-2")
	require.NoError(t, r.Record(ctx, Entry{Kind: KindOpened, SubjectID: &s1}))
	require.NoError(t, r.Record(ctx, Entry{Kind: KindOpened, SubjectID: &s2}))

	entries, err := r.BySubject(ctx, s1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
