// Package audit appends engine events to the audit stream.
//
// The stream is append-only: this package exposes no update or delete
// operations, and nothing else in the engine writes to the table.
package audit

import (
	"context"
	"time"

	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/types"
	"github.com/jmoiron/sqlx"
)

// Kind classifies an audit entry.
type Kind string

const (
	KindRuleAssignment   Kind = "rule_assignment_created"
	KindManualAssignment Kind = "manual_assignment_created"
	KindApproved         Kind = "assignment_approved"
	KindDeclined         Kind = "assignment_declined"
	KindOpened           Kind = "assignment_opened"
	KindSubmitted        Kind = "assignment_submitted"
	KindSuppressed       Kind = "guardrail_suppressed"
	KindRulesDeactivated Kind = "rules_deactivated"
)

// Entry is one audit record.
type Entry struct {
	AuditID      int64               `db:"audit_id"`
	OccurredAt   time.Time           `db:"occurred_at"`
	Kind         Kind                `db:"kind"`
	SubjectID    *types.SubjectID    `db:"subject_id"`
	AssignmentID *types.AssignmentID `db:"assignment_id"`
	RuleID       *types.RuleID       `db:"rule_id"`
	Actor        *string             `db:"actor"`
	Detail       string              `db:"detail"`
}

// Recorder writes audit entries.
type Recorder struct {
	q   *db.Queries
	now func() time.Time
}

// NewRecorder creates a Recorder over the given query set.
func NewRecorder(q *db.Queries) *Recorder {
	return &Recorder{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// Record appends one entry.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	_, err := r.q.Exec(ctx, "append-audit",
		r.now(), e.Kind, e.SubjectID, e.AssignmentID, e.RuleID, e.Actor, e.Detail)
	return err
}

// RecordTx appends one entry within an open transaction, so state transitions
// and their audit records commit together.
func (r *Recorder) RecordTx(ctx context.Context, tx *sqlx.Tx, e Entry) error {
	_, err := r.q.ExecTx(ctx, tx, "append-audit",
		r.now(), e.Kind, e.SubjectID, e.AssignmentID, e.RuleID, e.Actor, e.Detail)
	return err
}

// BySubject lists a subject's audit entries in occurrence order.
func (r *Recorder) BySubject(ctx context.Context, subject types.SubjectID) ([]Entry, error) {
	var entries []Entry
	if err := r.q.Select(ctx, "list-audit-by-subject", &entries, subject); err != nil {
		return nil, err
	}
	return entries, nil
}
