// Package assignment owns the Assignment lifecycle.
//
// State machine:
//
//	awaiting_approval --approve--> pending
//	awaiting_approval --decline--> dismissed
//	pending           --open-----> in_progress
//	in_progress       --submit---> completed
//
// completed and dismissed are terminal. Transitions are guarded UPDATE
// statements conditioned on the current status, so a raced transition affects
// zero rows instead of corrupting state. Assignments are never hard-deleted;
// terminal rows stay behind for audit and repeat-policy evaluation.
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/careloop/surveyengine/internal/audit"
	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/partial"
	"github.com/careloop/surveyengine/internal/types"
)

// Manager exposes assignment creation and the lifecycle transitions.
type Manager struct {
	q        *db.Queries
	catalog  types.InstrumentCatalog
	partials *partial.Store
	auditor  *audit.Recorder
	log      *slog.Logger
	now      func() time.Time
}

// NewManager wires a Manager.
func NewManager(q *db.Queries, catalog types.InstrumentCatalog, partials *partial.Store, auditor *audit.Recorder, log *slog.Logger) *Manager {
	return &Manager{
		q:        q,
		catalog:  catalog,
		partials: partials,
		auditor:  auditor,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create atomically creates an assignment from an intent. Creation is
// duplicate-safe: when the intent's dedupe key collides with an existing row
// the insert affects zero rows, the intent is dropped, and (nil, false, nil)
// is returned — another evaluation already satisfied the same logical
// opportunity.
func (m *Manager) Create(ctx context.Context, intent types.AssignmentIntent) (*types.Assignment, bool, error) {
	a := types.Assignment{
		AssignmentID:  types.NewAssignmentID(),
		SubjectID:     intent.SubjectID,
		InstrumentID:  intent.InstrumentID,
		Status:        types.StatusPending,
		TriggerReason: intent.Reason,
		DueAt:         intent.DueAt,
		AssignedBy:    intent.Actor,
		DedupeKey:     intent.DedupeKey,
		CreatedAt:     m.now(),
	}
	if intent.Rule != nil {
		a.RuleID = &intent.Rule.RuleID
		if !intent.Rule.AutoAssign {
			a.Status = types.StatusAwaitingApproval
		}
	}

	res, err := m.q.Exec(ctx, "create-assignment",
		a.AssignmentID, a.SubjectID, a.InstrumentID, a.Status, a.RuleID,
		a.TriggerReason, a.DueAt, a.AssignedBy, a.DedupeKey, a.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create assignment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, false, nil
	}

	kind := audit.KindManualAssignment
	detail := "manual assignment"
	if intent.Rule != nil {
		kind = audit.KindRuleAssignment
		detail = fmt.Sprintf("trigger_type=%s", intent.Rule.TriggerType)
	}
	if err := m.auditor.Record(ctx, audit.Entry{
		Kind:         kind,
		SubjectID:    &a.SubjectID,
		AssignmentID: &a.AssignmentID,
		RuleID:       a.RuleID,
		Actor:        intent.Actor,
		Detail:       detail,
	}); err != nil {
		m.log.Warn("audit write failed", "kind", kind, "assignment", a.AssignmentID, "error", err)
	}

	return &a, true, nil
}

// Get returns one assignment by id.
func (m *Manager) Get(ctx context.Context, id types.AssignmentID) (*types.Assignment, error) {
	var a types.Assignment
	err := m.q.Get(ctx, "get-assignment", &a, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// ListBySubject returns a subject's assignments, newest first.
func (m *Manager) ListBySubject(ctx context.Context, subject types.SubjectID) ([]types.Assignment, error) {
	var list []types.Assignment
	if err := m.q.Select(ctx, "list-assignments-by-subject", &list, subject); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return list, nil
}

// ListAwaitingApproval returns the staff approval queue, oldest first.
func (m *Manager) ListAwaitingApproval(ctx context.Context) ([]types.Assignment, error) {
	var list []types.Assignment
	if err := m.q.Select(ctx, "list-awaiting-approval", &list); err != nil {
		return nil, fmt.Errorf("failed to list approval queue: %w", err)
	}
	return list, nil
}

// Approve moves awaiting_approval to pending.
func (m *Manager) Approve(ctx context.Context, id types.AssignmentID, actor string) error {
	return m.transition(ctx, id, "mark-approved", audit.KindApproved, &actor)
}

// Decline moves awaiting_approval to dismissed. Dismissal is the only
// explicit cancellation and is final.
func (m *Manager) Decline(ctx context.Context, id types.AssignmentID, actor string) error {
	return m.transition(ctx, id, "mark-declined", audit.KindDeclined, &actor)
}

// Open moves pending to in_progress. Idempotent: opening an assignment that
// is already in_progress refreshes the last-opened marker and is not an
// error. Partial answers are untouched either way.
func (m *Manager) Open(ctx context.Context, id types.AssignmentID, actor string) error {
	now := m.now()
	res, err := m.q.Exec(ctx, "mark-opened", now, now, id)
	if err != nil {
		return fmt.Errorf("failed to open assignment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return m.transitionFailure(ctx, id)
	}

	if err := m.auditor.Record(ctx, audit.Entry{
		Kind:         audit.KindOpened,
		AssignmentID: &id,
		Actor:        &actor,
	}); err != nil {
		m.log.Warn("audit write failed", "kind", audit.KindOpened, "assignment", id, "error", err)
	}
	return nil
}

func (m *Manager) transition(ctx context.Context, id types.AssignmentID, query string, kind audit.Kind, actor *string) error {
	res, err := m.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed transition %s: %w", kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return m.transitionFailure(ctx, id)
	}

	if err := m.auditor.Record(ctx, audit.Entry{
		Kind:         kind,
		AssignmentID: &id,
		Actor:        actor,
	}); err != nil {
		m.log.Warn("audit write failed", "kind", kind, "assignment", id, "error", err)
	}
	return nil
}

// transitionFailure distinguishes a missing assignment from one in a status
// that does not permit the requested transition.
func (m *Manager) transitionFailure(ctx context.Context, id types.AssignmentID) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	return types.ErrInvalidTransition
}
