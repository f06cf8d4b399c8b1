// Package rulestore persists Trigger Rule definitions.
//
// Administrators read and write rules; the evaluation engine only reads them.
// Read-heavy, write-light: standard read-committed isolation is enough, no
// special concurrency handling.
package rulestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/types"
)

// Store is the Rule Store.
type Store struct {
	q   *db.Queries
	now func() time.Time
}

// NewStore creates a Store over the given query set.
func NewStore(q *db.Queries) *Store {
	return &Store{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// Validate checks that the rule's load-bearing field for its trigger type is
// present. Rules failing this are rejected at save time; a misconfigured rule
// that somehow reaches evaluation is skipped and logged, never fatal.
func Validate(rule *types.TriggerRule) error {
	switch rule.TriggerType {
	case types.TriggerEvent:
		if rule.EventCategory == nil || *rule.EventCategory == "" {
			return fmt.Errorf("%w: event rule requires an event category", types.ErrRuleMisconfigured)
		}
	case types.TriggerTime:
		if rule.ProgramID == nil || *rule.ProgramID == "" {
			return fmt.Errorf("%w: time rule requires a program", types.ErrRuleMisconfigured)
		}
		if rule.RecurrenceDays == nil || *rule.RecurrenceDays <= 0 {
			return fmt.Errorf("%w: time rule requires a positive recurrence interval", types.ErrRuleMisconfigured)
		}
		if rule.Anchor != types.AnchorEnrolmentDate && rule.Anchor != types.AnchorLastCompleted {
			return fmt.Errorf("%w: time rule requires a valid anchor", types.ErrRuleMisconfigured)
		}
	case types.TriggerEnrolment, types.TriggerCharacteristic:
		if rule.ProgramID == nil || *rule.ProgramID == "" {
			return fmt.Errorf("%w: %s rule requires a program", types.ErrRuleMisconfigured, rule.TriggerType)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", types.ErrRuleMisconfigured, rule.TriggerType)
	}

	switch rule.RepeatPolicy {
	case types.RepeatOncePerSubject, types.RepeatOncePerEnrolment, types.RepeatRecurring:
	default:
		return fmt.Errorf("%w: unknown repeat policy %q", types.ErrRuleMisconfigured, rule.RepeatPolicy)
	}

	return nil
}

// Create validates and persists a rule.
func (s *Store) Create(ctx context.Context, rule *types.TriggerRule) error {
	if err := Validate(rule); err != nil {
		return err
	}

	if rule.RuleID == "" {
		rule.RuleID = types.NewRuleID()
	}
	if rule.Anchor == "" {
		rule.Anchor = types.AnchorEnrolmentDate
	}
	rule.CreatedAt = s.now()
	rule.UpdatedAt = rule.CreatedAt

	_, err := s.q.Exec(ctx, "create-rule",
		rule.RuleID, rule.InstrumentID, rule.Name, rule.TriggerType,
		rule.EventCategory, rule.ProgramID, rule.RecurrenceDays, rule.Anchor,
		rule.RepeatPolicy, rule.AutoAssign, rule.IncludeExisting,
		rule.DueOffsetDays, rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Get returns one rule by id.
func (s *Store) Get(ctx context.Context, id types.RuleID) (*types.TriggerRule, error) {
	var rule types.TriggerRule
	err := s.q.Get(ctx, "get-rule", &rule, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// ListActiveByType returns active rules of one trigger type.
func (s *Store) ListActiveByType(ctx context.Context, t types.TriggerType) ([]types.TriggerRule, error) {
	var rules []types.TriggerRule
	if err := s.q.Select(ctx, "list-active-rules-by-type", &rules, true, t); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListActiveEventRules returns active event rules qualifying for a category.
func (s *Store) ListActiveEventRules(ctx context.Context, category string) ([]types.TriggerRule, error) {
	var rules []types.TriggerRule
	if err := s.q.Select(ctx, "list-active-event-rules", &rules, true, category); err != nil {
		return nil, fmt.Errorf("failed to list event rules: %w", err)
	}
	return rules, nil
}

// ListActiveProgramRules returns active rules of one trigger type scoped to a
// program.
func (s *Store) ListActiveProgramRules(ctx context.Context, t types.TriggerType, program types.ProgramID) ([]types.TriggerRule, error) {
	var rules []types.TriggerRule
	if err := s.q.Select(ctx, "list-active-program-rules", &rules, true, t, program); err != nil {
		return nil, fmt.Errorf("failed to list program rules: %w", err)
	}
	return rules, nil
}

// ListActiveForInstrument returns all active rules referencing an instrument.
// Used for rule-conflict warnings.
func (s *Store) ListActiveForInstrument(ctx context.Context, instrument types.InstrumentID) ([]types.TriggerRule, error) {
	var rules []types.TriggerRule
	if err := s.q.Select(ctx, "list-active-rules-for-instrument", &rules, true, instrument); err != nil {
		return nil, fmt.Errorf("failed to list instrument rules: %w", err)
	}
	return rules, nil
}

// SetActive toggles one rule's active flag.
func (s *Store) SetActive(ctx context.Context, id types.RuleID, active bool) error {
	res, err := s.q.Exec(ctx, "set-rule-active", active, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

// DeactivateForInstrument sets active=false on every rule referencing the
// instrument, in one statement. Called when the instrument's publishing state
// becomes closed or archived; in-flight assignments are unaffected.
func (s *Store) DeactivateForInstrument(ctx context.Context, instrument types.InstrumentID) (int64, error) {
	res, err := s.q.Exec(ctx, "deactivate-rules-for-instrument", false, s.now(), instrument)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate rules: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
