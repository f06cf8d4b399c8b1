// Package trigger decides when instruments are assigned.
//
// The Evaluation Engine runs in two caller contexts and nowhere else — there
// is no background scheduler:
//
//   - pull: dashboard/profile access calls Evaluate(subject). Latency
//     sensitive, so results are gated by a short-lived per-subject cache.
//   - push: the event- and enrolment-ingestion paths call HandleEvent /
//     HandleEnrolment exactly once per qualifying write, after that write's
//     transaction has committed. Callers must not invoke these before the
//     triggering write is visible to reads, or rules evaluate against stale
//     state. Push paths bypass and invalidate the cache.
//
// Rules that reference missing or unpublished instruments are skipped and
// logged, never fatal. Duplicate creations race-resolved by the lifecycle
// manager's atomic create are dropped silently.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/careloop/surveyengine/internal/assignment"
	"github.com/careloop/surveyengine/internal/audit"
	"github.com/careloop/surveyengine/internal/core/config"
	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/rulestore"
	"github.com/careloop/surveyengine/internal/types"
)

// Engine orchestrates anchor resolution, repeat-policy checks, and guardrails
// across the active rule set, producing assignment-creation intents.
type Engine struct {
	cfg         *config.EngineConfig
	q           *db.Queries
	rules       *rulestore.Store
	assignments *assignment.Manager
	catalog     types.InstrumentCatalog
	subjects    types.SubjectDirectory
	monitor     *Monitor
	auditor     *audit.Recorder
	cache       *evalCache
	log         *slog.Logger
	now         func() time.Time
}

// NewEngine wires an Engine.
func NewEngine(
	cfg *config.EngineConfig,
	q *db.Queries,
	rules *rulestore.Store,
	assignments *assignment.Manager,
	catalog types.InstrumentCatalog,
	subjects types.SubjectDirectory,
	monitor *Monitor,
	auditor *audit.Recorder,
	log *slog.Logger,
) *Engine {
	return &Engine{
		cfg:         cfg,
		q:           q,
		rules:       rules,
		assignments: assignments,
		catalog:     catalog,
		subjects:    subjects,
		monitor:     monitor,
		auditor:     auditor,
		cache:       newEvalCache(cfg.EvalCacheTTL),
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the pull path for one subject, returning any assignments it
// created. Time and characteristic rules only: event and enrolment rules
// react on their ingestion paths, not on access.
func (e *Engine) Evaluate(ctx context.Context, subjectID types.SubjectID) ([]types.Assignment, error) {
	if e.cache.fresh(subjectID) {
		return nil, nil
	}

	subject, err := e.subjects.Subject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !subject.Active || len(subject.Enrolments) == 0 {
		e.cache.touch(subjectID)
		return nil, nil
	}

	var candidates []types.TriggerRule
	for _, t := range []types.TriggerType{types.TriggerTime, types.TriggerCharacteristic} {
		rules, err := e.rules.ListActiveByType(ctx, t)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, rules...)
	}

	var matched []*types.TriggerRule
	for i := range candidates {
		rule := &candidates[i]
		ok, err := e.ruleMatches(ctx, rule, subject)
		if err != nil {
			e.log.Warn("skipping rule", "rule", rule.RuleID, "error", err)
			continue
		}
		if ok {
			matched = append(matched, rule)
		}
	}
	e.monitor.WarnConflicts(subjectID, matched)

	created, err := e.createForRules(ctx, matched, subject)
	if err != nil {
		return nil, err
	}

	e.cache.touch(subjectID)
	return created, nil
}

// HandleEvent runs the push path for one durably recorded domain event.
// Must be invoked exactly once per qualifying event, after the event's write
// has committed.
func (e *Engine) HandleEvent(ctx context.Context, ev types.DomainEvent) ([]types.Assignment, error) {
	e.cache.invalidate(ev.SubjectID)

	rules, err := e.rules.ListActiveEventRules(ctx, ev.Category)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	subject, err := e.subjects.Subject(ctx, ev.SubjectID)
	if err != nil {
		return nil, err
	}
	if !subject.Active {
		return nil, nil
	}

	matched := make([]*types.TriggerRule, 0, len(rules))
	for i := range rules {
		if e.instrumentAssignable(ctx, &rules[i]) {
			matched = append(matched, &rules[i])
		}
	}
	e.monitor.WarnConflicts(subject.SubjectID, matched)

	return e.createForRules(ctx, matched, subject)
}

// HandleEnrolment runs the push path for one durably recorded enrolment.
// Same commit-visibility contract as HandleEvent.
func (e *Engine) HandleEnrolment(ctx context.Context, enr types.Enrolment) ([]types.Assignment, error) {
	e.cache.invalidate(enr.SubjectID)

	rules, err := e.rules.ListActiveProgramRules(ctx, types.TriggerEnrolment, enr.ProgramID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	subject, err := e.subjects.Subject(ctx, enr.SubjectID)
	if err != nil {
		return nil, err
	}
	if !subject.Active {
		return nil, nil
	}

	matched := make([]*types.TriggerRule, 0, len(rules))
	for i := range rules {
		if e.instrumentAssignable(ctx, &rules[i]) {
			matched = append(matched, &rules[i])
		}
	}
	e.monitor.WarnConflicts(subject.SubjectID, matched)

	return e.createForRules(ctx, matched, subject)
}

// ActivateRule turns a rule on and, when its include_existing flag is set,
// evaluates it once against the current population matching its program
// filter. The sweep is bounded by the program's membership, not a background
// scan.
func (e *Engine) ActivateRule(ctx context.Context, id types.RuleID) (int, error) {
	rule, err := e.rules.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := e.rules.SetActive(ctx, id, true); err != nil {
		return 0, err
	}
	rule.Active = true

	if !rule.IncludeExisting || rule.ProgramID == nil {
		return 0, nil
	}

	subjectIDs, err := e.subjects.SubjectsInProgram(ctx, *rule.ProgramID)
	if err != nil {
		return 0, fmt.Errorf("failed to list program subjects: %w", err)
	}

	created := 0
	for _, subjectID := range subjectIDs {
		e.cache.invalidate(subjectID)
		subject, err := e.subjects.Subject(ctx, subjectID)
		if err != nil {
			e.log.Warn("skipping subject in activation sweep", "subject", subjectID, "error", err)
			continue
		}
		if !subject.Active {
			continue
		}
		ok, err := e.ruleMatches(ctx, rule, subject)
		if err != nil || !ok {
			continue
		}
		list, err := e.createForRules(ctx, []*types.TriggerRule{rule}, subject)
		if err != nil {
			return created, err
		}
		created += len(list)
	}

	return created, nil
}

// DeactivateForInstrument atomically deactivates every rule referencing an
// instrument whose publishing state became closed or archived. In-flight
// assignments are unaffected.
func (e *Engine) DeactivateForInstrument(ctx context.Context, instrument types.InstrumentID) (int64, error) {
	n, err := e.rules.DeactivateForInstrument(ctx, instrument)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info("deactivated rules for instrument", "instrument", instrument, "rules", n)
		if err := e.auditor.Record(ctx, audit.Entry{
			Kind:   audit.KindRulesDeactivated,
			Detail: fmt.Sprintf("instrument=%s rules=%d", instrument, n),
		}); err != nil {
			e.log.Warn("audit write failed", "kind", audit.KindRulesDeactivated, "error", err)
		}
	}
	return n, nil
}

// ruleMatches applies the per-type gates: program membership for every pull
// rule, plus the elapsed-time gate for time rules. Enrolment rules appearing
// here (activation sweeps) match on membership alone.
func (e *Engine) ruleMatches(ctx context.Context, rule *types.TriggerRule, subject *types.Subject) (bool, error) {
	if !e.instrumentAssignable(ctx, rule) {
		return false, nil
	}
	if rule.ProgramID == nil {
		return false, fmt.Errorf("%w: rule %s has no program", types.ErrRuleMisconfigured, rule.RuleID)
	}
	enr := subject.EnrolmentIn(*rule.ProgramID)
	if enr == nil {
		return false, nil
	}

	switch rule.TriggerType {
	case types.TriggerCharacteristic, types.TriggerEnrolment:
		return true, nil

	case types.TriggerTime:
		if rule.RecurrenceDays == nil {
			return false, fmt.Errorf("%w: rule %s has no recurrence interval", types.ErrRuleMisconfigured, rule.RuleID)
		}
		anchor, err := e.resolveAnchor(ctx, rule, enr)
		if err != nil {
			return false, err
		}
		if anchor.IsZero() {
			return false, nil
		}
		elapsed := e.now().Sub(anchor)
		return elapsed >= time.Duration(*rule.RecurrenceDays)*24*time.Hour, nil

	default:
		return false, fmt.Errorf("%w: trigger type %q is not pull-evaluated", types.ErrRuleMisconfigured, rule.TriggerType)
	}
}

// createForRules runs the repeat-policy guard, the overload guardrail, and
// the atomic create for each matched rule.
func (e *Engine) createForRules(ctx context.Context, matched []*types.TriggerRule, subject *types.Subject) ([]types.Assignment, error) {
	var created []types.Assignment
	for _, rule := range matched {
		allowed, err := e.repeatAllowed(ctx, rule, subject)
		if err != nil {
			e.log.Warn("skipping rule", "rule", rule.RuleID, "error", err)
			continue
		}
		if !allowed {
			continue
		}

		overloaded, err := e.monitor.Overloaded(ctx, subject.SubjectID)
		if err != nil {
			return created, err
		}
		if overloaded {
			e.monitor.Suppress(ctx, subject.SubjectID, rule)
			continue
		}

		a, ok, err := e.assignments.Create(ctx, types.AssignmentIntent{
			SubjectID:    subject.SubjectID,
			InstrumentID: rule.InstrumentID,
			Rule:         rule,
			Reason:       fmt.Sprintf("%s rule %q", rule.TriggerType, rule.Name),
			DueAt:        dueAt(rule, e.now()),
			DedupeKey:    dedupeKey(rule, subject),
		})
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, *a)
		}
	}
	return created, nil
}

// instrumentAssignable reports whether the rule's instrument exists and is in
// an active publishing state. Failures are configuration errors: skipped and
// logged, never fatal.
func (e *Engine) instrumentAssignable(ctx context.Context, rule *types.TriggerRule) bool {
	instrument, err := e.catalog.Instrument(ctx, rule.InstrumentID)
	if err != nil {
		e.log.Warn("rule references unavailable instrument",
			"rule", rule.RuleID, "instrument", rule.InstrumentID, "error", err)
		return false
	}
	return instrument.State.Assignable()
}

func dueAt(rule *types.TriggerRule, now time.Time) *time.Time {
	if rule.DueOffsetDays == nil {
		return nil
	}
	due := now.Add(time.Duration(*rule.DueOffsetDays) * 24 * time.Hour)
	return &due
}
