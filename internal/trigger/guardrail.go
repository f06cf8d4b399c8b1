package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/careloop/surveyengine/internal/audit"
	"github.com/careloop/surveyengine/internal/core/config"
	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/types"
)

// Monitor applies cross-cutting policy checks during evaluation: overload
// protection and rule-conflict warnings. Suppression is a guardrail outcome,
// not an error; it surfaces to staff through the audit stream.
type Monitor struct {
	q       *db.Queries
	cfg     *config.EngineConfig
	auditor *audit.Recorder
	log     *slog.Logger
}

// NewMonitor wires a Monitor.
func NewMonitor(q *db.Queries, cfg *config.EngineConfig, auditor *audit.Recorder, log *slog.Logger) *Monitor {
	return &Monitor{q: q, cfg: cfg, auditor: auditor, log: log}
}

// Overloaded reports whether the subject already has the configured maximum
// of pending/in_progress assignments across all instruments. Automatic
// intents are suppressed at or above the limit; manual assignment never is.
func (m *Monitor) Overloaded(ctx context.Context, subject types.SubjectID) (bool, error) {
	var open int
	if err := m.q.Get(ctx, "count-open-assignments", &open, subject); err != nil {
		return false, fmt.Errorf("failed to count open assignments: %w", err)
	}
	return open >= m.cfg.MaxOpenAssignments, nil
}

// Suppress records the staff-visible notice for one suppressed intent.
func (m *Monitor) Suppress(ctx context.Context, subject types.SubjectID, rule *types.TriggerRule) {
	m.log.Info("automatic assignment suppressed by overload guardrail",
		"subject", subject, "rule", rule.RuleID, "instrument", rule.InstrumentID)
	if err := m.auditor.Record(ctx, audit.Entry{
		Kind:      audit.KindSuppressed,
		SubjectID: &subject,
		RuleID:    &rule.RuleID,
		Detail:    fmt.Sprintf("open assignment limit %d reached", m.cfg.MaxOpenAssignments),
	}); err != nil {
		m.log.Warn("audit write failed", "kind", audit.KindSuppressed, "subject", subject, "error", err)
	}
}

// WarnConflicts logs when multiple matched rules target the same instrument
// for one subject. Both intents proceed; identical dedupe keys collapse to
// one assignment in the atomic-create guard.
func (m *Monitor) WarnConflicts(subject types.SubjectID, matched []*types.TriggerRule) {
	byInstrument := make(map[types.InstrumentID][]types.RuleID)
	for _, rule := range matched {
		byInstrument[rule.InstrumentID] = append(byInstrument[rule.InstrumentID], rule.RuleID)
	}
	for instrument, rules := range byInstrument {
		if len(rules) > 1 {
			m.log.Warn("multiple rules matched the same instrument",
				"subject", subject, "instrument", instrument, "rules", rules)
		}
	}
}
