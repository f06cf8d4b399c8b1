// Package scoring computes per-section and instrument-level scores from a
// set of finalized answers.
//
// Scoring is a pure pattern-match over the closed set of question kinds: only
// choice questions carry point values, and only sections configured with a
// scoring method produce a score. A section with zero answered scorable
// questions yields nil, not zero, so "no data" stays distinguishable from "a
// score of zero".
package scoring

import "github.com/careloop/surveyengine/internal/types"

// SectionResult is one section's computed score.
type SectionResult struct {
	SectionID types.SectionID
	Method    types.ScoringMethod
	Score     float64
}

// Result is the full scoring outcome for one submission. Aggregate is nil
// unless the instrument configures an aggregate and at least one section
// produced a score.
type Result struct {
	Sections  []SectionResult
	Aggregate *float64
}

// SectionScore computes a section's score from decoded answers, or nil when
// the section is unscored or has no answered scorable questions.
func SectionScore(section *types.Section, answers map[types.QuestionID]types.AnswerValue) *float64 {
	if section.Scoring == types.ScoringNone || section.Scoring == "" {
		return nil
	}

	var sum float64
	answered := 0
	for qi := range section.Questions {
		q := &section.Questions[qi]
		if !q.Kind.Scorable() {
			continue
		}
		value, ok := answers[q.QuestionID]
		if !ok || len(value.Options) == 0 {
			continue
		}
		answered++
		sum += OptionPoints(q, value)
	}

	if answered == 0 {
		return nil
	}

	switch section.Scoring {
	case types.ScoringSum:
		return &sum
	case types.ScoringAverage:
		avg := sum / float64(answered)
		return &avg
	default:
		return nil
	}
}

// OptionPoints sums the configured point values of the options selected in
// value. Selections referencing unknown options contribute nothing.
func OptionPoints(q *types.Question, value types.AnswerValue) float64 {
	var sum float64
	for _, id := range value.Options {
		if opt := q.Option(id); opt != nil {
			sum += opt.Points
		}
	}
	return sum
}

// Compute scores every visible section and, when the instrument configures
// one, the aggregate. Sections hidden by the Conditional Section Resolver
// must not appear in visible: they contribute neither a score nor a nil
// placeholder.
func Compute(in *types.Instrument, visible []types.Section, answers map[types.QuestionID]types.AnswerValue) Result {
	var result Result
	var aggregate float64
	contributing := 0

	for si := range visible {
		score := SectionScore(&visible[si], answers)
		if score == nil {
			continue
		}
		result.Sections = append(result.Sections, SectionResult{
			SectionID: visible[si].SectionID,
			Method:    visible[si].Scoring,
			Score:     *score,
		})
		aggregate += *score
		contributing++
	}

	if in.Aggregate && contributing > 0 {
		result.Aggregate = &aggregate
	}

	return result
}
