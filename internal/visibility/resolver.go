// Package visibility resolves which sections of an instrument currently
// apply, given the answers collected so far.
//
// Section visibility is derived state: recomputed as a pure function of
// (section tree, answers) on every read, never persisted. A condition whose
// target question is unanswered excludes the dependent section (fail-closed).
// Answers belonging to sections that are themselves hidden are ignored when
// evaluating later conditions, so a retracted branch cannot keep a dependent
// branch alive.
package visibility

import (
	"strconv"

	"github.com/careloop/surveyengine/internal/types"
)

// VisibleSections returns the ordered list of sections currently applicable.
// Sections without a condition are always included; conditional sections are
// included only while the current answer set contains a matching value for
// the target question.
func VisibleSections(in *types.Instrument, answers map[types.QuestionID]types.AnswerValue) []types.Section {
	visible := make([]types.Section, 0, len(in.Sections))
	// Answers only count toward conditions once their own section is known
	// to be visible; built up incrementally in section order.
	usable := make(map[types.QuestionID]types.AnswerValue, len(answers))

	for si := range in.Sections {
		section := &in.Sections[si]
		if section.Condition != nil && !conditionMet(in, section.Condition, usable) {
			continue
		}
		visible = append(visible, *section)
		for qi := range section.Questions {
			id := section.Questions[qi].QuestionID
			if v, ok := answers[id]; ok {
				usable[id] = v
			}
		}
	}

	return visible
}

// Pages groups the visible sections at page boundaries. The first visible
// section always starts the first page; a section flagged StartsNewPage opens
// a new one. The page count is a function of current answers and must be
// recomputed after every answer mutation.
func Pages(in *types.Instrument, answers map[types.QuestionID]types.AnswerValue) [][]types.Section {
	visible := VisibleSections(in, answers)
	var pages [][]types.Section

	for _, section := range visible {
		if len(pages) == 0 || section.StartsNewPage {
			pages = append(pages, nil)
		}
		pages[len(pages)-1] = append(pages[len(pages)-1], section)
	}

	return pages
}

// Retractions returns the questions whose answers must be deleted because the
// governing section is no longer visible. A submitted response must never
// contain an answer for a hidden question, so callers delete these rather
// than merely hiding them.
func Retractions(in *types.Instrument, answers map[types.QuestionID]types.AnswerValue) []types.QuestionID {
	visible := VisibleSections(in, answers)

	shown := make(map[types.QuestionID]bool)
	for si := range visible {
		for qi := range visible[si].Questions {
			shown[visible[si].Questions[qi].QuestionID] = true
		}
	}

	var retract []types.QuestionID
	for si := range in.Sections {
		for qi := range in.Sections[si].Questions {
			id := in.Sections[si].Questions[qi].QuestionID
			if _, answered := answers[id]; answered && !shown[id] {
				retract = append(retract, id)
			}
		}
	}

	return retract
}

// conditionMet reports whether the target question's answer matches the
// condition value. Unanswered targets never match.
func conditionMet(in *types.Instrument, cond *types.SectionCondition, answers map[types.QuestionID]types.AnswerValue) bool {
	value, ok := answers[cond.QuestionID]
	if !ok || value.Empty() {
		return false
	}

	question := in.Question(cond.QuestionID)
	if question == nil {
		return false
	}

	switch question.Kind {
	case types.QuestionText:
		return value.Text == cond.Value
	case types.QuestionNumber:
		if value.Number == nil {
			return false
		}
		return strconv.FormatFloat(*value.Number, 'f', -1, 64) == cond.Value
	case types.QuestionSingleChoice, types.QuestionMultiChoice:
		for _, id := range value.Options {
			if opt := question.Option(id); opt != nil && opt.Value == cond.Value {
				return true
			}
		}
		return false
	default:
		return false
	}
}
