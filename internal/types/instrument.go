package types

import "context"

/*
 * Read-only instrument model.
 *
 * Instrument definitions (sections, questions, conditions, scoring
 * configuration) are authored and stored outside this engine. The engine
 * consumes them through the InstrumentCatalog interface so evaluation and
 * submission logic can be tested against fixed in-memory definitions.
 *
 * Per-question configuration is data, not behavior: a closed set of question
 * kinds with optional scored options. The Conditional Section Resolver and
 * Scoring Engine pattern-match over these variants.
 */

// PublishState is the authoring lifecycle of an instrument definition.
type PublishState string

const (
	PublishDraft     PublishState = "draft"
	PublishPublished PublishState = "published"
	PublishClosed    PublishState = "closed"
	PublishArchived  PublishState = "archived"
)

// Assignable reports whether rules referencing the instrument may still
// produce assignments.
func (p PublishState) Assignable() bool {
	return p == PublishPublished
}

// QuestionKind is the closed set of question variants.
type QuestionKind string

const (
	QuestionText         QuestionKind = "text"
	QuestionNumber       QuestionKind = "number"
	QuestionSingleChoice QuestionKind = "single_choice"
	QuestionMultiChoice  QuestionKind = "multi_choice"
)

// Scorable reports whether the kind can contribute to a section score.
func (k QuestionKind) Scorable() bool {
	return k == QuestionSingleChoice || k == QuestionMultiChoice
}

// ScoringMethod configures how a section aggregates its answers.
type ScoringMethod string

const (
	ScoringNone    ScoringMethod = "none"
	ScoringSum     ScoringMethod = "sum"
	ScoringAverage ScoringMethod = "average"
)

// Option is one selectable choice with its scoring point value.
type Option struct {
	OptionID OptionID
	Label    string
	Value    string
	Points   float64
}

// Question is one prompt within a section.
type Question struct {
	QuestionID QuestionID
	Prompt     string
	Kind       QuestionKind
	Required   bool
	Options    []Option
}

// Option returns the question's option with the given id, or nil.
func (q *Question) Option(id OptionID) *Option {
	for i := range q.Options {
		if q.Options[i].OptionID == id {
			return &q.Options[i]
		}
	}
	return nil
}

// SectionCondition gates a section on a previously collected answer: the
// section applies only while the target question's answer matches Value.
type SectionCondition struct {
	QuestionID QuestionID
	Value      string
}

// Section is an ordered group of questions, optionally conditional and
// optionally scored. StartsNewPage marks a page boundary in multi-page
// presentation.
type Section struct {
	SectionID     SectionID
	Title         string
	StartsNewPage bool
	Scoring       ScoringMethod
	Condition     *SectionCondition
	Questions     []Question
}

// Instrument is a complete survey definition. Sections are in presentation
// order. Aggregate enables the instrument-level score (sum of non-null
// section scores).
type Instrument struct {
	InstrumentID InstrumentID
	Title        string
	State        PublishState
	Anonymous    bool
	Aggregate    bool
	Sections     []Section
}

// Question returns the question with the given id wherever it appears in the
// section tree, or nil.
func (in *Instrument) Question(id QuestionID) *Question {
	for si := range in.Sections {
		for qi := range in.Sections[si].Questions {
			if in.Sections[si].Questions[qi].QuestionID == id {
				return &in.Sections[si].Questions[qi]
			}
		}
	}
	return nil
}

// InstrumentCatalog supplies instrument definitions to the engine.
// Implementations are read-only from the engine's point of view.
type InstrumentCatalog interface {
	Instrument(ctx context.Context, id InstrumentID) (*Instrument, error)
}

// SubjectDirectory supplies subject state (activity, memberships) to the
// engine.
type SubjectDirectory interface {
	Subject(ctx context.Context, id SubjectID) (*Subject, error)
	// SubjectsInProgram lists subjects currently enrolled in a program;
	// used by the include_existing activation sweep.
	SubjectsInProgram(ctx context.Context, id ProgramID) ([]SubjectID, error)
}
