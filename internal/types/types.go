// Package types provides domain models shared across survey engine components.
//
// Hand-written types only: trigger rules, assignments, partial and final
// answers, and the read-only instrument model the engine evaluates against.
// Persistence tags live here; persistence logic does not.
package types

import "time"

// TriggerType classifies what kind of occurrence a rule reacts to.
type TriggerType string

const (
	TriggerEvent          TriggerType = "event"
	TriggerTime           TriggerType = "time"
	TriggerEnrolment      TriggerType = "enrolment"
	TriggerCharacteristic TriggerType = "characteristic"
)

// AnchorKind selects the reference timestamp a time rule measures against.
type AnchorKind string

const (
	AnchorEnrolmentDate AnchorKind = "enrolment_date"
	AnchorLastCompleted AnchorKind = "last_completed"
)

// RepeatPolicy governs how often the same instrument may be re-assigned
// to the same subject.
type RepeatPolicy string

const (
	RepeatOncePerSubject   RepeatPolicy = "once_per_subject"
	RepeatOncePerEnrolment RepeatPolicy = "once_per_enrolment"
	RepeatRecurring        RepeatPolicy = "recurring"
)

// AssignmentStatus is the lifecycle state of an Assignment.
type AssignmentStatus string

const (
	StatusAwaitingApproval AssignmentStatus = "awaiting_approval"
	StatusPending          AssignmentStatus = "pending"
	StatusInProgress       AssignmentStatus = "in_progress"
	StatusCompleted        AssignmentStatus = "completed"
	StatusDismissed        AssignmentStatus = "dismissed"
)

// Terminal reports whether no forward transition leaves the status.
func (s AssignmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusDismissed
}

// Open reports whether the assignment counts against the overload guardrail
// and the recurring repeat policy.
func (s AssignmentStatus) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

// TriggerRule is a standing policy that may produce assignments.
//
// Exactly one of EventCategory, ProgramID, or RecurrenceDays is load-bearing
// depending on TriggerType: event rules carry an event category, time rules a
// program plus recurrence interval, enrolment and characteristic rules a
// program. An inactive rule never produces assignments.
type TriggerRule struct {
	RuleID          RuleID       `db:"rule_id"`
	InstrumentID    InstrumentID `db:"instrument_id"`
	Name            string       `db:"name"`
	TriggerType     TriggerType  `db:"trigger_type"`
	EventCategory   *string      `db:"event_category"`
	ProgramID       *ProgramID   `db:"program_id"`
	RecurrenceDays  *int         `db:"recurrence_days"`
	Anchor          AnchorKind   `db:"anchor"`
	RepeatPolicy    RepeatPolicy `db:"repeat_policy"`
	AutoAssign      bool         `db:"auto_assign"`
	IncludeExisting bool         `db:"include_existing"`
	DueOffsetDays   *int         `db:"due_offset_days"`
	Active          bool         `db:"active"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// Assignment tracks one subject's relationship to one instrument instance.
//
// RuleID is nil for manually created assignments; AssignedBy is nil for
// automatically created ones. DedupeKey backs the uniqueness constraints the
// repeat policies require; it is nil for manual creations and cleared when a
// recurring assignment reaches a terminal state. Assignments are never hard
// deleted.
type Assignment struct {
	AssignmentID  AssignmentID     `db:"assignment_id"`
	SubjectID     SubjectID        `db:"subject_id"`
	InstrumentID  InstrumentID     `db:"instrument_id"`
	Status        AssignmentStatus `db:"status"`
	RuleID        *RuleID          `db:"rule_id"`
	TriggerReason string           `db:"trigger_reason"`
	DueAt         *time.Time       `db:"due_at"`
	AssignedBy    *string          `db:"assigned_by"`
	DedupeKey     *string          `db:"dedupe_key"`
	CreatedAt     time.Time        `db:"created_at"`
	LastOpenedAt  *time.Time       `db:"last_opened_at"`
	StartedAt     *time.Time       `db:"started_at"`
	CompletedAt   *time.Time       `db:"completed_at"`
}

// AssignmentIntent is the Evaluation Engine's request to create one
// assignment. Creation is duplicate-safe: an intent whose dedupe key
// collides with an existing row is dropped, not an error.
type AssignmentIntent struct {
	SubjectID    SubjectID
	InstrumentID InstrumentID
	Rule         *TriggerRule // nil for manual creation
	Reason       string
	Actor        *string // staff identity for manual creation
	DueAt        *time.Time
	DedupeKey    *string
}

// AnswerValue is the decoded value of one answer, partial or final.
// Text carries free-text input, Number numeric input, Options the selected
// option ids for choice questions.
type AnswerValue struct {
	Text    string     `json:"text,omitempty"`
	Number  *float64   `json:"number,omitempty"`
	Options []OptionID `json:"options,omitempty"`
}

// Empty reports whether the value carries no answer content.
func (v AnswerValue) Empty() bool {
	return v.Text == "" && v.Number == nil && len(v.Options) == 0
}

// HasOption reports whether the given option is among the selected ones.
func (v AnswerValue) HasOption(id OptionID) bool {
	for _, o := range v.Options {
		if o == id {
			return true
		}
	}
	return false
}

// PartialAnswer is a draft answer for one question within one assignment,
// unique per (assignment, question). The value is stored sealed; KeyID
// records which encryption key sealed it.
type PartialAnswer struct {
	AssignmentID AssignmentID `db:"assignment_id"`
	QuestionID   QuestionID   `db:"question_id"`
	Ciphertext   []byte       `db:"ciphertext"`
	KeyID        string       `db:"key_id"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// Response is the permanent, submitted record for one assignment.
// SubjectID and AssignmentID are nil when the instrument is anonymous.
type Response struct {
	ResponseID   ResponseID    `db:"response_id"`
	InstrumentID InstrumentID  `db:"instrument_id"`
	AssignmentID *AssignmentID `db:"assignment_id"`
	SubjectID    *SubjectID    `db:"subject_id"`
	SubmittedAt  time.Time     `db:"submitted_at"`
}

// Answer is one finalized answer within a Response. TextValue carries free
// text, NumericValue the numeric input or the scored point value for choice
// questions.
type Answer struct {
	AnswerID     AnswerID   `db:"answer_id"`
	ResponseID   ResponseID `db:"response_id"`
	QuestionID   QuestionID `db:"question_id"`
	TextValue    *string    `db:"text_value"`
	NumericValue *float64   `db:"numeric_value"`
}

// Enrolment records one subject's membership in a program.
type Enrolment struct {
	SubjectID SubjectID
	ProgramID ProgramID
	StartDate time.Time
}

// Subject is the engine's read-only view of a person: activity flag plus
// current program memberships. Supplied by the surrounding ecosystem.
type Subject struct {
	SubjectID  SubjectID
	Active     bool
	Enrolments []Enrolment
}

// EnrolmentIn returns the subject's current enrolment in the given program,
// or nil if the subject does not hold that membership.
func (s *Subject) EnrolmentIn(program ProgramID) *Enrolment {
	for i := range s.Enrolments {
		if s.Enrolments[i].ProgramID == program {
			return &s.Enrolments[i]
		}
	}
	return nil
}

// CurrentEnrolmentStart returns the most recent enrolment start date across
// all memberships, or the zero time when the subject has none.
func (s *Subject) CurrentEnrolmentStart() time.Time {
	var latest time.Time
	for _, e := range s.Enrolments {
		if e.StartDate.After(latest) {
			latest = e.StartDate
		}
	}
	return latest
}

// DomainEvent is a qualifying occurrence delivered by the event-ingestion
// path. OccurredAt is the commit-visible timestamp of the triggering write.
type DomainEvent struct {
	SubjectID  SubjectID
	Category   string
	OccurredAt time.Time
}
