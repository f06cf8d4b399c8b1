package types

import "github.com/google/uuid"

// Identifier aliases. UUIDv7 time-ordering ensures sequential IDs cluster in
// B-tree indexes; string aliases keep JSON and database serialization plain.
type (
	RuleID       string
	AssignmentID string
	InstrumentID string
	SectionID    string
	QuestionID   string
	OptionID     string
	SubjectID    string
	ProgramID    string
	ResponseID   string
	AnswerID     string
)

// NewRuleID generates a UUIDv7 rule identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewAssignmentID generates a UUIDv7 assignment identifier.
func NewAssignmentID() AssignmentID {
	return AssignmentID(uuid.Must(uuid.NewV7()).String())
}

// NewResponseID generates a UUIDv7 response identifier.
func NewResponseID() ResponseID {
	return ResponseID(uuid.Must(uuid.NewV7()).String())
}

// NewAnswerID generates a UUIDv7 answer identifier.
func NewAnswerID() AnswerID {
	return AnswerID(uuid.Must(uuid.NewV7()).String())
}

// ParseRuleID validates and converts a string to RuleID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseAssignmentID validates and converts a string to AssignmentID.
func ParseAssignmentID(s string) (AssignmentID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return AssignmentID(s), nil
}
