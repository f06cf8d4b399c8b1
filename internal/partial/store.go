// Package partial persists in-progress answers keyed by (assignment,
// question).
//
// Writes upsert rather than append, so each (assignment, question) pair has
// at most one draft. Upserts to different questions of the same assignment
// never contend on a shared lock; concurrent writes to the same question
// resolve last-write-wins by timestamp. Values are sealed at rest and carry
// no audit significance until promoted into a Response.
package partial

import (
	"context"
	"fmt"
	"time"

	"github.com/careloop/surveyengine/internal/core/db"
	"github.com/careloop/surveyengine/internal/types"
	"github.com/jmoiron/sqlx"
)

// Store is the Partial Response Store.
type Store struct {
	q      *db.Queries
	sealer *Sealer
	now    func() time.Time
}

// NewStore creates a Store over the given query set and sealer.
func NewStore(q *db.Queries, sealer *Sealer) *Store {
	return &Store{q: q, sealer: sealer, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert seals and stores a value, replacing any prior draft for the same
// (assignment, question) pair. A concurrent write carrying a newer timestamp
// wins; this write is then a no-op, not an error.
func (s *Store) Upsert(ctx context.Context, assignment types.AssignmentID, question types.QuestionID, value types.AnswerValue) error {
	keyID, ciphertext, err := s.sealer.Seal(value)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, "upsert-partial", assignment, question, ciphertext, keyID, s.now())
	if err != nil {
		return fmt.Errorf("failed to upsert partial answer: %w", err)
	}
	return nil
}

// ReadAll returns the decoded draft answers for an assignment.
func (s *Store) ReadAll(ctx context.Context, assignment types.AssignmentID) (map[types.QuestionID]types.AnswerValue, error) {
	var rows []types.PartialAnswer
	if err := s.q.Select(ctx, "list-partials", &rows, assignment); err != nil {
		return nil, fmt.Errorf("failed to read partial answers: %w", err)
	}
	return s.decode(rows)
}

// ReadAllTx is ReadAll within an open transaction, used by submit so the
// promoted answer set is the one the transaction observes.
func (s *Store) ReadAllTx(ctx context.Context, tx *sqlx.Tx, assignment types.AssignmentID) (map[types.QuestionID]types.AnswerValue, error) {
	var rows []types.PartialAnswer
	if err := s.q.SelectTx(ctx, tx, "list-partials", &rows, assignment); err != nil {
		return nil, fmt.Errorf("failed to read partial answers: %w", err)
	}
	return s.decode(rows)
}

func (s *Store) decode(rows []types.PartialAnswer) (map[types.QuestionID]types.AnswerValue, error) {
	values := make(map[types.QuestionID]types.AnswerValue, len(rows))
	for _, row := range rows {
		value, err := s.sealer.Open(row.KeyID, row.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("partial answer %s/%s: %w", row.AssignmentID, row.QuestionID, err)
		}
		values[row.QuestionID] = value
	}
	return values, nil
}

// DiscardQuestions deletes the drafts for the given questions. Used by the
// Conditional Section Resolver's retraction rule when a section's condition
// stops being met.
func (s *Store) DiscardQuestions(ctx context.Context, assignment types.AssignmentID, questions []types.QuestionID) error {
	for _, question := range questions {
		if _, err := s.q.Exec(ctx, "delete-partial", assignment, question); err != nil {
			return fmt.Errorf("failed to discard partial answer for %s: %w", question, err)
		}
	}
	return nil
}

// DiscardQuestionsTx is DiscardQuestions within an open transaction.
func (s *Store) DiscardQuestionsTx(ctx context.Context, tx *sqlx.Tx, assignment types.AssignmentID, questions []types.QuestionID) error {
	for _, question := range questions {
		if _, err := s.q.ExecTx(ctx, tx, "delete-partial", assignment, question); err != nil {
			return fmt.Errorf("failed to discard partial answer for %s: %w", question, err)
		}
	}
	return nil
}

// DeleteAllTx removes every draft for an assignment within an open
// transaction. Called by submit after promotion.
func (s *Store) DeleteAllTx(ctx context.Context, tx *sqlx.Tx, assignment types.AssignmentID) error {
	if _, err := s.q.ExecTx(ctx, tx, "delete-all-partials", assignment); err != nil {
		return fmt.Errorf("failed to delete partial answers: %w", err)
	}
	return nil
}
