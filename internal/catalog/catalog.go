// Package catalog provides in-memory implementations of the engine's
// injected read dependencies: the instrument catalog and the subject
// directory. Production deployments adapt their own definition storage to
// the same interfaces; these implementations back the CLI and tests.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/careloop/surveyengine/internal/types"
)

// Static implements types.InstrumentCatalog over a fixed instrument set.
type Static struct {
	instruments map[types.InstrumentID]*types.Instrument
}

// NewStatic builds a Static catalog from a slice of definitions.
func NewStatic(instruments []types.Instrument) *Static {
	m := make(map[types.InstrumentID]*types.Instrument, len(instruments))
	for i := range instruments {
		m[instruments[i].InstrumentID] = &instruments[i]
	}
	return &Static{instruments: m}
}

// Instrument returns one definition by id.
func (s *Static) Instrument(_ context.Context, id types.InstrumentID) (*types.Instrument, error) {
	in, ok := s.instruments[id]
	if !ok {
		return nil, types.ErrInstrumentNotFound
	}
	return in, nil
}

// Directory implements types.SubjectDirectory over a fixed subject set.
type Directory struct {
	subjects map[types.SubjectID]*types.Subject
}

// NewDirectory builds a Directory from a slice of subjects.
func NewDirectory(subjects []types.Subject) *Directory {
	m := make(map[types.SubjectID]*types.Subject, len(subjects))
	for i := range subjects {
		m[subjects[i].SubjectID] = &subjects[i]
	}
	return &Directory{subjects: m}
}

// Subject returns one subject by id.
func (d *Directory) Subject(_ context.Context, id types.SubjectID) (*types.Subject, error) {
	s, ok := d.subjects[id]
	if !ok {
		return nil, types.ErrSubjectNotFound
	}
	return s, nil
}

// SubjectsInProgram lists subjects currently enrolled in a program.
func (d *Directory) SubjectsInProgram(_ context.Context, program types.ProgramID) ([]types.SubjectID, error) {
	var ids []types.SubjectID
	for id, s := range d.subjects {
		if s.EnrolmentIn(program) != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fixtureFile is the JSON layout LoadFile reads.
type fixtureFile struct {
	Instruments []types.Instrument `json:"instruments"`
	Subjects    []types.Subject    `json:"subjects"`
}

// LoadFile reads instrument definitions and subjects from a JSON fixture
// file, for CLI-driven evaluation against a development database.
func LoadFile(path string) (*Static, *Directory, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var f fixtureFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}

	return NewStatic(f.Instruments), NewDirectory(f.Subjects), nil
}
