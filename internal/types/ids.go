// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SubjectID string
type PlayerID string
type ActionID string
type TurnID string
type JournalEntryID string

func NewPlayerID() PlayerID {
	return PlayerID(uuid.New().String())
}

func NewActionID() ActionID {
	return ActionID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewJournalEntryID() JournalEntryID {
	return JournalEntryID(uuid.New().String())
}

// NewSubjectID builds a subject identifier from transport-scoped parts,
// e.g. NewSubjectID("telegram", "12345").
func NewSubjectID(parts ...string) SubjectID {
	return SubjectID(strings.Join(parts, ":"))
}
