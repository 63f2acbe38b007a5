// internal/state/factory.go
package state

import (
	"context"
	"log/slog"

	"github.com/user/telerpg/internal/types"
)

// Stores bundles the four durable stores behind their interfaces so the
// rest of the process never knows which backend it is talking to.
type Stores struct {
	Dialogues types.DialogueStore
	Actions   types.ActionStore
	Players   types.PlayerStore
	Journal   types.JournalStore

	closer interface{ Close() error }
}

// Close releases backend resources. File stores have none; the Postgres
// backend closes its pool.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open selects the storage backend: Postgres when databaseURL is set,
// JSON files under dataDir otherwise.
func Open(ctx context.Context, dataDir, databaseURL string) (*Stores, error) {
	if databaseURL != "" {
		pg, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("using postgres storage backend")
		return &Stores{
			Dialogues: pg.Dialogues(),
			Actions:   pg.Actions(),
			Players:   pg.Players(),
			Journal:   pg.Journal(),
			closer:    pg,
		}, nil
	}

	slog.Info("using file storage backend", "dir", dataDir)
	return &Stores{
		Dialogues: NewDialogueStore(dataDir),
		Actions:   NewActionStore(dataDir),
		Players:   NewPlayerStore(dataDir),
		Journal:   NewJournalStore(dataDir),
	}, nil
}
