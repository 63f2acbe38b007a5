// internal/state/postgres.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/telerpg/internal/types"
)

// PostgresStore bundles the Postgres-backed implementations of the
// store interfaces over a shared pgx pool. The pool is opened at
// process start and closed at shutdown.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dialogue_sessions (
			subject_id TEXT PRIMARY KEY,
			step_index INTEGER NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_actions (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			class TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			ready_at TIMESTAMPTZ NOT NULL,
			state TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_pending
			ON scheduled_actions (subject_id, class) WHERE state = 'pending';`,
		`CREATE INDEX IF NOT EXISTS idx_actions_ready
			ON scheduled_actions (ready_at) WHERE state = 'pending';`,
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL UNIQUE,
			record JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS applied_actions (
			action_id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS journal (
			id TEXT PRIMARY KEY,
			subject_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			type TEXT NOT NULL,
			at TIMESTAMPTZ NOT NULL,
			detail JSONB NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_journal_subject_seq ON journal (subject_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Dialogues returns the DialogueStore view.
func (s *PostgresStore) Dialogues() types.DialogueStore { return &pgDialogueStore{pool: s.pool} }

// Actions returns the ActionStore view.
func (s *PostgresStore) Actions() types.ActionStore { return &pgActionStore{pool: s.pool} }

// Players returns the PlayerStore view.
func (s *PostgresStore) Players() types.PlayerStore { return &pgPlayerStore{pool: s.pool} }

// Journal returns the JournalStore view.
func (s *PostgresStore) Journal() types.JournalStore { return &pgJournalStore{pool: s.pool} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- DialogueStore ---

type pgDialogueStore struct {
	pool *pgxpool.Pool
}

// Create stores a new active session, replacing any finished one for
// the subject. An existing active row wins the conflict.
func (s *pgDialogueStore) Create(ctx context.Context, sess *types.DialogueSession) error {
	fields, err := json.Marshal(sess.Fields)
	if err != nil {
		return fmt.Errorf("marshal dialogue fields: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO dialogue_sessions (subject_id, step_index, fields, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (subject_id) DO UPDATE SET
			step_index=EXCLUDED.step_index,
			fields=EXCLUDED.fields,
			status=EXCLUDED.status,
			created_at=EXCLUDED.created_at,
			updated_at=EXCLUDED.updated_at
		 WHERE dialogue_sessions.status <> 'active'`,
		sess.SubjectID, sess.StepIndex, fields, string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create dialogue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dialogue for %s: %w", sess.SubjectID, types.ErrConflict)
	}
	return nil
}

func (s *pgDialogueStore) GetActive(ctx context.Context, subject types.SubjectID) (*types.DialogueSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT subject_id, step_index, fields, status, created_at, updated_at
		   FROM dialogue_sessions WHERE subject_id=$1 AND status='active'`,
		subject,
	)
	var (
		sess   types.DialogueSession
		fields []byte
		status string
	)
	if err := row.Scan(&sess.SubjectID, &sess.StepIndex, &fields, &status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("active dialogue for %s: %w", subject, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get dialogue: %w", err)
	}
	sess.Status = types.SessionStatus(status)
	if err := json.Unmarshal(fields, &sess.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal dialogue fields: %w", err)
	}
	return &sess, nil
}

func (s *pgDialogueStore) Update(ctx context.Context, sess *types.DialogueSession) error {
	fields, err := json.Marshal(sess.Fields)
	if err != nil {
		return fmt.Errorf("marshal dialogue fields: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE dialogue_sessions SET step_index=$2, fields=$3, updated_at=now()
		  WHERE subject_id=$1 AND status='active'`,
		sess.SubjectID, sess.StepIndex, fields,
	)
	if err != nil {
		return fmt.Errorf("update dialogue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("active dialogue for %s: %w", sess.SubjectID, types.ErrNotFound)
	}
	return nil
}

func (s *pgDialogueStore) Finalize(ctx context.Context, subject types.SubjectID, status types.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dialogue_sessions SET status=$2, updated_at=now()
		  WHERE subject_id=$1 AND status='active'`,
		subject, string(status),
	)
	if err != nil {
		return fmt.Errorf("finalize dialogue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("active dialogue for %s: %w", subject, types.ErrNotFound)
	}
	return nil
}

// --- ActionStore ---

type pgActionStore struct {
	pool *pgxpool.Pool
}

const actionColumns = `id, subject_id, kind, class, payload, ready_at, state, attempts, created_at, updated_at`

// Insert stores a new pending action. The partial unique index on
// (subject_id, class) WHERE state='pending' enforces the one-pending
// rule; a unique violation surfaces as ErrConflict.
func (s *pgActionStore) Insert(ctx context.Context, a *types.ScheduledAction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scheduled_actions (`+actionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.SubjectID, string(a.Kind), string(a.Class), []byte(a.Payload),
		a.ReadyAt, string(a.State), a.Attempts, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pending %s action for %s: %w", a.Class, a.SubjectID, types.ErrConflict)
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func scanAction(row pgx.Row) (*types.ScheduledAction, error) {
	var (
		a       types.ScheduledAction
		kind    string
		class   string
		state   string
		payload []byte
	)
	if err := row.Scan(&a.ID, &a.SubjectID, &kind, &class, &payload, &a.ReadyAt, &state, &a.Attempts, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Kind = types.ActionKind(kind)
	a.Class = types.ActionClass(class)
	a.State = types.ActionState(state)
	a.Payload = json.RawMessage(payload)
	return &a, nil
}

func (s *pgActionStore) Get(ctx context.Context, id types.ActionID) (*types.ScheduledAction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM scheduled_actions WHERE id=$1`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("action %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

func (s *pgActionStore) list(ctx context.Context, query string, args ...any) ([]*types.ScheduledAction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	out := make([]*types.ScheduledAction, 0, 8)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return out, nil
}

func (s *pgActionStore) ListPending(ctx context.Context) ([]*types.ScheduledAction, error) {
	return s.list(ctx,
		`SELECT `+actionColumns+` FROM scheduled_actions WHERE state='pending' ORDER BY ready_at ASC`)
}

func (s *pgActionStore) PendingForSubject(ctx context.Context, subject types.SubjectID) ([]*types.ScheduledAction, error) {
	return s.list(ctx,
		`SELECT `+actionColumns+` FROM scheduled_actions WHERE state='pending' AND subject_id=$1 ORDER BY ready_at ASC`,
		subject)
}

func (s *pgActionStore) MarkCompleted(ctx context.Context, id types.ActionID) error {
	return s.transition(ctx, id, types.ActionCompleted)
}

func (s *pgActionStore) MarkCancelled(ctx context.Context, id types.ActionID) error {
	return s.transition(ctx, id, types.ActionCancelled)
}

// transition moves a pending action to a terminal state. The WHERE
// state='pending' guard makes the completed/cancelled race resolve to
// a single winner.
func (s *pgActionStore) transition(ctx context.Context, id types.ActionID, to types.ActionState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_actions SET state=$2, updated_at=now() WHERE id=$1 AND state='pending'`,
		id, string(to),
	)
	if err != nil {
		return fmt.Errorf("transition action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending action %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *pgActionStore) RecordAttempt(ctx context.Context, id types.ActionID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scheduled_actions SET attempts=attempts+1, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("action %s: %w", id, types.ErrNotFound)
	}
	return nil
}

// --- PlayerStore ---

// Players are stored as a JSONB record column keyed by id and subject,
// so the file and Postgres backends serialize the document the same
// way.
type pgPlayerStore struct {
	pool *pgxpool.Pool
}

func (s *pgPlayerStore) Create(ctx context.Context, p *types.Player) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO players (id, subject_id, record, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.SubjectID, record, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("player for %s: %w", p.SubjectID, types.ErrConflict)
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *pgPlayerStore) GetBySubject(ctx context.Context, subject types.SubjectID) (*types.Player, error) {
	row := s.pool.QueryRow(ctx, `SELECT record FROM players WHERE subject_id=$1`, subject)
	var record []byte
	if err := row.Scan(&record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("player for %s: %w", subject, types.ErrNotFound)
		}
		return nil, fmt.Errorf("get player: %w", err)
	}
	var p types.Player
	if err := json.Unmarshal(record, &p); err != nil {
		return nil, fmt.Errorf("unmarshal player: %w", err)
	}
	return &p, nil
}

func (s *pgPlayerStore) List(ctx context.Context) ([]*types.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM players ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Player, 0, 8)
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		var p types.Player
		if err := json.Unmarshal(record, &p); err != nil {
			return nil, fmt.Errorf("unmarshal player: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player rows: %w", err)
	}
	return out, nil
}

func (s *pgPlayerStore) Update(ctx context.Context, p *types.Player) error {
	p.UpdatedAt = time.Now()
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal player: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET record=$2, updated_at=$3 WHERE id=$1`,
		p.ID, record, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("player %s: %w", p.ID, types.ErrNotFound)
	}
	return nil
}

// ApplyCompletion applies a completed action's effect exactly once.
// The idempotency marker insert and the player update share one
// transaction; a marker conflict means the action was already applied.
func (s *pgPlayerStore) ApplyCompletion(ctx context.Context, subject types.SubjectID, actionID types.ActionID, mutate func(*types.Player)) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO applied_actions (action_id, subject_id) VALUES ($1,$2) ON CONFLICT (action_id) DO NOTHING`,
		actionID, subject,
	)
	if err != nil {
		return false, fmt.Errorf("record applied action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	row := tx.QueryRow(ctx, `SELECT record FROM players WHERE subject_id=$1 FOR UPDATE`, subject)
	var record []byte
	if err := row.Scan(&record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("player for %s: %w", subject, types.ErrNotFound)
		}
		return false, fmt.Errorf("get player: %w", err)
	}
	var p types.Player
	if err := json.Unmarshal(record, &p); err != nil {
		return false, fmt.Errorf("unmarshal player: %w", err)
	}

	mutate(&p)
	p.AppliedActions = append(p.AppliedActions, actionID)
	p.UpdatedAt = time.Now()

	updated, err := json.Marshal(&p)
	if err != nil {
		return false, fmt.Errorf("marshal player: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE players SET record=$2, updated_at=$3 WHERE subject_id=$1`,
		subject, updated, p.UpdatedAt,
	); err != nil {
		return false, fmt.Errorf("update player: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

// --- JournalStore ---

type pgJournalStore struct {
	pool *pgxpool.Pool
}

func (s *pgJournalStore) Append(ctx context.Context, entry *types.JournalEntry) error {
	detail := []byte(entry.Detail)
	if len(detail) == 0 {
		detail = nil
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO journal (id, subject_id, seq, type, at, detail)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(seq),0)+1 FROM journal WHERE subject_id=$2), $3, $4, $5)
		 RETURNING seq`,
		entry.ID, entry.SubjectID, entry.Type, entry.At, detail,
	)
	if err := row.Scan(&entry.Seq); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (s *pgJournalStore) Tail(ctx context.Context, subject types.SubjectID, limit int) ([]*types.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, seq, type, at, detail FROM journal
		  WHERE subject_id=$1 ORDER BY seq DESC LIMIT $2`,
		subject, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("tail journal: %w", err)
	}
	defer rows.Close()

	var entries []*types.JournalEntry
	for rows.Next() {
		var (
			entry  types.JournalEntry
			detail []byte
		)
		if err := rows.Scan(&entry.ID, &entry.SubjectID, &entry.Seq, &entry.Type, &entry.At, &detail); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		entry.Detail = json.RawMessage(detail)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	// Oldest first, matching the file backend.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *pgJournalStore) Count(ctx context.Context, subject types.SubjectID) (int64, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal WHERE subject_id=$1`, subject)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return count, nil
}
