package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var schema string

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(path string, busy time.Duration, log logx.Logger) (Store, error) {
	if path == "" {
		return nil, errors.New("storage: sqlite driver needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if busy <= 0 {
		busy = time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")

	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// one writer; a second connection would only wait on the lock
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	var v int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return err
	}
	if v >= schemaVersion {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return err
	}
	s.log.Info("sqlite schema applied", logx.Int("from", v), logx.Int("to", schemaVersion))
	return nil
}

// SaveReminders replaces every stored row with snap in one transaction.
func (s *sqliteStore) SaveReminders(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return err
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO reminders
		(owner_id, position, id, fire_at, text, lang, chat_id, thread_id, owner_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	for owner, rs := range snap {
		for pos, r := range rs {
			_, err := ins.ExecContext(ctx, owner, pos, r.ID, FormatTimestamp(r.FireAt), r.Text,
				optional(r.Lang), r.ChatID, r.ThreadID, optional(r.OwnerName))
			if err != nil {
				return fmt.Errorf("owner %d item %d: %w", owner, pos, err)
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadReminders(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, id, fire_at, text, lang, chat_id, thread_id, owner_name
		FROM reminders ORDER BY owner_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var (
			owner       int64
			r           ReminderRecord
			at          string
			lang, named sql.NullString
		)
		if err := rows.Scan(&owner, &r.ID, &at, &r.Text, &lang, &r.ChatID, &r.ThreadID, &named); err != nil {
			return nil, err
		}
		if r.FireAt, err = ParseTimestamp(at); err != nil {
			return nil, err
		}
		r.Lang, r.OwnerName = lang.String, named.String
		snap[owner] = append(snap[owner], r)
	}
	return snap, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit
		(at, owner_id, chat_id, action, reminder_id, fire_at, err)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.OwnerID, e.ChatID, e.Action,
		optional(e.ReminderID), optional(e.FireAt), optional(e.Error))
	return err
}

func (s *sqliteStore) Close() error { return s.db.Close() }

// optional maps "" to NULL.
func optional(v string) sql.NullString { return sql.NullString{String: v, Valid: v != ""} }
