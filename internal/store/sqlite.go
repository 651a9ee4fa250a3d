//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "aircheck/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveJobs keeps snapshot semantics: the table is replaced in one transaction.
func (s *sqliteStore) SaveJobs(ctx context.Context, recs []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return err
	}
	for _, r := range recs {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO jobs(id, name, stream_url, cron, duration_minutes, created_at,
			                  status, last_recording, current_recording, last_error)
			 VALUES(?,?,?,?,?,?,?,?,?,?)`,
			r.ID, r.Name, r.StreamURL, r.Cron, r.DurationMinutes,
			r.CreatedAt.Format(time.RFC3339Nano),
			r.Status, nullStr(r.LastRecording), nullStr(r.CurrentRecording), nullStr(r.LastError),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadJobs(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, stream_url, cron, duration_minutes, created_at,
		        status, last_recording, current_recording, last_error
		 FROM jobs ORDER BY id`)
	if err != nil {
		s.log.Warn("schedule table unreadable; starting empty", logx.Err(err))
		return nil, nil
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		var createdAt string
		var last, current, lastErr sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.StreamURL, &r.Cron, &r.DurationMinutes,
			&createdAt, &r.Status, &last, &current, &lastErr); err != nil {
			s.log.Warn("skipping unreadable job row", logx.Err(err))
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = t
		}
		r.LastRecording = last.String
		r.CurrentRecording = current.String
		r.LastError = lastErr.String
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("schedule scan interrupted", logx.Err(err))
	}
	return recs, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
