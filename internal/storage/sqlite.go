package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pv/telemetry-viewer-go/internal/telemetry"
)

type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage открывает журнал в файле SQLite. Содержимое предыдущей
// сессии удаляется.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`DELETE FROM journal`); err != nil {
		db.Close()
		return nil, fmt.Errorf("reset journal: %w", err)
	}

	return &sqliteStorage{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stream TEXT NOT NULL,
			kind TEXT NOT NULL,
			sample_ts DATETIME NOT NULL,
			received_at DATETIME NOT NULL,
			fields TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_journal_lookup
			ON journal(stream, received_at);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (s *sqliteStorage) Save(stream string, sample telemetry.Sample, receivedAt time.Time) error {
	fieldsJSON, err := json.Marshal(sample.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO journal (stream, kind, sample_ts, received_at, fields) VALUES (?, ?, ?, ?, ?)`,
		stream, string(sample.Kind), sample.Timestamp.UTC(), receivedAt.UTC(), string(fieldsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	return nil
}

func (s *sqliteStorage) GetHistory(stream string, from, to time.Time) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT stream, kind, sample_ts, received_at, fields FROM journal
		 WHERE stream = ? AND received_at >= ? AND received_at <= ?
		 ORDER BY id ASC`,
		stream, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *sqliteStorage) GetLatest(stream string, count int) ([]Entry, error) {
	if count <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT stream, kind, sample_ts, received_at, fields FROM (
			SELECT id, stream, kind, sample_ts, received_at, fields FROM journal
			WHERE stream = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		stream, count,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			fieldsJSON string
		)
		if err := rows.Scan(&e.Stream, &kind, &e.Timestamp, &e.ReceivedAt, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &e.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
		e.Kind = telemetry.Kind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return entries, nil
}

func (s *sqliteStorage) Cleanup(olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM journal WHERE received_at < ?`, olderThan.UTC())
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
