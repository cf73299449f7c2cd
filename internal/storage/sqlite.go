// Package storage keeps the member lifecycle journal in SQLite.
//
// The journal is write-mostly history for operators; the registry never
// reads it back, membership itself lives only in memory.
package storage

import (
	"database/sql"
	"time"

	"github.com/woozymasta/warden/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// DefaultEventLimit caps RecentEvents when no limit is given.
const DefaultEventLimit = 100

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New opens the journal at dbPath, tunes the pool and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// InsertEvent appends e to the journal and returns its sequence number.
func (r *Repository) InsertEvent(e models.Event) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO events (at, kind, category, server_id, name, address, country_code, online, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UTC(), string(e.Kind), int(e.Category), e.ServerID, e.Name, e.Address, e.Country, e.Online, e.State,
	)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// RecentEvents returns up to limit newest events, optionally restricted to one category.
// CategoryNone means any category.
func (r *Repository) RecentEvents(category models.Category, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	query := `
		SELECT seq, at, kind, category, server_id, name, address, country_code, online, state
		FROM events`
	var args []any

	if category != models.CategoryNone {
		query += ` WHERE category = ?`
		args = append(args, int(category))
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events := make([]models.Event, 0, limit)
	for rows.Next() {
		var (
			e        models.Event
			kind     string
			category int
		)
		if err := rows.Scan(&e.Seq, &e.At, &kind, &category, &e.ServerID, &e.Name, &e.Address, &e.Country, &e.Online, &e.State); err != nil {
			return nil, err
		}
		e.Kind = models.EventKind(kind)
		e.Category = models.Category(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// PruneEvents deletes events recorded before the given time.
func (r *Repository) PruneEvents(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM events WHERE at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
