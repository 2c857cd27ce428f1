package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Entry is one dictated journal record.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	OrgID      string    `json:"org_id"`
	Channel    string    `json:"channel"`
	Transcript string    `json:"transcript"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows ListEntries. Empty fields match everything.
type Filter struct {
	UserID string
	OrgID  string
	Limit  int
	Offset int
}

// Store persists journal entries to PostgreSQL.
type Store struct {
	db        *sql.DB
	retention time.Duration
}

// Open connects to the journal database at connStr and applies pending
// migrations. With retention > 0, every save also prunes entries older
// than the retention window.
func Open(connStr string, retention time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &Store{db: db, retention: retention}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEntry inserts a journal entry and prunes anything past the retention
// window.
func (s *Store) SaveEntry(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, user_id, org_id, channel, transcript, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.OrgID, e.Channel, e.Transcript, e.Status, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	if s.retention > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM journal_entries WHERE created_at < $1`,
			time.Now().UTC().Add(-s.retention),
		)
	}
	return err
}

// GetEntry returns one entry by ID.
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, org_id, channel, transcript, status, created_at
		 FROM journal_entries WHERE id = $1`, id,
	).Scan(&e.ID, &e.UserID, &e.OrgID, &e.Channel, &e.Transcript, &e.Status, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns entries newest first plus the total match count.
func (s *Store) ListEntries(ctx context.Context, f Filter) ([]Entry, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal_entries
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR org_id = $2)`,
		f.UserID, f.OrgID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, org_id, channel, transcript, status, created_at
		 FROM journal_entries
		 WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR org_id = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		f.UserID, f.OrgID, f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err = rows.Scan(&e.ID, &e.UserID, &e.OrgID, &e.Channel, &e.Transcript, &e.Status, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
