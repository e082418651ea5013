package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fight is one finished fight as archived.
type Fight struct {
	Session string
	Victim  string
	Zone    string
	Started time.Time
	Ended   time.Time
	Counters
}

// Archive stores finished fights in SQLite.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens (or creates) the archive at path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("stats: create archive directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("stats: open archive: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: set WAL mode: %w", err)
	}
	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("stats: migrate: %w", err)
	}
	return a, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS fights (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session     TEXT NOT NULL,
			victim      TEXT NOT NULL,
			zone        TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			ended_at    INTEGER NOT NULL,
			hits        INTEGER NOT NULL,
			misses      INTEGER NOT NULL,
			dealt       INTEGER NOT NULL,
			taken       INTEGER NOT NULL,
			experience  INTEGER NOT NULL,
			skill_ups   INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return err
	}
	// archives created before skill_ups was recorded
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('fights') WHERE name = 'skill_ups'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		_, err = a.db.Exec(`ALTER TABLE fights ADD COLUMN skill_ups INTEGER NOT NULL DEFAULT 0`)
	}
	return err
}

// Save appends a fight.
func (a *Archive) Save(ctx context.Context, f Fight) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO fights (session, victim, zone, started_at, ended_at, hits, misses, dealt, taken, experience, skill_ups)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Session, f.Victim, f.Zone, f.Started.UnixMilli(), f.Ended.UnixMilli(),
		f.Hits, f.Misses, f.Dealt, f.Taken, f.Experience, f.SkillUps)
	if err != nil {
		return fmt.Errorf("stats: save fight: %w", err)
	}
	return nil
}

// Recent returns the latest fights of a session name, newest first.
func (a *Archive) Recent(ctx context.Context, session string, limit int) ([]Fight, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT session, victim, zone, started_at, ended_at, hits, misses, dealt, taken, experience, skill_ups
		 FROM fights WHERE session = ? ORDER BY id DESC LIMIT ?`, session, limit)
	if err != nil {
		return nil, fmt.Errorf("stats: query fights: %w", err)
	}
	defer rows.Close()

	var out []Fight
	for rows.Next() {
		var (
			f            Fight
			start, ended int64
		)
		if err := rows.Scan(&f.Session, &f.Victim, &f.Zone, &start, &ended,
			&f.Hits, &f.Misses, &f.Dealt, &f.Taken, &f.Experience, &f.SkillUps); err != nil {
			return nil, fmt.Errorf("stats: scan fight: %w", err)
		}
		f.Started = time.UnixMilli(start)
		f.Ended = time.UnixMilli(ended)
		f.Kills = 1
		out = append(out, f)
	}
	return out, rows.Err()
}
