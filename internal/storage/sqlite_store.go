package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"ytarchive/internal/storage/migrations"
)

// SQLiteStore keeps the state in three normalized tables. Replace rewrites
// all of them inside one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and migrates it to
// the latest schema. path may be ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Entity: "database", ID: path, Err: err}
	}
	// One connection: a single writer, and ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &StorageError{Op: "open", Entity: "database", ID: path, Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Entity: "database", ID: path, Err: err}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Load reads every table back into a State.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	state := State{}

	users, err := s.db.QueryContext(ctx, `SELECT user_id FROM users`)
	if err != nil {
		return nil, s.loadErr(err)
	}
	for users.Next() {
		var uid string
		if err := users.Scan(&uid); err != nil {
			users.Close()
			return nil, s.loadErr(err)
		}
		state.User(uid)
	}
	users.Close()
	if err := users.Err(); err != nil {
		return nil, s.loadErr(err)
	}

	channels, err := s.db.QueryContext(ctx, `SELECT user_id, channel_id FROM channels`)
	if err != nil {
		return nil, s.loadErr(err)
	}
	for channels.Next() {
		var uid, cid string
		if err := channels.Scan(&uid, &cid); err != nil {
			channels.Close()
			return nil, s.loadErr(err)
		}
		state.User(uid).Channel(cid)
	}
	channels.Close()
	if err := channels.Err(); err != nil {
		return nil, s.loadErr(err)
	}

	played, err := s.db.QueryContext(ctx, `SELECT user_id, channel_id, video_id, played_at FROM played`)
	if err != nil {
		return nil, s.loadErr(err)
	}
	for played.Next() {
		var uid, cid, vid, at string
		if err := played.Scan(&uid, &cid, &vid, &at); err != nil {
			played.Close()
			return nil, s.loadErr(err)
		}
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			played.Close()
			return nil, s.loadErr(fmt.Errorf("%w: played_at %q: %v", ErrStorageCorrupt, at, err))
		}
		cs, _ := state.User(uid).Channel(cid)
		cs.Played[vid] = ts
	}
	played.Close()
	if err := played.Err(); err != nil {
		return nil, s.loadErr(err)
	}

	archived, err := s.db.QueryContext(ctx, `SELECT user_id, channel_id, video_id, container_id FROM archived`)
	if err != nil {
		return nil, s.loadErr(err)
	}
	defer archived.Close()
	for archived.Next() {
		var uid, cid, vid, container string
		if err := archived.Scan(&uid, &cid, &vid, &container); err != nil {
			return nil, s.loadErr(err)
		}
		cs, _ := state.User(uid).Channel(cid)
		cs.Archived[vid] = container
	}
	if err := archived.Err(); err != nil {
		return nil, s.loadErr(err)
	}

	state.normalize()
	return state, nil
}

// Replace deletes every row and inserts state in a single transaction.
func (s *SQLiteStore) Replace(ctx context.Context, state State) error {
	if state == nil {
		state = State{}
	}
	if err := state.validate(); err != nil {
		return &StorageError{Op: "replace", Entity: "database", ID: s.path, Err: fmt.Errorf("%w: %v", ErrInvalidInput, err)}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.replaceErr(err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM archived`,
		`DELETE FROM played`,
		`DELETE FROM channels`,
		`DELETE FROM users`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return s.replaceErr(err)
		}
	}

	insUser, err := tx.PrepareContext(ctx, `INSERT INTO users (user_id) VALUES (?)`)
	if err != nil {
		return s.replaceErr(err)
	}
	defer insUser.Close()
	insChannel, err := tx.PrepareContext(ctx, `INSERT INTO channels (user_id, channel_id) VALUES (?, ?)`)
	if err != nil {
		return s.replaceErr(err)
	}
	defer insChannel.Close()
	insPlayed, err := tx.PrepareContext(ctx, `INSERT INTO played (user_id, channel_id, video_id, played_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return s.replaceErr(err)
	}
	defer insPlayed.Close()
	insArchived, err := tx.PrepareContext(ctx, `INSERT INTO archived (user_id, channel_id, video_id, container_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return s.replaceErr(err)
	}
	defer insArchived.Close()

	for uid, rec := range state {
		if _, err := insUser.ExecContext(ctx, uid); err != nil {
			return s.replaceErr(err)
		}
		for cid, cs := range rec {
			if _, err := insChannel.ExecContext(ctx, uid, cid); err != nil {
				return s.replaceErr(err)
			}
			if cs == nil {
				continue
			}
			for vid, ts := range cs.Played {
				at := ts.UTC().Truncate(time.Second).Format(time.RFC3339)
				if _, err := insPlayed.ExecContext(ctx, uid, cid, vid, at); err != nil {
					return s.replaceErr(err)
				}
			}
			for vid, container := range cs.Archived {
				if _, err := insArchived.ExecContext(ctx, uid, cid, vid, container); err != nil {
					return s.replaceErr(err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return s.replaceErr(err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadErr(err error) error {
	return &StorageError{Op: "load", Entity: "database", ID: s.path, Err: err}
}

func (s *SQLiteStore) replaceErr(err error) error {
	return &StorageError{Op: "replace", Entity: "database", ID: s.path, Err: err}
}
