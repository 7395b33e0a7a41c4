// Package store is the persistence layer: user credential records and their
// saved links, backed by a single sqlite database.
//
// Failures come back as a closed set of variants the HTTP layer can switch
// on: ValidationError for bad field values, the Err* conflict and not-found
// sentinels for state clashes, and anything else wrapped as an
// infrastructure fault (see errors.go).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type (
	// Store owns the database handle. It is safe for concurrent use; the
	// verifier only ever reads from it.
	Store struct {
		db *sql.DB
	}
)

// Open opens (creating if needed) the sqlite database at path and ensures
// the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	connstr := fmt.Sprintf("file:%v?_journal=wal&_fk=on&mode=rwc", path)
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("store: unable to open %v, cause %w", path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: unable to ping %v, cause %w", path, err)
	}
	s := &Store{db: conn}
	if err := s.init(ctx); err != nil {
		return nil, fmt.Errorf("store: unable to init %v, cause %w", path, err)
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `create table if not exists users(
		user_id integer primary key autoincrement,
		username text not null unique,
		password_hash text not null,
		secret text not null)`)
	if err != nil {
		return fmt.Errorf("unable to create users table, cause %w", err)
	}
	// the unique index rides on a 64-bit hash of the url instead of the
	// (up to 2KiB) url column itself; a hash collision shows up as a
	// spurious conflict, which for a bookmark service is an acceptable trade
	_, err = s.db.ExecContext(ctx, `create table if not exists links(
		link_id integer primary key autoincrement,
		user_id integer not null references users(user_id) on delete cascade,
		url text not null,
		url_hash integer not null,
		title text not null default '',
		note text not null default '',
		unique(user_id, url_hash))`)
	if err != nil {
		return fmt.Errorf("unable to create links table, cause %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
