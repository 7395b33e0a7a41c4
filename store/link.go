package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-sqlite3"
)

type (
	// Link is one saved bookmark.
	Link struct {
		ID     int64  `json:"id"`
		UserID int64  `json:"-"`
		URL    string `json:"url"`
		Title  string `json:"title,omitempty"`
		Note   string `json:"note,omitempty"`
	}
)

const (
	maxURLLen   = 2048
	maxTitleLen = 128
	maxNoteLen  = 512
)

func validateLink(l *Link) error {
	fields := map[string]string{}
	switch {
	case l.URL == "":
		fields["url"] = "must not be empty"
	case len(l.URL) > maxURLLen:
		fields["url"] = fmt.Sprintf("must be at most %v characters", maxURLLen)
	default:
		u, err := url.Parse(l.URL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			fields["url"] = "must be a valid absolute url"
		}
	}
	if len(l.Title) > maxTitleLen {
		fields["title"] = fmt.Sprintf("must be at most %v characters", maxTitleLen)
	}
	if len(l.Note) > maxNoteLen {
		fields["note"] = fmt.Sprintf("must be at most %v characters", maxNoteLen)
	}
	return ValidationError{Fields: fields}.orNil()
}

// CreateLink saves a bookmark for the given user. Saving the same url twice
// for the same user returns ErrDuplicateURL.
func (s *Store) CreateLink(ctx context.Context, userID int64, l *Link) (*Link, error) {
	if err := validateLink(l); err != nil {
		return nil, err
	}
	out := &Link{UserID: userID, URL: l.URL, Title: l.Title, Note: l.Note}
	res, err := s.db.ExecContext(ctx,
		`insert into links (user_id, url, url_hash, title, note) values (?, ?, ?, ?, ?)`,
		userID, out.URL, int64(xxhash.Sum64String(out.URL)), out.Title, out.Note)
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, ErrDuplicateURL
	} else if err != nil {
		return nil, fmt.Errorf("store: unable to save link for user %v, cause %w", userID, err)
	}
	out.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: unable to read new link id, cause %w", err)
	}
	return out, nil
}

// Links lists every bookmark the user saved, newest first.
func (s *Store) Links(ctx context.Context, userID int64) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`select link_id, url, title, note from links where user_id = ? order by link_id desc`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: unable to list links for user %v, cause %w", userID, err)
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		l := Link{UserID: userID}
		if err := rows.Scan(&l.ID, &l.URL, &l.Title, &l.Note); err != nil {
			return nil, fmt.Errorf("store: unable to scan link for user %v, cause %w", userID, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: unable to list links for user %v, cause %w", userID, err)
	}
	return out, nil
}

// DeleteLink removes one bookmark. The user id is part of the predicate so
// nobody can delete another user's link by guessing ids.
func (s *Store) DeleteLink(ctx context.Context, userID, linkID int64) error {
	res, err := s.db.ExecContext(ctx,
		`delete from links where user_id = ? and link_id = ?`, userID, linkID)
	if err != nil {
		return fmt.Errorf("store: unable to delete link %v, cause %w", linkID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: unable to confirm link deletion, cause %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
