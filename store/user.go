package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/ndelacroix/linkstash/signature"
)

type (
	// User is a credential record. Secret is the per-user signing key; it
	// leaves the server exactly once, in the login response.
	User struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Secret   string `json:"secret,omitempty"`

		passwordHash string
	}
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 8
)

// a well-formed hash that no password produced; burned when the username
// does not exist so both login failure paths cost one bcrypt compare
const decoyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// EnsureSecret issues the signing secret if the record does not carry one
// yet. Re-running it on an already-secreted record changes nothing, so the
// create path can validate as many times as it likes.
func (u *User) EnsureSecret(entropy io.Reader) error {
	if u.Secret != "" {
		return nil
	}
	secret, err := signature.NewSecret(entropy)
	if err != nil {
		return err
	}
	u.Secret = secret
	return nil
}

func validateNewUser(username, password string) error {
	fields := map[string]string{}
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		fields["username"] = fmt.Sprintf("must be between %v and %v characters", minUsernameLen, maxUsernameLen)
	}
	if len(password) < minPasswordLen {
		fields["password"] = fmt.Sprintf("must be at least %v characters", minPasswordLen)
	}
	return ValidationError{Fields: fields}.orNil()
}

// CreateUser registers a new account: validates the fields, hashes the
// password, issues the signing secret and persists the record. Returns
// ErrUsernameTaken when the username is already in use.
func (s *Store) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if err := validateNewUser(username, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("store: unable to hash password, cause %w", err)
	}
	u := &User{Username: username, passwordHash: string(hash)}
	if err := u.EnsureSecret(rand.Reader); err != nil {
		return nil, err
	}
	if !signature.ValidSecret(u.Secret) {
		return nil, ValidationError{Fields: map[string]string{"secret": "encoded length out of bounds"}}
	}
	res, err := s.db.ExecContext(ctx,
		`insert into users (username, password_hash, secret) values (?, ?, ?)`,
		u.Username, u.passwordHash, u.Secret)
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, ErrUsernameTaken
	} else if err != nil {
		return nil, fmt.Errorf("store: unable to create user %v, cause %w", username, err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: unable to read new user id, cause %w", err)
	}
	return u, nil
}

// Authenticate runs the password exchange. On success the returned record
// carries the signing secret, ready for the one-time handoff to the client.
// Every failure is ErrInvalidCredentials, whether the username exists or
// not, and both paths cost one bcrypt compare.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u := &User{Username: username}
	row := s.db.QueryRowContext(ctx,
		`select user_id, password_hash, secret from users where username = ?`, username)
	err := row.Scan(&u.ID, &u.passwordHash, &u.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		bcrypt.CompareHashAndPassword([]byte(decoyHash), []byte(password))
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, fmt.Errorf("store: unable to look up user %v, cause %w", username, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// FindUser resolves a credential record by id. The verifier uses this to
// fetch the secret for the claimed identity.
func (s *Store) FindUser(ctx context.Context, id int64) (*User, error) {
	u := &User{ID: id}
	row := s.db.QueryRowContext(ctx,
		`select username, secret from users where user_id = ?`, id)
	err := row.Scan(&u.Username, &u.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("store: unable to find user %v, cause %w", id, err)
	}
	return u, nil
}

// DeleteUser removes the account and, via the foreign key, every link it
// owns.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `delete from users where user_id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: unable to delete user %v, cause %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: unable to confirm user deletion, cause %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
