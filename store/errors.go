package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type (
	// ValidationError reports every field that failed validation, keyed by
	// field name.
	ValidationError struct {
		Fields map[string]string
	}
)

var (
	// ErrUsernameTaken means another account already owns the username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrDuplicateURL means this user already saved this url.
	ErrDuplicateURL = errors.New("url already saved")
	// ErrNotFound means the record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials means the username/password pair did not check
	// out. Deliberately silent about which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func (v ValidationError) Error() string {
	names := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %v", strings.Join(names, ", "))
}

func (v ValidationError) orNil() error {
	if len(v.Fields) == 0 {
		return nil
	}
	return v
}
