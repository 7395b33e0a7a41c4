// Package client talks to a linkstash server. It keeps the credentials
// obtained from the login exchange (server url, user id, username, signing
// secret) in a small JSON file and signs every subsequent request with them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ndelacroix/linkstash/signature"
)

type (
	// Credentials is what survives between invocations. The session is
	// authenticated iff server, id and secret are all present.
	Credentials struct {
		Server   string `json:"server"`
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}

	// Session is an explicit credential store plus a signing HTTP client.
	// Zero ambient state: whoever composes requests gets handed one.
	Session struct {
		path  string
		creds Credentials
		hc    *http.Client
	}

	// Link mirrors the server's bookmark shape.
	Link struct {
		ID    int64  `json:"id,omitempty"`
		URL   string `json:"url"`
		Title string `json:"title,omitempty"`
		Note  string `json:"note,omitempty"`
	}

	// StatusError is a non-2xx answer from the server.
	StatusError struct {
		StatusCode int
		Message    string
	}
)

// ErrNotAuthenticated means the session holds no usable credentials; log in
// first.
var ErrNotAuthenticated = errors.New("client: not authenticated, log in first")

func (e StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %v", e.StatusCode)
	}
	return fmt.Sprintf("server answered %v: %v", e.StatusCode, e.Message)
}

// NewSession builds a session persisting its credentials at path. A nil
// http client falls back to http.DefaultClient.
func NewSession(path string, hc *http.Client) *Session {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Session{path: path, hc: hc}
}

// Load restores previously persisted credentials. A missing file is not an
// error, the session just stays unauthenticated.
func (s *Session) Load() error {
	buf, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("client: unable to load credentials from %v, cause %w", s.path, err)
	}
	if err := json.Unmarshal(buf, &s.creds); err != nil {
		return fmt.Errorf("client: credential file %v is corrupted, cause %w", s.path, err)
	}
	return nil
}

// Store persists the current credentials, readable by the owner only.
func (s *Session) Store() error {
	buf, err := json.Marshal(s.creds)
	if err != nil {
		return fmt.Errorf("client: unable to encode credentials, cause %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("client: unable to create credential dir, cause %w", err)
	}
	if err := os.WriteFile(s.path, buf, 0600); err != nil {
		return fmt.Errorf("client: unable to persist credentials to %v, cause %w", s.path, err)
	}
	return nil
}

// Clear wipes the credentials from memory and disk. This is logout.
func (s *Session) Clear() error {
	s.creds = Credentials{}
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("client: unable to remove credential file %v, cause %w", s.path, err)
	}
	return nil
}

// IsAuthenticated reports whether the session can sign requests.
func (s *Session) IsAuthenticated() bool {
	return s.creds.ID != 0 && s.creds.Secret != "" && s.creds.Server != ""
}

// Credentials returns a copy of the current credentials.
func (s *Session) Credentials() Credentials {
	return s.creds
}

// SignUp registers a new account. The secret is not part of the signup
// response; LogIn fetches it.
func (s *Session) SignUp(ctx context.Context, server, username, password string) error {
	server = normalizeServer(server)
	resp, err := s.postJSON(ctx, server+"/users", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return readError(resp)
	}
	s.creds.Server = server
	s.creds.Username = username
	return s.Store()
}

// LogIn runs the password exchange and caches the returned credentials,
// secret included. This is the only request that ever carries the password
// and the only response that ever carries the secret.
func (s *Session) LogIn(ctx context.Context, server, username, password string) error {
	server = normalizeServer(server)
	resp, err := s.postJSON(ctx, server+"/users/auth", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	var granted struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&granted); err != nil {
		return fmt.Errorf("client: unable to decode login response, cause %w", err)
	}
	s.creds.Server = server
	s.creds.ID = granted.ID
	s.creds.Username = granted.Username
	s.creds.Secret = granted.Secret
	return s.Store()
}

// Do sends a signed request. The payload (nil for none) is serialized once
// and those exact bytes are both signed and transmitted, so what the server
// verifies is what it received.
func (s *Session) Do(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	body, err := signature.EncodeBody(payload)
	if err != nil {
		return nil, err
	}
	canonical := signature.Canonical(method, path, body)
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), s.creds.Server+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("client: unable to build request, cause %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", signature.SignBase64([]byte(canonical), []byte(s.creds.Secret)))
	return s.hc.Do(req)
}

// Me fetches the account record, proving the stored credentials still work.
func (s *Session) Me(ctx context.Context) (id int64, username string, err error) {
	resp, err := s.Do(ctx, http.MethodGet, fmt.Sprintf("/users/%v", s.creds.ID), nil)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", readError(resp)
	}
	var me struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return 0, "", fmt.Errorf("client: unable to decode account response, cause %w", err)
	}
	return me.ID, me.Username, nil
}

// SaveLink stores a bookmark.
func (s *Session) SaveLink(ctx context.Context, target, title, note string) (*Link, error) {
	resp, err := s.Do(ctx, http.MethodPost, fmt.Sprintf("/users/%v/links", s.creds.ID), Link{
		URL:   target,
		Title: title,
		Note:  note,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, readError(resp)
	}
	var saved Link
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return nil, fmt.Errorf("client: unable to decode saved link, cause %w", err)
	}
	return &saved, nil
}

// Links lists the saved bookmarks, newest first.
func (s *Session) Links(ctx context.Context) ([]Link, error) {
	resp, err := s.Do(ctx, http.MethodGet, fmt.Sprintf("/users/%v/links", s.creds.ID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}
	var links []Link
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		return nil, fmt.Errorf("client: unable to decode link list, cause %w", err)
	}
	return links, nil
}

// DeleteLink removes one bookmark.
func (s *Session) DeleteLink(ctx context.Context, id int64) error {
	resp, err := s.Do(ctx, http.MethodDelete, fmt.Sprintf("/users/%v/links/%v", s.creds.ID, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return nil
}

// DeleteAccount removes the account server-side and clears the session.
func (s *Session) DeleteAccount(ctx context.Context) error {
	resp, err := s.Do(ctx, http.MethodDelete, fmt.Sprintf("/users/%v", s.creds.ID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return s.Clear()
}

func (s *Session) postJSON(ctx context.Context, target string, payload interface{}) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("client: unable to encode payload, cause %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("client: unable to build request, cause %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.hc.Do(req)
}

func readError(resp *http.Response) error {
	out := StatusError{StatusCode: resp.StatusCode}
	var body struct {
		Message string `json:"message"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil {
		out.Message = body.Message
	}
	return out
}

var schemeRE = regexp.MustCompile(`^https?://`)

// normalizeServer turns whatever the user typed into a usable base url:
// trimmed, scheme defaulted to http, no trailing slash.
func normalizeServer(server string) string {
	server = strings.TrimSpace(server)
	if !schemeRE.MatchString(server) {
		server = "http://" + server
	}
	return strings.TrimRight(server, "/")
}
