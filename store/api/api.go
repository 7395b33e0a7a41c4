// Package api exposes the store over REST. Everything under /users/:userId
// sits behind the signature gate; account creation and the password login
// exchange are the only writes reachable without a signing secret.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ndelacroix/linkstash/internal/logutil"
	"github.com/ndelacroix/linkstash/internal/metrics"
	"github.com/ndelacroix/linkstash/internal/ratelimit"
	sigapi "github.com/ndelacroix/linkstash/signature/api"
	"github.com/ndelacroix/linkstash/store"
)

type (
	handler struct {
		store  *store.Store
		gate   *sigapi.Gate
		logins *ratelimit.PerKey
	}

	credentialsPayload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	linkPayload struct {
		URL   string `json:"url"`
		Title string `json:"title"`
		Note  string `json:"note"`
	}
)

const loginAttemptsPerMinute = 10

// AsHandler builds the service router around the given store.
func AsHandler(st *store.Store) http.Handler {
	h := &handler{
		store:  st,
		gate:   sigapi.NewGate(lookupPrincipal(st), userIDFromRoute),
		logins: ratelimit.New(loginAttemptsPerMinute),
	}
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/", h.health)
	router.HandlerFunc(http.MethodGet, "/users", methodNotAllowed)
	router.HandlerFunc(http.MethodPost, "/users", h.signUp)
	// httprouter cannot register the static /users/auth next to the
	// :userId wildcard, so the login exchange dispatches from the
	// wildcard handler instead
	router.HandlerFunc(http.MethodPost, "/users/:userId", h.postUser)
	router.Handler(http.MethodGet, "/users/:userId", h.gate.Protect(http.HandlerFunc(h.showUser)))
	router.Handler(http.MethodDelete, "/users/:userId", h.gate.Protect(http.HandlerFunc(h.deleteUser)))
	router.Handler(http.MethodPost, "/users/:userId/links", h.gate.Protect(http.HandlerFunc(h.createLink)))
	router.Handler(http.MethodGet, "/users/:userId/links", h.gate.Protect(http.HandlerFunc(h.listLinks)))
	router.Handler(http.MethodDelete, "/users/:userId/links/:linkId", h.gate.Protect(http.HandlerFunc(h.deleteLink)))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())
	return withRequestLog(router)
}

// lookupPrincipal adapts the store to the gate's collaborator interface.
// Absence and infrastructure faults travel on different channels so the
// gate can keep 401 and 500 apart.
func lookupPrincipal(st *store.Store) sigapi.LookupFn {
	return func(ctx context.Context, id int64) (sigapi.Principal, bool, error) {
		u, err := st.FindUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return sigapi.Principal{}, false, nil
		} else if err != nil {
			return sigapi.Principal{}, false, err
		}
		return sigapi.Principal{ID: u.ID, Username: u.Username, Secret: u.Secret}, true, nil
	}
}

// userIDFromRoute is the injected identity extractor: the claimed identity
// is whatever :userId the route carries.
func userIDFromRoute(r *http.Request) (int64, bool) {
	raw := httprouter.ParamsFromContext(r.Context()).ByName("userId")
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, true)
}

func (h *handler) signUp(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "malformed request body"})
		return
	}
	_, err := h.store.CreateUser(r.Context(), payload.Username, payload.Password)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) postUser(w http.ResponseWriter, r *http.Request) {
	if httprouter.ParamsFromContext(r.Context()).ByName("userId") != "auth" {
		http.NotFound(w, r)
		return
	}
	h.logIn(w, r)
}

// logIn is the password exchange: the only response that ever carries the
// signing secret.
func (h *handler) logIn(w http.ResponseWriter, r *http.Request) {
	if !h.logins.Allow(clientKey(r)) {
		metrics.Logins.WithLabelValues("throttled").Inc()
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "malformed request body"})
		return
	}
	if payload.Username == "" || payload.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "username and password are required"})
		return
	}
	u, err := h.store.Authenticate(r.Context(), payload.Username, payload.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		metrics.Logins.WithLabelValues("denied").Inc()
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	} else if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}{ID: u.ID, Username: u.Username, Secret: u.Secret})
}

func (h *handler) showUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := sigapi.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	// never the secret; that left the building once, at login
	writeJSON(w, http.StatusOK, struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}{ID: principal.ID, Username: principal.Username})
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := sigapi.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := h.store.DeleteUser(r.Context(), principal.ID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.gate.Forget(principal.ID)
	w.WriteHeader(http.StatusOK)
}

func (h *handler) createLink(w http.ResponseWriter, r *http.Request) {
	principal, ok := sigapi.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	var payload linkPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: "malformed request body"})
		return
	}
	l, err := h.store.CreateLink(r.Context(), principal.ID, &store.Link{
		URL:   payload.URL,
		Title: payload.Title,
		Note:  payload.Note,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *handler) listLinks(w http.ResponseWriter, r *http.Request) {
	principal, ok := sigapi.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	links, err := h.store.Links(r.Context(), principal.ID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if links == nil {
		links = []store.Link{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (h *handler) deleteLink(w http.ResponseWriter, r *http.Request) {
	principal, ok := sigapi.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	linkID, err := strconv.ParseInt(httprouter.ParamsFromContext(r.Context()).ByName("linkId"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.store.DeleteLink(r.Context(), principal.ID, linkID); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeStoreError maps the store's closed error set onto HTTP statuses.
func (h *handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, store.ErrUsernameTaken), errors.Is(err, store.ErrDuplicateURL):
		writeJSON(w, http.StatusConflict, errorBody{Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: err.Error()})
	default:
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Msg("Store operation failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logutil.GetOrDefault(r.Context()).With().
			Str("req.id", uuid.NewString()).
			Str("req.method", r.Method).
			Str("req.path", r.URL.Path).
			Logger()
		metrics.Requests.WithLabelValues(r.Method).Inc()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logutil.WithLogger(r.Context(), log)))
		log.Debug().Dur("req.elapsed", time.Since(start)).Msg("Request served")
	})
}
