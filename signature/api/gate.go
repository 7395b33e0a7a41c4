// Package api gates HTTP handlers behind the request signature scheme.
package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/ndelacroix/linkstash/internal/logutil"
	"github.com/ndelacroix/linkstash/internal/metrics"
	"github.com/ndelacroix/linkstash/signature"
)

type (
	// Principal is the credential record resolved for a granted request,
	// handed to downstream handlers through the request context.
	Principal struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}

	// LookupFn resolves the credential record for a claimed identity.
	// found=false means no such user; err is reserved for infrastructure
	// faults (storage unreachable), which surface as 500, never as 401.
	LookupFn func(ctx context.Context, id int64) (p Principal, found bool, err error)

	// IdentityFn extracts the claimed identity from the request. It is
	// injected so the gate does not depend on how routes name their
	// parameters.
	IdentityFn func(r *http.Request) (int64, bool)

	// Gate verifies request signatures. It is stateless across requests
	// apart from a read-through cache of credential records.
	Gate struct {
		lookup   LookupFn
		identity IdentityFn
		cache    *bigcache.BigCache
		// decoy keys the signature work burned on unresolvable identities,
		// so those denials cost the same as a real mismatch
		decoy []byte
	}

	ctxKey byte
)

const (
	principalKey = ctxKey(1)

	cacheTTL    = 10 * time.Minute
	maxBodySize = 1 << 20
)

// NewGate builds a gate around the given credential lookup and identity
// extractor.
func NewGate(lookup LookupFn, identity IdentityFn) *Gate {
	cache, _ := bigcache.New(context.Background(), bigcache.DefaultConfig(cacheTTL))
	decoy := make([]byte, 32)
	rand.Read(decoy)
	return &Gate{
		lookup:   lookup,
		identity: identity,
		cache:    cache,
		decoy:    decoy,
	}
}

// Protect wraps sensitive so it only runs for requests carrying a valid
// signature. On grant the resolved Principal rides the request context; on
// denial the response is always the same 401, whatever the reason.
func (g *Gate) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, status := g.authenticate(r)
		switch status {
		case http.StatusOK:
			metrics.AuthDecisions.WithLabelValues("granted").Inc()
			r = r.WithContext(WithPrincipal(r.Context(), principal))
			sensitive.ServeHTTP(w, r)
		case http.StatusInternalServerError:
			http.Error(w, "Temporarily unavailable", http.StatusInternalServerError)
		default:
			metrics.AuthDecisions.WithLabelValues("denied").Inc()
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		}
	})
}

// authenticate walks the verification steps in order, short-circuiting on
// the first failure: header presence, identity resolution, signature match.
// The returned status is 200, 401 or 500.
func (g *Gate) authenticate(r *http.Request) (Principal, int) {
	received := r.Header.Get("Authorization")
	if received == "" {
		return Principal{}, http.StatusUnauthorized
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return Principal{}, http.StatusUnauthorized
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	canonical := signature.Canonical(r.Method, r.URL.RequestURI(), body)

	id, ok := g.identity(r)
	if !ok {
		g.burn(canonical, received)
		return Principal{}, http.StatusUnauthorized
	}
	principal, found, err := g.resolve(r.Context(), id)
	if err != nil {
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Msg("Unable to resolve credential record")
		return Principal{}, http.StatusInternalServerError
	}
	if !found {
		g.burn(canonical, received)
		return Principal{}, http.StatusUnauthorized
	}

	secret := []byte(principal.Secret)
	expected := signature.SignBase64([]byte(canonical), secret)
	if !signature.Match(secret, expected, received) {
		return Principal{}, http.StatusUnauthorized
	}
	return principal, http.StatusOK
}

// burn performs the same signature work a real verification would, keyed by
// the decoy secret, so denials for unknown identities are not cheaper (and
// therefore not distinguishable) from signature mismatches.
func (g *Gate) burn(canonical, received string) {
	expected := signature.SignBase64([]byte(canonical), g.decoy)
	signature.Match(g.decoy, expected, received)
}

func (g *Gate) resolve(ctx context.Context, id int64) (Principal, bool, error) {
	key := strconv.FormatInt(id, 10)
	if buf, err := g.cache.Get(key); err == nil {
		var p Principal
		if json.Unmarshal(buf, &p) == nil {
			return p, true, nil
		}
	}
	p, found, err := g.lookup(ctx, id)
	if err != nil || !found {
		return Principal{}, found, err
	}
	if buf, err := json.Marshal(p); err == nil {
		g.cache.Set(key, buf)
	}
	return p, true, nil
}

// Forget drops the cached credential record for id. Callers must invoke it
// after deleting an account, otherwise the stale secret keeps verifying
// until the cache entry expires.
func (g *Gate) Forget(id int64) {
	g.cache.Delete(strconv.FormatInt(id, 10))
}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext recovers the principal stored by Protect.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
