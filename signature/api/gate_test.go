package api

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/steinfletcher/apitest"

	"github.com/ndelacroix/linkstash/signature"
)

type fakeUsers struct {
	byID map[int64]Principal
	err  error
}

func (f *fakeUsers) lookup(_ context.Context, id int64) (Principal, bool, error) {
	if f.err != nil {
		return Principal{}, false, f.err
	}
	p, ok := f.byID[id]
	return p, ok, nil
}

func identityFromRoute(r *http.Request) (int64, bool) {
	raw := httprouter.ParamsFromContext(r.Context()).ByName("userId")
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

func protectedRouter(gate *Gate, sensitive http.Handler) http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/users/:userId", gate.Protect(sensitive))
	router.Handler(http.MethodPost, "/users/:userId/links", gate.Protect(sensitive))
	router.Handler(http.MethodGet, "/anonymous", gate.Protect(sensitive))
	return router
}

func signFor(secret, method, path, body string) string {
	return signature.SignBase64([]byte(signature.Canonical(method, path, []byte(body))), []byte(secret))
}

func TestProtect(t *testing.T) {
	bob := Principal{ID: 42, Username: "bob"}
	alice := Principal{ID: 43, Username: "alice"}
	var err error
	bob.Secret, err = signature.NewSecret(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	alice.Secret, err = signature.NewSecret(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	users := &fakeUsers{byID: map[int64]Principal{42: bob, 43: alice}}
	gate := NewGate(users.lookup, identityFromRoute)

	var served uint32
	handler := protectedRouter(gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint32(&served, 1)
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Error("granted request must carry a principal")
		}
		if p.Secret == "" {
			t.Error("principal must carry the signing secret")
		}
		http.Error(w, "OK", http.StatusOK)
	}))

	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", signFor(bob.Secret, "GET", "/users/42", "{}")).
		Expect(t).
		Status(http.StatusOK).
		End()
	if served != 1 {
		t.Fatal("sensitive handler should have run exactly once")
	}

	// no signature header at all
	apitest.Handler(handler).
		Get("/users/42").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	// valid signature, but keyed by another existing user's secret
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", signFor(alice.Secret, "GET", "/users/42", "{}")).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	// claimed identity does not exist; response shape identical to a mismatch
	apitest.Handler(handler).
		Get("/users/77").
		Header("Authorization", signFor(bob.Secret, "GET", "/users/77", "{}")).
		Expect(t).
		Status(http.StatusUnauthorized).
		Body("Invalid credentials\n").
		End()
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", signFor(alice.Secret, "GET", "/users/42", "{}")).
		Expect(t).
		Status(http.StatusUnauthorized).
		Body("Invalid credentials\n").
		End()

	// signature computed over a different method
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", signFor(bob.Secret, "POST", "/users/42", "{}")).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()

	// route without a user parameter never grants
	apitest.Handler(handler).
		Get("/anonymous").
		Header("Authorization", signFor(bob.Secret, "GET", "/anonymous", "{}")).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestProtectSignsExactBodyBytes(t *testing.T) {
	bob := Principal{ID: 42, Username: "bob", Secret: "0123456789012345678901234567890123456789012345678901234567890123"}
	users := &fakeUsers{byID: map[int64]Principal{42: bob}}
	gate := NewGate(users.lookup, identityFromRoute)

	var seenBody string
	handler := protectedRouter(gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		seenBody = string(buf[:n])
		http.Error(w, "OK", http.StatusOK)
	}))

	body := `{"url":"https://example.com","note":"hi"}`
	apitest.Handler(handler).
		Post("/users/42/links").
		Body(body).
		Header("Authorization", signFor(bob.Secret, "POST", "/users/42/links", body)).
		Expect(t).
		Status(http.StatusOK).
		End()
	if seenBody != body {
		t.Fatalf("gate must hand the body back to the handler untouched, got %q", seenBody)
	}

	// a single flipped bit in the body breaks the signature
	apitest.Handler(handler).
		Post("/users/42/links").
		Body(`{"url":"https://example.com","note":"hj"}`).
		Header("Authorization", signFor(bob.Secret, "POST", "/users/42/links", body)).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestProtectBitFlippedSignature(t *testing.T) {
	bob := Principal{ID: 42, Username: "bob", Secret: "0123456789012345678901234567890123456789012345678901234567890123"}
	users := &fakeUsers{byID: map[int64]Principal{42: bob}}
	gate := NewGate(users.lookup, identityFromRoute)
	handler := protectedRouter(gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "OK", http.StatusOK)
	}))

	good := signFor(bob.Secret, "GET", "/users/42", "{}")
	flipped := string([]byte{good[0] ^ 0x01}) + good[1:]
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", flipped).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestProtectStorageFault(t *testing.T) {
	users := &fakeUsers{err: errors.New("storage offline")}
	gate := NewGate(users.lookup, identityFromRoute)
	handler := protectedRouter(gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "OK", http.StatusOK)
	}))

	// infrastructure faults are not denials
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", "anything").
		Expect(t).
		Status(http.StatusInternalServerError).
		End()
}

func TestForgetEvictsCachedSecret(t *testing.T) {
	bob := Principal{ID: 42, Username: "bob", Secret: "0123456789012345678901234567890123456789012345678901234567890123"}
	users := &fakeUsers{byID: map[int64]Principal{42: bob}}
	gate := NewGate(users.lookup, identityFromRoute)
	handler := protectedRouter(gate, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "OK", http.StatusOK)
	}))

	sig := signFor(bob.Secret, "GET", "/users/42", "{}")
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", sig).
		Expect(t).
		Status(http.StatusOK).
		End()

	// account removed; without Forget the cached record would keep granting
	delete(users.byID, 42)
	gate.Forget(42)
	apitest.Handler(handler).
		Get("/users/42").
		Header("Authorization", sig).
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}
