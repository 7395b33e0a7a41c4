package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	got := Canonical("get", "/users/42", nil)
	require.Equal(t, "GET\n/users/42\n{}", got)

	// same inputs, same bytes, every time
	require.Equal(t, got, Canonical("get", "/users/42", nil))
	require.Equal(t, got, Canonical("GET", "/users/42", []byte{}))

	got = Canonical("POST", "/users/42/links?page=2", []byte(`{"url":"https://example.com"}`))
	require.Equal(t, "POST\n/users/42/links?page=2\n{\"url\":\"https://example.com\"}", got)
}

func TestEncodeBody(t *testing.T) {
	buf, err := EncodeBody(nil)
	require.NoError(t, err)
	require.Equal(t, EmptyBody, string(buf))

	type payload struct {
		URL  string `json:"url"`
		Note string `json:"note"`
	}
	buf, err = EncodeBody(payload{URL: "https://example.com", Note: "a note"})
	require.NoError(t, err)
	require.Equal(t, `{"url":"https://example.com","note":"a note"}`, string(buf))

	// map keys come out sorted, so two encodes of the same map agree
	m := map[string]string{"b": "2", "a": "1"}
	first, err := EncodeBody(m)
	require.NoError(t, err)
	second, err := EncodeBody(m)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
	require.Equal(t, `{"a":"1","b":"2"}`, string(first))
}

func TestSignBase64MatchesRawHMAC(t *testing.T) {
	secret := []byte("not a very good secret, but a stable one")
	msg := Canonical("GET", "/users/42", nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msg))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, SignBase64([]byte(msg), secret))
}

func TestMatch(t *testing.T) {
	secret := []byte("secret-under-test")
	expected := SignBase64([]byte("GET\n/users/42\n{}"), secret)

	require.True(t, Match(secret, expected, expected))

	// flip one bit of the received value
	raw, err := base64.StdEncoding.DecodeString(expected)
	require.NoError(t, err)
	raw[0] ^= 0x01
	require.False(t, Match(secret, expected, base64.StdEncoding.EncodeToString(raw)))

	// wildly different lengths must not match either
	require.False(t, Match(secret, expected, ""))
	require.False(t, Match(secret, expected, strings.Repeat("A", 1024)))
}

// Match must not run faster when the received value diverges early. The
// double HMAC reduces both sides to fixed-length digests before comparing,
// so a first-byte mismatch and a last-byte mismatch should cost about the
// same. Sampled repeatedly because single timings are all noise.
func TestMatchTimingIsPositionIndependent(t *testing.T) {
	if testing.Short() {
		t.Skip("timing sampling is slow")
	}
	secret := []byte("timing-test-secret")
	expected := SignBase64([]byte("GET\n/users/42\n{}"), secret)

	firstDiff := "X" + expected[1:]
	lastDiff := expected[:len(expected)-1] + "X"

	const rounds = 5000
	sample := func(received string) time.Duration {
		timings := make([]time.Duration, 0, rounds)
		for i := 0; i < rounds; i++ {
			start := time.Now()
			if Match(secret, expected, received) {
				t.Fatal("corrupted signature must not match")
			}
			timings = append(timings, time.Since(start))
		}
		sort.Slice(timings, func(i, j int) bool { return timings[i] < timings[j] })
		return timings[len(timings)/2]
	}

	early := sample(firstDiff)
	late := sample(lastDiff)

	ratio := float64(early) / float64(late)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	// medians over 5k rounds should sit well within noise of each other
	if ratio > 3 {
		t.Fatalf("median timings diverge too much: first-byte %v vs last-byte %v", early, late)
	}
}

func TestNewSecret(t *testing.T) {
	secret, err := NewSecret(rand.Reader)
	require.NoError(t, err)
	require.Len(t, secret, 120)
	require.True(t, ValidSecret(secret))

	other, err := NewSecret(rand.Reader)
	require.NoError(t, err)
	require.NotEqual(t, secret, other)

	_, err = NewSecret(failingReader{})
	require.Error(t, err)
}

func TestValidSecretBounds(t *testing.T) {
	require.False(t, ValidSecret(""))
	require.False(t, ValidSecret(strings.Repeat("a", MinSecretLen-1)))
	require.True(t, ValidSecret(strings.Repeat("a", MinSecretLen)))
	require.True(t, ValidSecret(strings.Repeat("a", MaxSecretLen)))
	require.False(t, ValidSecret(strings.Repeat("a", MaxSecretLen+1)))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}
