package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign computes the HMAC-SHA256 of message keyed by secret and returns the
// raw 32-byte digest.
func Sign(message, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// SignBase64 is the header form of Sign, ie. what goes into (and is expected
// from) the Authorization header.
func SignBase64(message, secret []byte) string {
	return base64.StdEncoding.EncodeToString(Sign(message, secret))
}

// Match reports whether received is a valid signature for the given expected
// value, without leaking timing information about either.
//
// received is attacker-controlled and of arbitrary length, so the two values
// are not compared directly: both are run through a second HMAC keyed by the
// same secret first, which pins the comparison to two 32-byte digests. A
// length mismatch therefore costs the same as a content mismatch, and
// hmac.Equal takes care of the rest.
func Match(secret []byte, expected, received string) bool {
	doubleExpected := Sign([]byte(expected), secret)
	doubleReceived := Sign([]byte(received), secret)
	return hmac.Equal(doubleExpected, doubleReceived)
}
