// Package signature implements the request signing scheme used by linkstash
// clients and verified by the server.
//
// There are no sessions and no bearer tokens. Every request is individually
// authenticated: the client builds a canonical string from the method, the
// path (exactly as the server will observe it, query string included) and the
// exact body bytes it is about to send, then puts the base64 HMAC-SHA256 of
// that string in the Authorization header, keyed by a per-user secret.
//
// The secret is the only credential material for the API. It is issued once,
// when the account is created, and handed to the client exactly once, in the
// response of a successful password login. Whoever holds the secret holds the
// account (for API purposes; the password itself is never derivable from it).
//
// The server rebuilds the same canonical string from the inbound request and
// compares signatures. Comparison is done on second-stage HMACs of both
// values, keyed by the same secret, so the comparison always runs over two
// fixed-length digests no matter what the caller sent. See Match.
//
// The scheme carries no timestamp or nonce, so a captured request can be
// replayed as-is. Fixing that would change the canonical string, which is a
// wire contract shared with every deployed client, so it stays out for now.
package signature
