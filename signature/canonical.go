package signature

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmptyBody is what an absent request body looks like inside the canonical
// string. Both sides must agree on this even for verbs that carry no body.
const EmptyBody = "{}"

// Canonical builds the string that gets signed:
//
//	METHOD\nPATH\nBODY
//
// The method is upper-cased, the path is taken verbatim (query string and
// all), and a nil or empty body is replaced by EmptyBody. There is no
// trailing newline. The output must be byte-identical on both ends of the
// wire, so callers must sign the exact body bytes they transmit.
func Canonical(method, path string, body []byte) string {
	if len(body) == 0 {
		body = []byte(EmptyBody)
	}
	return strings.ToUpper(method) + "\n" + path + "\n" + string(body)
}

// EncodeBody serializes a request payload to the compact JSON form the
// canonical string expects. encoding/json is deterministic (struct fields in
// declaration order, map keys sorted), which is the property the wire
// contract depends on. A nil payload encodes as EmptyBody.
func EncodeBody(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte(EmptyBody), nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signature: unable to encode request body, cause %w", err)
	}
	return buf, nil
}
