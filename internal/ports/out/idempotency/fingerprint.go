package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeFingerprint hashes a request's method, path, and body into the
// stable fingerprint stored alongside an idempotency key.
//
// The input is framed as "METHOD:path:body" so reusing a key for a
// different route or payload is always detectable.
func ComputeFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{':'})
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
