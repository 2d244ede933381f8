// Package fingerprint derives the content address used as the generation cache key.
//
// A fingerprint is the SHA-256 of a canonical manifest of the request fields
// that change the generated clip: the normalized segment text, the model and its
// version, the clip duration, and whether a continuity seed is attached. Seed
// bytes are never hashed: their presence changes the request, their exact
// content varies from run to run.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"

	"scriptreel/internal/textutil"
)

// manifestVersion is mixed into every hash so a change to the manifest layout
// invalidates old cache entries instead of aliasing them.
const manifestVersion = "v1"

// Request lists the fingerprinted fields of a generation request.
type Request struct {
	Prompt          string
	Model           string
	ModelVersion    string
	DurationSeconds float64
	SeedPresent     bool
}

// Compute returns the hex SHA-256 fingerprint of req.
func Compute(req Request) string {
	h := sha256.New()
	writeField(h, "manifest", manifestVersion)
	writeField(h, "prompt", textutil.NormalizePrompt(req.Prompt))
	writeField(h, "model", strings.ToLower(strings.TrimSpace(req.Model)))
	writeField(h, "version", strings.TrimSpace(req.ModelVersion))
	writeField(h, "duration", strconv.FormatFloat(req.DurationSeconds, 'f', 3, 64))
	writeField(h, "seed", strconv.FormatBool(req.SeedPresent))
	return hex.EncodeToString(h.Sum(nil))
}

// writeField appends a length-prefixed key/value pair so no two manifests
// can concatenate to the same byte stream.
func writeField(h hash.Hash, key, value string) {
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(len(value))))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(value))
	_, _ = h.Write([]byte{0})
}

// Short returns a 12-character prefix for log output.
func Short(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}
