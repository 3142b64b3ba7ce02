// Package fingerprint computes the content hashes used for transcript
// provenance, idempotency keys and request fingerprints.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Prefix tags every hash with its algorithm
const Prefix = "sha256:"

var keyRegex = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// KeyInput holds the fields an idempotency key is derived from
type KeyInput struct {
	Project   string
	IssueType string
	Summary   string
	// Content is a content or transcript fingerprint
	Content string
	// Discriminator is the 1-based candidate position. It lets two identical
	// candidates from one transcript receive distinct keys.
	Discriminator int
}

// ComputeKey returns sha256:<hex> over the normalized, newline-joined fields
func ComputeKey(in KeyInput) string {
	fields := []string{
		strings.ToUpper(strings.TrimSpace(in.Project)),
		strings.TrimSpace(in.IssueType),
		NormalizeSummary(in.Summary),
		strings.TrimSpace(in.Content),
		strconv.Itoa(in.Discriminator),
	}
	return Sum(strings.Join(fields, "\n"))
}

// CandidateKey is the one derivation used wherever a candidate needs a key
// and its source did not supply one.
func CandidateKey(project, issueType, summary, transcriptFingerprint string, position int) string {
	return ComputeKey(KeyInput{
		Project:       project,
		IssueType:     issueType,
		Summary:       summary,
		Content:       transcriptFingerprint,
		Discriminator: position,
	})
}

// NormalizeSummary trims and collapses internal whitespace
func NormalizeSummary(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Sum hashes s and returns the tagged hex digest
func Sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return Prefix + hex.EncodeToString(h[:])
}

// Transcript fingerprints raw transcript text byte for byte
func Transcript(text string) string {
	return Sum(text)
}

// Request fingerprints the JSON encoding of an outgoing request
func Request(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode request for fingerprint: %w", err)
	}
	return Sum(string(data)), nil
}

// IsKey reports whether s is an already-tagged sha256 key
func IsKey(s string) bool {
	return keyRegex.MatchString(s)
}
