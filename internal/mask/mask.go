// Package mask hides sensitive content in transcripts and candidate text
// before it is stored or displayed.
package mask

import (
	"regexp"

	"github.com/voicetrack/voicetrack/internal/types"
)

// Replacement tokens. None of them can be matched by a rule, which keeps
// masking idempotent.
const (
	TokenSecret = "[secret]"
	TokenEmail  = "[email]"
	TokenRRN    = "[rrn]"
	TokenPhone  = "[phone]"
	TokenNumber = "[number]"
)

type rule struct {
	name    string
	pattern *regexp.Regexp
	token   string
}

// Rules run in order; more specific patterns come before the generic digit run.
var defaultRules = []rule{
	{"bearer", regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{16,}`), TokenSecret},
	{"api_key", regexp.MustCompile(`\b(?:sk|pk|rk)-[A-Za-z0-9_-]{16,}\b|\bATATT[A-Za-z0-9_=-]{16,}`), TokenSecret},
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), TokenEmail},
	{"rrn", regexp.MustCompile(`\b\d{6}-?[1-8]\d{6}\b`), TokenRRN},
	{"phone", regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?\(?\b0?1[016789]\)?[ .-]?\d{3,4}[ .-]?\d{4}\b|\+\d{1,3}[ .-]?\d{1,4}[ .-]?\d{3,4}[ .-]?\d{4}\b`), TokenPhone},
	{"number", regexp.MustCompile(`\d{9,}`), TokenNumber},
}

// Regex masks text with a fixed list of regular expressions
type Regex struct {
	rules []rule
}

// Compile-time check that Regex implements types.Masker
var _ types.Masker = (*Regex)(nil)

// New returns a masker with the default rules
func New() *Regex {
	return &Regex{rules: defaultRules}
}

// Mask replaces every sensitive match with its token
func (m *Regex) Mask(text string) string {
	for _, r := range m.rules {
		text = r.pattern.ReplaceAllString(text, r.token)
	}
	return text
}

// Preview masks text and truncates it to max runes for display
func (m *Regex) Preview(text string, max int) string {
	return types.Truncate(m.Mask(text), max)
}
