package candidates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/voicetrack/voicetrack/internal/types"
)

// bulletRegex matches "- item", "* item", "• item", "· item", "+ item",
// "1. item" and "1) item"
var bulletRegex = regexp.MustCompile(`^(?:[-*•·+]|\d{1,3}[.)])\s+(.+)$`)

// Heuristic proposes one candidate per bullet line, or per non-empty line
// when the transcript has no bullets, keeping at most max in original order.
func Heuristic(transcript string, max int) (*types.Proposal, error) {
	if err := checkMax(max); err != nil {
		return nil, err
	}

	lines := strings.Split(strings.ReplaceAll(transcript, "\r\n", "\n"), "\n")

	var bullets, plain []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := bulletRegex.FindStringSubmatch(line); m != nil {
			if item := strings.TrimSpace(m[1]); item != "" {
				bullets = append(bullets, item)
			}
			continue
		}
		plain = append(plain, line)
	}

	items := bullets
	if len(items) == 0 {
		items = plain
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: transcript has no usable lines", types.ErrValidation)
	}
	if len(items) > max {
		items = items[:max]
	}

	proposal := &types.Proposal{
		SummaryBullets: make([]string, 0, len(items)),
		Candidates:     make([]types.RawCandidate, 0, len(items)),
	}
	for _, item := range items {
		proposal.SummaryBullets = append(proposal.SummaryBullets, item)
		proposal.Candidates = append(proposal.Candidates, types.RawCandidate{
			Summary:     item,
			Description: item,
		})
	}
	return proposal, nil
}
