package gates

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/voicetrack/voicetrack/internal/types"
)

// ParseIndices parses "1,3", "1 3" or "1, 3" into positions. Anything that
// is not an integer is a precondition error naming the valid range.
func ParseIndices(raw string, n int) ([]int, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no indices given; valid range is %s", types.ErrPrecondition, validRange(n))
	}

	indices := make([]int, 0, len(fields))
	for _, f := range fields {
		i, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid index %q; valid range is %s", types.ErrPrecondition, f, validRange(n))
		}
		indices = append(indices, i)
	}
	return NormalizeIndices(indices, n)
}

// NormalizeIndices checks every index against [1, n] and collapses
// duplicates, keeping first-seen order
func NormalizeIndices(indices []int, n int) ([]int, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: no indices given; valid range is %s", types.ErrPrecondition, validRange(n))
	}

	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, i := range indices {
		if i < 1 || i > n {
			return nil, fmt.Errorf("%w: index %d out of range; valid range is %s", types.ErrPrecondition, i, validRange(n))
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out, nil
}

func validRange(n int) string {
	if n < 1 {
		return "empty (run has no candidates)"
	}
	return fmt.Sprintf("1..%d", n)
}
