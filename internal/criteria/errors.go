package criteria

import (
	"fmt"
	"sort"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/desertthunder/spotlabel/internal/shared"
)

// Error describes invalid criteria. Pos is the byte offset of the offending token.
type Error struct {
	Pos int
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d: %s", shared.ErrInvalidCriteria, e.Pos+1, e.Msg)
}

func (e *Error) Unwrap() error {
	return shared.ErrInvalidCriteria
}

func errorf(pos int, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// suggestionThreshold is the minimum Levenshtein similarity for a "did you mean" hint.
const suggestionThreshold = 0.5

// suggest returns the known identifier closest to ident, or "" when nothing is close.
func suggest(ident string) string {
	names := make([]string, 0, len(attributeIndex))
	for name := range attributeIndex {
		names = append(names, name)
	}
	sort.Strings(names)

	lev := metrics.NewLevenshtein()
	best, bestScore := "", suggestionThreshold
	for _, name := range names {
		if score := strutil.Similarity(ident, name, lev); score >= bestScore {
			if score > bestScore || best == "" {
				best, bestScore = name, score
			}
		}
	}
	return best
}
