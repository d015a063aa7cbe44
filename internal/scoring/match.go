package scoring

import (
	"strings"
	"unicode"
)

// TextMatcher decides whether a normalized response matches the normalized
// reference answer. Implementations must be stateless; the engine may call
// them concurrently.
type TextMatcher interface {
	Match(got, want string) bool
}

// ExactMatcher accepts only normalized string equality.
type ExactMatcher struct{}

func (ExactMatcher) Match(got, want string) bool { return got == want }

// SubstringMatcher accepts a response that contains the reference answer.
// Empty references never match.
type SubstringMatcher struct{}

func (SubstringMatcher) Match(got, want string) bool {
	if want == "" {
		return false
	}
	return strings.Contains(got, want)
}

// EditDistanceMatcher accepts a response within MaxDistance edits of the
// reference. MaxDistance <= 0 degrades to exact matching.
type EditDistanceMatcher struct {
	MaxDistance int
}

func (m EditDistanceMatcher) Match(got, want string) bool {
	if got == want {
		return true
	}
	if m.MaxDistance <= 0 {
		return false
	}
	return levenshtein(got, want) <= m.MaxDistance
}

// MatcherFor maps a policy name to a matcher; unknown names fall back to
// exact. maxEdit only applies to the "fuzzy" policy.
func MatcherFor(policy string, maxEdit int) TextMatcher {
	switch policy {
	case "substring":
		return SubstringMatcher{}
	case "fuzzy":
		if maxEdit <= 0 {
			maxEdit = 1
		}
		return EditDistanceMatcher{MaxDistance: maxEdit}
	default:
		return ExactMatcher{}
	}
}

// normalize casefolds, trims, and collapses runs of whitespace.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// trimCollapse is normalize without casefolding, used for emptiness checks.
func trimCollapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// levenshtein computes edit distance (insertion, deletion, substitution cost 1).
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			ins := dp[j] + 1
			del := dp[j-1] + 1
			sub := prev + cost
			dp[j] = min3(ins, del, sub)
			prev = tmp
		}
	}
	return dp[m]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
