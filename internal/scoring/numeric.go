package scoring

import (
	"math"
	"strconv"
	"strings"
)

// Tolerance is the comparison band for number questions. The zero value means
// exact numeric equality; Abs and Rel are each applied when positive and the
// answer passes if either accepts it.
type Tolerance struct {
	Abs float64 // absolute tolerance, same unit as the answer
	Rel float64 // relative tolerance as a fraction of the reference value
}

func (t Tolerance) accepts(got, want float64) bool {
	diff := math.Abs(got - want)
	if diff == 0 {
		return true
	}
	if t.Abs > 0 && diff <= t.Abs {
		return true
	}
	if t.Rel > 0 && diff <= t.Rel*math.Abs(want) {
		return true
	}
	return false
}

type numberStrategy struct{ tol Tolerance }

func (s numberStrategy) correct(q Question, a Answer) bool {
	if len(q.CorrectAnswers) == 0 {
		return false
	}
	// Exact string match short-circuits, so a reference like "1/2" still
	// works even though it does not parse as a float.
	if normalize(a.Value) == normalize(q.CorrectAnswers[0]) {
		return true
	}
	got, okG := parseFloatLoose(a.Value)
	want, okW := parseFloatLoose(q.CorrectAnswers[0])
	if !okG || !okW {
		return false
	}
	return s.tol.accepts(got, want)
}

// parseFloatLoose parses a float, tolerating surrounding whitespace and a
// trailing unit ("12.5 kg").
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
