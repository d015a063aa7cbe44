package scoring

import "math"

// Grade labels on the /20 scale, highest threshold first.
var gradeLabels = []struct {
	min   float64
	label string
}{
	{16, "excellent"},
	{14, "very_good"},
	{12, "good"},
	{10, "satisfactory"},
	{8, "passable"},
	{6, "insufficient"},
}

const passMark = 10.0

// Summary aggregates scored answers over a full form. GradeOn20 is kept
// unrounded; use DisplayGrade for rendering.
type Summary struct {
	TotalPoints float64 `json:"total_points"`
	MaxPoints   float64 `json:"max_points"`
	GradeOn20   float64 `json:"grade_on_20"`
	Label       string  `json:"label"`
	Passed      bool    `json:"passed"`
}

// DisplayGrade is GradeOn20 rounded to two decimals.
func (s Summary) DisplayGrade() float64 {
	return math.Round(s.GradeOn20*100) / 100
}

// Aggregate sums awarded points against the form's full point total. Every
// question counts toward MaxPoints whether or not it was answered; order of
// the scored list is irrelevant.
func Aggregate(scored []ScoredAnswer, questions []Question) Summary {
	var s Summary
	for _, sa := range scored {
		s.TotalPoints += sa.PointsAwarded
	}
	for _, q := range questions {
		s.MaxPoints += q.Points
	}
	if s.MaxPoints > 0 {
		s.GradeOn20 = s.TotalPoints / s.MaxPoints * 20
	}
	s.Label = GradeLabel(s.GradeOn20)
	s.Passed = s.GradeOn20 >= passMark
	return s
}

// GradeLabel maps a /20 grade to its qualitative label.
func GradeLabel(grade float64) string {
	for _, g := range gradeLabels {
		if grade >= g.min {
			return g.label
		}
	}
	return "very_insufficient"
}
