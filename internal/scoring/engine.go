package scoring

// Question type codes as stored in form definitions.
const (
	TypeShortText         = "short_text"
	TypeLongText          = "long_text"
	TypeSingleChoiceList  = "single_choice_list"
	TypeSingleChoiceRadio = "single_choice_radio"
	TypeMultiChoice       = "multi_choice"
	TypeNumber            = "number"
)

// Question is a minimal view of a question needed for scoring.
// Presentation fields (prompt, options, numeric hints) stay in the form layer.
type Question struct {
	ID             string
	Type           string
	Points         float64
	CorrectAnswers []string
}

// Answer is the decoded respondent answer, resolved once at the API boundary:
// Value carries text/number/single-choice input, Values carries multi-choice
// selections. The zero value means "no answer".
type Answer struct {
	Value  string
	Values []string
}

// Empty reports whether no usable input was supplied for the answer.
func (a Answer) Empty() bool {
	if len(a.Values) > 0 {
		return false
	}
	return trimCollapse(a.Value) == ""
}

// ScoredAnswer is the outcome of scoring a single answer. It is derived data,
// recomputed from the question and the raw answer whenever needed.
type ScoredAnswer struct {
	QuestionID    string  `json:"question_id"`
	PointsAwarded float64 `json:"points_awarded"`
	IsCorrect     bool    `json:"is_correct"`
}

// strategy decides correctness for one question type. All-or-nothing: the
// engine awards either the full points or zero.
type strategy interface {
	correct(q Question, a Answer) bool
}

// Engine scores answers against question definitions. Scoring is total: a
// malformed, missing, or unknown-type answer scores zero, it never fails.
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	strategies map[string]strategy
}

type config struct {
	matcher   TextMatcher
	tolerance Tolerance
}

type Option func(*config)

// WithTextMatcher installs the fuzzy policy used for short_text/long_text.
func WithTextMatcher(m TextMatcher) Option { return func(c *config) { c.matcher = m } }

// WithTolerance installs the comparison band for number questions.
func WithTolerance(t Tolerance) Option { return func(c *config) { c.tolerance = t } }

// NewEngine builds an engine with built-in strategies. Defaults are exact
// matching: normalized string equality for text, exact numeric equality for
// numbers.
func NewEngine(opts ...Option) *Engine {
	cfg := &config{matcher: ExactMatcher{}}
	for _, o := range opts {
		o(cfg)
	}
	text := textStrategy{matcher: cfg.matcher}
	single := singleChoiceStrategy{}
	return &Engine{
		strategies: map[string]strategy{
			TypeShortText:         text,
			TypeLongText:          text,
			TypeSingleChoiceList:  single,
			TypeSingleChoiceRadio: single,
			TypeMultiChoice:       multiChoiceStrategy{},
			TypeNumber:            numberStrategy{tol: cfg.tolerance},
		},
	}
}

// Score grades one answer. Full points if correct, zero otherwise; no partial
// credit per question.
func (e *Engine) Score(q Question, a Answer) ScoredAnswer {
	res := ScoredAnswer{QuestionID: q.ID}
	if a.Empty() {
		return res
	}
	s, ok := e.strategies[q.Type]
	if !ok || !s.correct(q, a) {
		return res
	}
	res.IsCorrect = true
	res.PointsAwarded = q.Points
	return res
}

// ScoreAll grades a whole submission in question order.
func (e *Engine) ScoreAll(questions []Question, answers map[string]Answer) []ScoredAnswer {
	out := make([]ScoredAnswer, 0, len(questions))
	for _, q := range questions {
		out = append(out, e.Score(q, answers[q.ID]))
	}
	return out
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) correct(q Question, a Answer) bool {
	if len(q.CorrectAnswers) == 0 {
		return false
	}
	return normalize(a.Value) == normalize(q.CorrectAnswers[0])
}

type multiChoiceStrategy struct{}

func (multiChoiceStrategy) correct(q Question, a Answer) bool {
	if len(q.CorrectAnswers) == 0 {
		return false
	}
	// Exact set match: any extra or missing selection is wrong.
	want := toSet(q.CorrectAnswers)
	got := toSet(a.Values)
	if len(want) != len(got) {
		return false
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			return false
		}
	}
	return true
}

type textStrategy struct{ matcher TextMatcher }

func (s textStrategy) correct(q Question, a Answer) bool {
	if len(q.CorrectAnswers) == 0 {
		return false
	}
	return s.matcher.Match(normalize(a.Value), normalize(q.CorrectAnswers[0]))
}

func toSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[normalize(v)] = struct{}{}
	}
	return m
}
