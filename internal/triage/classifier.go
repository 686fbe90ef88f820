// Package triage decides whether a message needs operational follow-up and
// suggests a first reply.
//
// Classification is a deterministic pipeline: the text is normalized,
// matched against a phrase lexicon and three patterns, the signals are
// summed into a score, and the score is thresholded into one of two
// categories. A Classifier holds no mutable state and is safe for
// concurrent use.
package triage

import "fmt"

// Category is the outcome of a classification.
type Category uint8

const (
	Unproductive Category = iota
	Productive
)

func (c Category) String() string {
	switch c {
	case Productive:
		return "Productive"
	case Unproductive:
		return "Unproductive"
	default:
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
}

// Label is the Portuguese name shown to users ("Produtivo"/"Improdutivo").
func (c Category) Label() string {
	if c == Productive {
		return "Produtivo"
	}
	return "Improdutivo"
}

func (c Category) MarshalText() ([]byte, error) {
	if c > Productive {
		return nil, fmt.Errorf("invalid category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// Result is the category plus the suggested reply.
type Result struct {
	Category       Category `json:"category"`
	SuggestedReply string   `json:"suggested_reply"`
}

// Explanation is a Result together with the signals that produced it.
type Explanation struct {
	Result
	Score         int
	Matches       Matches
	Contributions []Contribution
}

// Classifier scores messages against a Lexicon.
type Classifier struct {
	lexicon *Lexicon
}

// New returns a Classifier using lex, or the built-in lexicon when lex is nil.
func New(lex *Lexicon) *Classifier {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Classifier{lexicon: lex}
}

// Lexicon returns the tables the classifier matches against.
func (c *Classifier) Lexicon() *Lexicon { return c.lexicon }

// Classify runs the whole pipeline. It is defined for every string; empty
// input is Unproductive with the no-action reply.
func (c *Classifier) Classify(text string) Result {
	return c.Explain(text).Result
}

// Explain is Classify plus the score breakdown.
func (c *Classifier) Explain(text string) Explanation {
	m := c.Match(text)
	contribs := Contributions(m)
	score := 0
	for _, ct := range contribs {
		score += ct.Weight
	}
	category := Categorize(score)
	return Explanation{
		Result: Result{
			Category:       category,
			SuggestedReply: ComposeReply(category, m),
		},
		Score:         score,
		Matches:       m,
		Contributions: contribs,
	}
}

var std = New(nil)

// Classify classifies text with the built-in lexicon.
func Classify(text string) Result { return std.Classify(text) }
