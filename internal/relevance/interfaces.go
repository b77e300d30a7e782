// Package relevance provides a fast, non-LLM pre-screen used by the
// analysis orchestrator to decide which subscription topics are worth
// asking the relevance-gate LLM about for a given article (spec §4.7
// step 2). It never replaces the LLM's yes/no verdict; a gate pass is a
// necessary, not sufficient, condition for the LLM call to fire.
package relevance

import "context"

// Scorer calculates a relevance score for a single piece of content
// against a topic.
type Scorer interface {
	Score(ctx context.Context, content Scorable, criteria Criteria) (Score, error)
}

// Scorable is anything the scorer can read a title and body from.
type Scorable interface {
	GetTitle() string
	GetContent() string
}

// Criteria is the topic and tuning knobs a Scorer is asked to score against.
type Criteria struct {
	Query     string
	Keywords  []string
	Weights   ScoringWeights
	Threshold float64
}

// ScoringWeights controls how much each factor contributes to the overall
// score.
type ScoringWeights struct {
	ContentRelevance float64
	TitleRelevance   float64
}

// Score is the result of scoring one piece of content.
type Score struct {
	Value      float64
	Confidence float64
	Factors    map[string]float64
	Reasoning  string
}

// ThresholdMinimum is the score a topic must clear to remain a candidate
// for the LLM relevance gate.
const ThresholdMinimum = 0.2

// ArticleAdapter adapts a title/body pair to Scorable.
type ArticleAdapter struct {
	Title   string
	Content string
}

func (a ArticleAdapter) GetTitle() string   { return a.Title }
func (a ArticleAdapter) GetContent() string { return a.Content }
