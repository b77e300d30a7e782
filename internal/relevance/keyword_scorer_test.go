package relevance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordScorerMatchesTopic(t *testing.T) {
	scorer := NewKeywordScorer()
	ctx := context.Background()

	content := ArticleAdapter{
		Title:   "Amazon expands Project Kuiper satellite launches",
		Content: "Amazon's Project Kuiper division added another batch of satellites this week, continuing its build-out of a broadband constellation to rival Starlink.",
	}

	criteria := DefaultCriteria("Project Kuiper satellites")
	score, err := scorer.Score(ctx, content, criteria)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score.Value, 0.0)
	assert.LessOrEqual(t, score.Value, 1.0)
	assert.GreaterOrEqual(t, score.Value, ThresholdMinimum, "expected article matching its own topic to clear the minimum gate")
	assert.NotEmpty(t, score.Factors)
	assert.InDelta(t, 0.5, score.Confidence, 0.5)
}

func TestKeywordScorerUnrelatedTopicScoresLower(t *testing.T) {
	scorer := NewKeywordScorer()
	ctx := context.Background()

	kuiper := ArticleAdapter{
		Title:   "Amazon expands Project Kuiper satellite launches",
		Content: "Amazon's Project Kuiper division added another batch of satellites this week.",
	}
	cooking := ArticleAdapter{
		Title:   "Easy weeknight pasta recipes",
		Content: "A collection of simple pasta dishes you can make in under thirty minutes.",
	}

	criteria := DefaultCriteria("Project Kuiper satellites")

	kuiperScore, err := scorer.Score(ctx, kuiper, criteria)
	require.NoError(t, err)
	cookingScore, err := scorer.Score(ctx, cooking, criteria)
	require.NoError(t, err)

	assert.Greater(t, kuiperScore.Value, cookingScore.Value)
}

func TestKeywordScorerNoKeywordsIsNeutral(t *testing.T) {
	scorer := NewKeywordScorer()
	ctx := context.Background()

	content := ArticleAdapter{Title: "headline", Content: "body text"}
	criteria := Criteria{Query: "", Weights: NewsWeights}

	score, err := scorer.Score(ctx, content, criteria)
	require.NoError(t, err)
	assert.Equal(t, 0.5, score.Value)
}

func TestTopicGateCandidates(t *testing.T) {
	gate := NewTopicGate()
	ctx := context.Background()

	matched, err := gate.Candidates(ctx, "Amazon expands Project Kuiper satellite launches",
		"Amazon's Project Kuiper division added another batch of satellites this week.",
		[]string{"Project Kuiper satellites", "cooking recipes"})
	require.NoError(t, err)

	assert.Contains(t, matched, "Project Kuiper satellites")
	assert.NotContains(t, matched, "cooking recipes")
}

func TestTopicGateNoTopics(t *testing.T) {
	gate := NewTopicGate()
	matched, err := gate.Candidates(context.Background(), "title", "body", nil)
	require.NoError(t, err)
	assert.Nil(t, matched)
}
