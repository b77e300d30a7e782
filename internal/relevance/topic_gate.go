package relevance

import "context"

// TopicGate cheaply pre-screens an article against a list of subscription
// topics with keyword scoring, so the orchestrator's LLM relevance gate
// (spec §4.7 step 2) only fires for articles a topic could plausibly
// match. It never replaces the LLM's yes/no verdict, which remains
// authoritative; a gate pass is a necessary, not sufficient, condition.
type TopicGate struct {
	scorer Scorer
}

// NewTopicGate builds a gate backed by the fast keyword scorer.
func NewTopicGate() *TopicGate {
	return &TopicGate{scorer: NewKeywordScorer()}
}

// Candidates scores title/body against every topic and returns the subset
// that clears ThresholdMinimum, ordered as given. An empty result means the
// LLM relevance call can be skipped entirely for this article.
func (g *TopicGate) Candidates(ctx context.Context, title, body string, topics []string) ([]string, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	content := ArticleAdapter{Title: title, Content: body}

	var matched []string
	for _, topic := range topics {
		criteria := DefaultCriteria(topic)
		score, err := g.scorer.Score(ctx, content, criteria)
		if err != nil {
			return nil, err
		}
		if score.Value >= ThresholdMinimum {
			matched = append(matched, topic)
		}
	}
	return matched, nil
}
