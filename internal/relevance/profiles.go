package relevance

// NewsWeights favors body-keyword matches over title matches: article
// bodies carry most of the entity and topic signal, while titles are
// often written for engagement rather than precision.
var NewsWeights = ScoringWeights{
	ContentRelevance: 0.7,
	TitleRelevance:   0.3,
}

// DefaultCriteria builds topic-gate criteria for query, using the news
// weighting profile and the minimum pass threshold.
func DefaultCriteria(query string) Criteria {
	return Criteria{
		Query:     query,
		Weights:   NewsWeights,
		Threshold: ThresholdMinimum,
	}
}
