package relevance

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// KeywordScorer implements fast keyword-based relevance scoring. It
// trades accuracy for speed: it runs on every dequeued article, before
// any LLM call, so it must stay cheap.
type KeywordScorer struct {
	stopWords map[string]bool
}

// NewKeywordScorer creates a new keyword-based scorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{stopWords: getCommonStopWords()}
}

// Score calculates a relevance score for content against criteria.
func (ks *KeywordScorer) Score(ctx context.Context, content Scorable, criteria Criteria) (Score, error) {
	queryKeywords := ks.extractKeywords(criteria.Query)
	keywords := ks.cleanKeywords(append(queryKeywords, criteria.Keywords...))

	if len(keywords) == 0 {
		return Score{Value: 0.5, Confidence: 0.1, Factors: map[string]float64{}, Reasoning: "no keywords to score against"}, nil
	}

	title := ks.normalizeText(content.GetTitle())
	body := ks.normalizeText(content.GetContent())

	factors := map[string]float64{
		"content_relevance": ks.calculateTextRelevance(body, keywords),
		"title_relevance":   ks.calculateTextRelevance(title, keywords),
	}

	weights := criteria.Weights
	if weights.ContentRelevance == 0 && weights.TitleRelevance == 0 {
		weights = NewsWeights
	}
	overall := factors["content_relevance"]*weights.ContentRelevance + factors["title_relevance"]*weights.TitleRelevance
	overall = math.Max(0.0, math.Min(1.0, overall))

	confidence := ks.calculateConfidence(len(body), len(keywords))
	reasoning := ks.generateReasoning(factors)

	return Score{Value: overall, Confidence: confidence, Factors: factors, Reasoning: reasoning}, nil
}

// calculateTextRelevance scores how relevant text is to keywords, blending
// keyword coverage with match frequency (diminishing returns on repeats).
func (ks *KeywordScorer) calculateTextRelevance(text string, keywords []string) float64 {
	if len(text) == 0 || len(keywords) == 0 {
		return 0.0
	}

	totalMatches, uniqueMatches := 0, 0
	for _, keyword := range keywords {
		matches := strings.Count(text, keyword)
		if matches > 0 {
			uniqueMatches++
			totalMatches += matches
		}
	}
	if uniqueMatches == 0 {
		return 0.0
	}

	coverage := float64(uniqueMatches) / float64(len(keywords))
	frequency := math.Log(float64(totalMatches)+1) / math.Log(float64(len(keywords)*3)+1)
	relevance := coverage*0.7 + frequency*0.3
	return math.Min(1.0, relevance)
}

func (ks *KeywordScorer) calculateConfidence(contentLength, keywordCount int) float64 {
	confidence := 0.5
	switch {
	case contentLength > 500:
		confidence += 0.2
	case contentLength < 100:
		confidence -= 0.2
	}
	switch {
	case keywordCount > 3:
		confidence += 0.2
	case keywordCount < 2:
		confidence -= 0.2
	}
	return math.Max(0.1, math.Min(1.0, confidence))
}

func (ks *KeywordScorer) generateReasoning(factors map[string]float64) string {
	var reasons []string
	switch {
	case factors["content_relevance"] > 0.6:
		reasons = append(reasons, "strong keyword matches in body")
	case factors["content_relevance"] < 0.3:
		reasons = append(reasons, "weak keyword matches in body")
	}
	if factors["title_relevance"] > 0.6 {
		reasons = append(reasons, "relevant title")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "mixed relevance indicators")
	}
	return strings.Join(reasons, "; ")
}

var wordSplitRe = regexp.MustCompile(`[^\w\s]`)
var whitespaceRe = regexp.MustCompile(`\s+`)

func (ks *KeywordScorer) extractKeywords(query string) []string {
	if len(query) == 0 {
		return nil
	}
	cleaned := wordSplitRe.ReplaceAllString(query, " ")
	words := strings.Fields(cleaned)

	var keywords []string
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if len(word) > 2 && !ks.stopWords[word] {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

func (ks *KeywordScorer) cleanKeywords(keywords []string) []string {
	seen := make(map[string]bool)
	var clean []string
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if len(keyword) > 2 && !ks.stopWords[keyword] && !seen[keyword] {
			seen[keyword] = true
			clean = append(clean, keyword)
		}
	}
	return clean
}

func (ks *KeywordScorer) normalizeText(text string) string {
	text = strings.ToLower(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func getCommonStopWords() map[string]bool {
	stopWords := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
		"has", "he", "in", "is", "it", "its", "of", "on", "that", "the",
		"to", "was", "were", "will", "with", "this", "but", "they",
		"have", "had", "what", "said", "each", "which", "she", "do", "how",
		"their", "if", "up", "out", "many", "then", "them", "these", "so",
		"some", "her", "would", "make", "like", "into", "him", "time", "two",
	}
	out := make(map[string]bool, len(stopWords))
	for _, word := range stopWords {
		out[word] = true
	}
	return out
}
