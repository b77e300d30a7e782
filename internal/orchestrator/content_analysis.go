package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/llm"
)

// analysisField is one named content-analysis call (spec §4.7 step 4). Each
// runs concurrently against the same analysis worker, bound by its own
// request timeout.
type analysisField struct {
	name string
	set  func(a *core.Analysis, text string)
}

var analysisFields = []analysisField{
	{"summary", func(a *core.Analysis, t string) { a.Summary = t }},
	{"tiny_summary", func(a *core.Analysis, t string) { a.TinySummary = t }},
	{"tiny_title", func(a *core.Analysis, t string) { a.TinyTitle = t }},
	{"critical_analysis", func(a *core.Analysis, t string) { a.CriticalAnalysis = t }},
	{"logical_fallacies", func(a *core.Analysis, t string) { a.LogicalFallacies = t }},
	{"source_analysis", func(a *core.Analysis, t string) { a.SourceAnalysis = t }},
	{"source_type", func(a *core.Analysis, t string) { a.SourceType = t }},
	{"argument_quality_score", func(a *core.Analysis, t string) { a.ArgumentQualityScore = parseScore(t) }},
	{"source_quality_score", func(a *core.Analysis, t string) { a.SourceQualityScore = parseScore(t) }},
	{"action_recommendations", func(a *core.Analysis, t string) { a.ActionRecommendations = t }},
	{"talking_points", func(a *core.Analysis, t string) { a.TalkingPoints = t }},
	{"eli5", func(a *core.Analysis, t string) { a.ELI5 = t }},
}

// runContentAnalyses fans every analysisField out to its own goroutine
// against w and assembles the results into one core.Analysis (spec §4.7
// step 4: "these calls may run concurrently against the bound worker").
func (o *Orchestrator) runContentAnalyses(ctx context.Context, w *llm.Worker, title, body string) core.Analysis {
	analysis := core.Analysis{ArticleBody: body}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, field := range analysisFields {
		field := field
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, o.deps.RequestTimeout)
			defer cancel()
			text := w.GenerateText(callCtx, contentPrompt(field.name, title, body), 0.2, nil, false)
			mu.Lock()
			field.set(&analysis, text)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return analysis
}

func contentPrompt(field, title, body string) string {
	return fmt.Sprintf("Title: %s\n\nArticle:\n%s\n\nProduce the %s for this article.", title, truncate(body, 8000), field)
}
