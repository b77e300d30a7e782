package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/llm"
)

const extractionPrompt = `Extract named entities from the following article text. Respond with a JSON object of the form:
{"event_date": "YYYY-MM-DD or empty", "entities": [{"name": "...", "type": "person|organization|location|event|product|date|other", "importance": "primary|secondary|mentioned", "context": "..."}]}

Article:
%s`

// rawExtraction mirrors the LLM's JSON response shape before type/importance
// values are validated against the schema's known enums.
type rawExtraction struct {
	EventDate string `json:"event_date"`
	Entities  []struct {
		Name           string `json:"name"`
		NormalizedName string `json:"normalized_name"`
		Type           string `json:"type"`
		Importance     string `json:"importance"`
		Context        string `json:"context"`
	} `json:"entities"`
}

// Extract asks worker to extract entities from articleText. A malformed or
// empty LLM response is a recoverable error surfaced to the caller (spec
// §4.5: "Any top-level parse failure is a recoverable error surfaced to
// the orchestrator").
func Extract(ctx context.Context, worker *llm.Worker, articleText string) (core.ExtractedEntities, error) {
	text := worker.GenerateJSON(ctx, fmt.Sprintf(extractionPrompt, articleText), llm.SchemaEntityExtraction, 0.1)
	if text == "" {
		return core.ExtractedEntities{}, fmt.Errorf("entity extraction produced no response")
	}

	var raw rawExtraction
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return core.ExtractedEntities{}, fmt.Errorf("parse entity extraction response: %w", err)
	}

	out := core.ExtractedEntities{EventDate: raw.EventDate}
	for _, e := range raw.Entities {
		if e.Name == "" {
			continue
		}
		entityType := parseEntityType(e.Type)
		normalizedName := e.NormalizedName
		if normalizedName == "" {
			normalizedName = strings.ToLower(e.Name)
		}
		out.Entities = append(out.Entities, core.ExtractedEntity{
			Name:           e.Name,
			NormalizedName: normalizedName,
			Type:           entityType,
			Importance:     parseImportance(e.Importance),
			Context:        e.Context,
		})
	}
	return out, nil
}

func parseEntityType(raw string) core.EntityType {
	switch core.EntityType(strings.ToLower(raw)) {
	case core.EntityPerson, core.EntityOrganization, core.EntityLocation,
		core.EntityEvent, core.EntityProduct, core.EntityDate:
		return core.EntityType(strings.ToLower(raw))
	default:
		return core.EntityOther
	}
}

func parseImportance(raw string) core.Importance {
	switch core.Importance(strings.ToLower(raw)) {
	case core.ImportancePrimary, core.ImportanceSecondary:
		return core.Importance(strings.ToLower(raw))
	default:
		return core.ImportanceMentioned
	}
}
