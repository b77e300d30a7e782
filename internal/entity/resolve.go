package entity

import (
	"fmt"

	"github.com/jeremyandrews/argus/internal/core"
	"github.com/jeremyandrews/argus/internal/store"
)

// entityStore is the subset of *store.Store the matcher and resolver need,
// kept narrow so tests can fake it.
type entityStore interface {
	GetEntityByNormalizedName(normalizedName string, entityType core.EntityType) (*core.Entity, error)
	UpsertEntity(e *core.Entity) error
	EntitiesByType(entityType core.EntityType) ([]core.Entity, error)
	ApprovedAliasFor(normalizedAlias string, entityType core.EntityType) (*core.Alias, error)
	IsNegativeMatch(normalizedA, normalizedB string, entityType core.EntityType) (bool, error)
}

// Matcher resolves extracted entity names against the canonical entity
// table, applying the spec's short-circuit matching order.
type Matcher struct {
	store entityStore
}

// NewMatcher wraps a relational store.
func NewMatcher(s *store.Store) *Matcher {
	return &Matcher{store: s}
}

// compatible reports whether two entity types may be matched against each
// other. Organization and Product are mutually compatible; every other
// pair must be identical (spec §4.5).
func compatible(a, b core.EntityType) bool {
	if a == b {
		return true
	}
	return (a == core.EntityOrganization && b == core.EntityProduct) ||
		(a == core.EntityProduct && b == core.EntityOrganization)
}

// Matches implements the spec's §4.5 short-circuit name-matching order for
// two already-normalized names of compatible types.
func (m *Matcher) Matches(normA, normB string, typeA, typeB core.EntityType) (bool, error) {
	if !compatible(typeA, typeB) {
		return false, nil
	}
	if normA == normB {
		return true, nil
	}

	alias, err := m.store.ApprovedAliasFor(normB, typeA)
	if err != nil {
		return false, fmt.Errorf("lookup approved alias: %w", err)
	}
	if alias != nil && (alias.NormalizedCanon == normA || alias.NormalizedAlias == normA) {
		return true, nil
	}
	alias, err = m.store.ApprovedAliasFor(normA, typeA)
	if err != nil {
		return false, fmt.Errorf("lookup approved alias: %w", err)
	}
	if alias != nil && (alias.NormalizedCanon == normB || alias.NormalizedAlias == normB) {
		return true, nil
	}

	veto, err := m.store.IsNegativeMatch(normA, normB, typeA)
	if err != nil {
		return false, fmt.Errorf("check negative match: %w", err)
	}
	if veto {
		return false, nil
	}

	person := typeA == core.EntityPerson
	if tokenContainment(normA, normB, person) {
		return true, nil
	}

	for _, variant := range applyVariations(normA) {
		if variant == normB {
			return true, nil
		}
	}
	for _, variant := range applyVariations(normB) {
		if variant == normA {
			return true, nil
		}
	}

	if person && firstToken(normA) != firstToken(normB) {
		return false, nil
	}
	threshold := editDistanceThreshold(max(len(normA), len(normB)))
	return damerauLevenshtein(normA, normB, threshold) <= threshold, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Resolve finds or creates the canonical Entity for an extracted entity,
// scanning existing entities of a compatible type for a name match before
// falling back to creating a new one.
func (m *Matcher) Resolve(extracted core.ExtractedEntity) (*core.Entity, error) {
	norm := extracted.NormalizedName
	if norm == "" {
		norm = Normalize(extracted.Name, extracted.Type)
	} else {
		norm = Normalize(norm, extracted.Type)
	}

	if existing, err := m.store.GetEntityByNormalizedName(norm, extracted.Type); err != nil {
		return nil, fmt.Errorf("lookup entity: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	candidateTypes := []core.EntityType{extracted.Type}
	switch extracted.Type {
	case core.EntityOrganization:
		candidateTypes = append(candidateTypes, core.EntityProduct)
	case core.EntityProduct:
		candidateTypes = append(candidateTypes, core.EntityOrganization)
	}

	for _, t := range candidateTypes {
		candidates, err := m.store.EntitiesByType(t)
		if err != nil {
			return nil, fmt.Errorf("scan entity candidates: %w", err)
		}
		for _, candidate := range candidates {
			matched, err := m.Matches(norm, candidate.NormalizedName, extracted.Type, candidate.Type)
			if err != nil {
				return nil, fmt.Errorf("match candidate: %w", err)
			}
			if matched {
				return &candidate, nil
			}
		}
	}

	entity := &core.Entity{Name: extracted.Name, NormalizedName: norm, Type: extracted.Type}
	if err := m.store.UpsertEntity(entity); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return entity, nil
}
