package entity

import (
	"testing"

	"github.com/jeremyandrews/argus/internal/core"
)

type fakeStore struct {
	entities      []core.Entity
	aliases       []core.Alias
	negativeMatch bool
	nextID        int64
}

func (f *fakeStore) GetEntityByNormalizedName(normalizedName string, entityType core.EntityType) (*core.Entity, error) {
	for _, e := range f.entities {
		if e.NormalizedName == normalizedName && e.Type == entityType {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertEntity(e *core.Entity) error {
	f.nextID++
	e.ID = f.nextID
	f.entities = append(f.entities, *e)
	return nil
}

func (f *fakeStore) EntitiesByType(entityType core.EntityType) ([]core.Entity, error) {
	var out []core.Entity
	for _, e := range f.entities {
		if e.Type == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ApprovedAliasFor(normalizedAlias string, entityType core.EntityType) (*core.Alias, error) {
	for _, a := range f.aliases {
		if a.Type == entityType && a.Status == core.AliasApproved && a.Confidence >= core.ApprovedAliasConfidence &&
			(a.NormalizedAlias == normalizedAlias || a.NormalizedCanon == normalizedAlias) {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) IsNegativeMatch(normalizedA, normalizedB string, entityType core.EntityType) (bool, error) {
	return f.negativeMatch, nil
}

func TestResolveCreatesNewEntityWhenNoMatch(t *testing.T) {
	fs := &fakeStore{}
	m := &Matcher{store: fs}

	e, err := m.Resolve(core.ExtractedEntity{Name: "Acme Corp", Type: core.EntityOrganization})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.ID == 0 {
		t.Fatal("expected new entity to get an ID")
	}
}

func TestResolveFindsExactMatch(t *testing.T) {
	fs := &fakeStore{entities: []core.Entity{{ID: 9, Name: "Acme Corp", NormalizedName: "acme corp", Type: core.EntityOrganization}}}
	m := &Matcher{store: fs}

	e, err := m.Resolve(core.ExtractedEntity{Name: "Acme Corp", Type: core.EntityOrganization})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.ID != 9 {
		t.Fatalf("expected exact match to existing id 9, got %d", e.ID)
	}
}

func TestResolveFindsFuzzyMatchAcrossOrganizationProduct(t *testing.T) {
	fs := &fakeStore{entities: []core.Entity{{ID: 5, Name: "Acme Widgets", NormalizedName: "acme widget", Type: core.EntityProduct}}}
	m := &Matcher{store: fs}

	e, err := m.Resolve(core.ExtractedEntity{Name: "Acme Widgets Inc", Type: core.EntityOrganization})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.ID != 5 {
		t.Fatalf("expected token-containment match across compatible types, got %+v", e)
	}
}

func TestMatchesRespectsNegativeMatchVeto(t *testing.T) {
	fs := &fakeStore{negativeMatch: true}
	m := &Matcher{store: fs}

	matched, err := m.Matches("john smith", "john smyth", core.EntityPerson, core.EntityPerson)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if matched {
		t.Fatal("expected negative match veto to block an otherwise-close fuzzy match")
	}
}

func TestMatchesIncompatibleTypesNeverMatch(t *testing.T) {
	fs := &fakeStore{}
	m := &Matcher{store: fs}

	matched, err := m.Matches("acme", "acme", core.EntityPerson, core.EntityLocation)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if matched {
		t.Fatal("expected incompatible types to never match regardless of name equality")
	}
}
