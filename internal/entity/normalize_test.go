package entity

import (
	"testing"

	"github.com/jeremyandrews/argus/internal/core"
)

func TestNormalizeLowercasesAndCollapsesWhitespace(t *testing.T) {
	got := Normalize("  Jean-Luc   Picard  ", core.EntityPerson)
	if got != "jean-luc picard" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeFoldsDiacritics(t *testing.T) {
	got := Normalize("Café Møller", core.EntityOrganization)
	if got != "cafe moller" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeStemsNonPersonTypes(t *testing.T) {
	got := Normalize("Corporations", core.EntityOrganization)
	if got != "corporation" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeNeverStemsPerson(t *testing.T) {
	got := Normalize("Jennings", core.EntityPerson)
	if got != "jennings" {
		t.Errorf("expected person names to skip stemming, got %q", got)
	}
}

func TestNormalizePreservesApostrophe(t *testing.T) {
	got := Normalize("O'Brien", core.EntityPerson)
	if got != "o'brien" {
		t.Errorf("got %q", got)
	}
}
