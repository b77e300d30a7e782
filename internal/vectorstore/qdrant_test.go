package vectorstore

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"

	"github.com/jeremyandrews/argus/internal/core"
)

func TestWithinWindow(t *testing.T) {
	window := PubDateWindow{From: "2026-06-01", To: "2026-07-01"}

	inside := "2026-06-15"
	if !withinWindow(&inside, window) {
		t.Error("expected date inside window to match")
	}

	outside := "2026-08-01"
	if withinWindow(&outside, window) {
		t.Error("expected date outside window to be excluded")
	}

	if withinWindow(nil, window) {
		t.Error("expected missing pub_date to never match a bounded window")
	}
}

func TestPayloadToMap(t *testing.T) {
	pubDate := "2026-07-20"
	category := "politics"
	p := core.VectorPayload{
		PubDate:   &pubDate,
		Category:  &category,
		Quality:   4,
		EntityIDs: []int64{1, 2, 3},
	}

	m, err := payloadToMap(p)
	if err != nil {
		t.Fatalf("payloadToMap: %v", err)
	}
	if m["quality"] != float64(4) {
		t.Errorf("unexpected quality in map: %v", m["quality"])
	}
}

func TestValueToGoScalars(t *testing.T) {
	cases := []struct {
		name string
		in   *qdrant.Value
		want any
	}{
		{"string", &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: "x"}}, "x"},
		{"integer", &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: 7}}, int64(7)},
		{"bool", &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}}, true},
		{"nil", nil, nil},
	}
	for _, c := range cases {
		if got := valueToGo(c.in); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}
