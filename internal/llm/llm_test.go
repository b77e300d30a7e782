package llm

import "testing"

func TestStripThinkingTagsRemovesBlock(t *testing.T) {
	in := "<think>reasoning here</think>The answer is yes."
	got := stripThinkingTags(in)
	if got != "The answer is yes." {
		t.Errorf("got %q", got)
	}
}

func TestStripThinkingTagsFallsBackWhenEmptied(t *testing.T) {
	in := "<think>the whole response is reasoning, nothing else</think>"
	got := stripThinkingTags(in)
	if got != in {
		t.Errorf("expected fallback to original text, got %q", got)
	}
}

func TestStripThinkingTagsNoTags(t *testing.T) {
	in := "plain response"
	if got := stripThinkingTags(in); got != in {
		t.Errorf("got %q", got)
	}
}

func TestStripThinkingTagsMultiline(t *testing.T) {
	in := "<think>\nline one\nline two\n</think>\nfinal answer"
	got := stripThinkingTags(in)
	if got != "final answer" {
		t.Errorf("got %q", got)
	}
}

func TestYesNoConstants(t *testing.T) {
	if Unknown == Yes || Unknown == No || Yes == No {
		t.Fatal("YesNo constants must be distinct")
	}
}
