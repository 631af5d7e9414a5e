package aijson

import (
	"errors"
	"testing"

	"shortreel/internal/domain"
)

func TestDecodeFencedArray(t *testing.T) {
	text := "Here is the result:\n```json\n[1,2,3]\n```\nThanks"
	var got []int
	if err := Decode(text, &got); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected value: %v", got)
	}
}

func TestDecodeObjectWithSurroundingProse(t *testing.T) {
	text := `Sure! The storyboard is {"shots": [{"prompt": "a {quiet} street"}], "count": 1} — let me know.`
	var got struct {
		Shots []struct {
			Prompt string `json:"prompt"`
		} `json:"shots"`
		Count int `json:"count"`
	}
	if err := Decode(text, &got); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got.Count != 1 || len(got.Shots) != 1 || got.Shots[0].Prompt != "a {quiet} street" {
		t.Fatalf("unexpected value: %+v", got)
	}
}

func TestExtractRespectsEscapedQuotes(t *testing.T) {
	text := `{"a": "he said \"}\" loudly", "b": 2} trailing`
	got, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got != `{"a": "he said \"}\" loudly", "b": 2}` {
		t.Fatalf("unexpected candidate: %s", got)
	}
}

func TestDecodeNoJSON(t *testing.T) {
	var v any
	err := Decode("the model refused to answer", &v)
	if !errors.Is(err, domain.ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	var v any
	if err := Decode("   ", &v); !errors.Is(err, domain.ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestDecodeUnbalancedReportsSyntaxError(t *testing.T) {
	var v map[string]any
	err := Decode(`{"a": [1, 2`, &v)
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if errors.Is(err, domain.ErrNoJSON) {
		t.Fatalf("syntax error must be distinct from ErrNoJSON: %v", err)
	}
}
