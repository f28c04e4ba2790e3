package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func wrappedShard(t *testing.T, text string, pageNumbers ...int) []byte {
	t.Helper()

	pages := make([]map[string]interface{}, 0, len(pageNumbers))
	for _, n := range pageNumbers {
		pages = append(pages, map[string]interface{}{
			"page_number": n,
			"paragraphs":  []string{fmt.Sprintf("page %d text", n)},
		})
	}

	raw, err := json.Marshal(map[string]interface{}{
		"document": map[string]interface{}{
			"text":  text,
			"pages": pages,
		},
	})
	if err != nil {
		t.Fatalf("building shard: %v", err)
	}
	return raw
}

func TestMerge_ConcatenatesShardsInOrder(t *testing.T) {
	shards := [][]byte{
		wrappedShard(t, "first ", 1, 2),
		wrappedShard(t, "second ", 3),
		wrappedShard(t, "third", 4, 5, 6),
	}

	merged, err := Merge(shards)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if merged.Text != "first second third" {
		t.Errorf("unexpected merged text: %q", merged.Text)
	}
	if len(merged.Pages) != 6 {
		t.Fatalf("expected 6 pages, got %d", len(merged.Pages))
	}

	wantOrder := []int{1, 2, 3, 4, 5, 6}
	for i, page := range merged.Pages {
		if page.PageNumber != wantOrder[i] {
			t.Errorf("page %d: expected number %d, got %d", i, wantOrder[i], page.PageNumber)
		}
	}
}

func TestMerge_ZeroUsableShardsFails(t *testing.T) {
	shards := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"unrelated": true}`),
		[]byte(`{}`),
	}

	_, err := Merge(shards)
	if !errors.Is(err, ErrNoUsableShards) {
		t.Fatalf("expected ErrNoUsableShards, got %v", err)
	}
}

func TestMerge_SkipsMalformedShardsWhenOneIsUsable(t *testing.T) {
	shards := [][]byte{
		[]byte(`garbage`),
		wrappedShard(t, "survivor", 1),
		[]byte(`{"unrelated": true}`),
	}

	merged, err := Merge(shards)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Text != "survivor" {
		t.Errorf("unexpected text: %q", merged.Text)
	}
	if len(merged.Pages) != 1 {
		t.Errorf("expected 1 page, got %d", len(merged.Pages))
	}
}

func TestParseShard_SupportsLegacyShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"wrapped", `{"document": {"text": "hello", "pages": [{"page_number": 1}]}}`},
		{"bare", `{"text": "hello", "pages": [{"page_number": 1}]}`},
		{"legacy results", `{"results": [{"text": "hello", "pages": [{"page_number": 1}]}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := ParseShard([]byte(tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Text != "hello" {
				t.Errorf("unexpected text: %q", doc.Text)
			}
			if len(doc.Pages) != 1 {
				t.Errorf("expected 1 page, got %d", len(doc.Pages))
			}
		})
	}
}

func TestParseShard_EntitiesSurviveProjection(t *testing.T) {
	raw := `{"document": {"text": "inv", "entities": [
		{"type": "invoice_number", "text": "INV-42", "confidence": 0.97, "page": 1},
		{"type": "total", "text": "199.95", "confidence": 0.88, "page": 2}
	]}}`

	doc, err := ParseShard([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(doc.Entities))
	}
	if doc.Entities[0].Type != "invoice_number" || doc.Entities[0].Text != "INV-42" {
		t.Errorf("unexpected first entity: %+v", doc.Entities[0])
	}

	fields := doc.FieldMap()
	if fields["total"] != "199.95" {
		t.Errorf("expected total field, got %v", fields)
	}
}
