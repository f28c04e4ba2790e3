package extraction

import (
	"encoding/json"

	"paperwing/internal/model"

	"github.com/rs/zerolog/log"
)

// shardPayload is the canonical projection of one result shard
type shardPayload struct {
	Text     string         `json:"text"`
	Pages    []model.Page   `json:"pages"`
	Entities []model.Entity `json:"entities"`
}

func (p *shardPayload) empty() bool {
	return p.Text == "" && len(p.Pages) == 0 && len(p.Entities) == 0
}

// shapeMatcher attempts to project one known response shape onto the
// canonical payload. Matchers return false when the shape is absent.
type shapeMatcher func(raw []byte) (*shardPayload, bool)

// The service has shipped three response layouts over time. Matchers run
// newest first and the first match wins. Keep this list short and explicit;
// do not add speculative field handling.
var shardShapes = []shapeMatcher{
	matchWrappedDocument,
	matchBareDocument,
	matchLegacyResults,
}

// matchWrappedDocument handles the current shape: {"document": {...}}
func matchWrappedDocument(raw []byte) (*shardPayload, bool) {
	var wrapper struct {
		Document *shardPayload `json:"document"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Document == nil {
		return nil, false
	}
	if wrapper.Document.empty() {
		return nil, false
	}
	return wrapper.Document, true
}

// matchBareDocument handles an unwrapped {"text": ..., "pages": ...} body
func matchBareDocument(raw []byte) (*shardPayload, bool) {
	var payload shardPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	if payload.empty() {
		return nil, false
	}
	return &payload, true
}

// matchLegacyResults handles the oldest shape: {"results": [{...}]}
func matchLegacyResults(raw []byte) (*shardPayload, bool) {
	var wrapper struct {
		Results []shardPayload `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || len(wrapper.Results) == 0 {
		return nil, false
	}
	if wrapper.Results[0].empty() {
		return nil, false
	}
	return &wrapper.Results[0], true
}

// ParseShard projects one raw result shard onto the canonical document shape
func ParseShard(raw []byte) (*model.ExtractedDocument, error) {
	for _, match := range shardShapes {
		if payload, ok := match(raw); ok {
			return &model.ExtractedDocument{
				Text:     payload.Text,
				Pages:    payload.Pages,
				Entities: payload.Entities,
			}, nil
		}
	}

	return nil, ErrNoUsableShards
}

// Merge combines ordered result shards into a single canonical document.
// Text, pages and entities are concatenated in shard order. Malformed shards
// are skipped as long as at least one shard yields usable data; if none does,
// the merge fails with ErrNoUsableShards, which is terminal for the attempt.
func Merge(shards [][]byte) (*model.ExtractedDocument, error) {
	merged := &model.ExtractedDocument{}
	usable := 0

	for i, raw := range shards {
		doc, err := ParseShard(raw)
		if err != nil {
			log.Warn().Int("shard", i).Int("size", len(raw)).Msg("Skipping unusable result shard")
			continue
		}

		usable++
		merged.Text += doc.Text
		merged.Pages = append(merged.Pages, doc.Pages...)
		merged.Entities = append(merged.Entities, doc.Entities...)
	}

	if usable == 0 {
		return nil, ErrNoUsableShards
	}

	log.Debug().
		Int("shards", len(shards)).
		Int("usable", usable).
		Int("pages", len(merged.Pages)).
		Int("entities", len(merged.Entities)).
		Msg("Merged extraction result shards")

	return merged, nil
}
