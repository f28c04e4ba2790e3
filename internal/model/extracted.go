package model

// ExtractedDocument is the canonical in-memory shape produced by merging
// extraction results. It is never persisted as its own record; the
// orchestrator projects it into the document's extracted fields.
type ExtractedDocument struct {
	Text     string
	Pages    []Page
	Entities []Entity
}

// Page is one page of extracted text with its paragraphs in reading order
type Page struct {
	PageNumber int      `json:"page_number"`
	Paragraphs []string `json:"paragraphs"`
}

// Entity is one structured field detected by the extraction service
type Entity struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Page        int     `json:"page"`
	BoundingBox []float64 `json:"bounding_box,omitempty"`
}

// FieldMap projects entities into a flat field map keyed by entity type,
// keeping the highest-confidence value when a type repeats.
func (d *ExtractedDocument) FieldMap() map[string]interface{} {
	if len(d.Entities) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(d.Entities))
	best := make(map[string]float64, len(d.Entities))
	for _, e := range d.Entities {
		if prev, ok := best[e.Type]; ok && prev >= e.Confidence {
			continue
		}
		best[e.Type] = e.Confidence
		fields[e.Type] = e.Text
	}

	return fields
}
