package embedding

import (
	"strings"
	"unicode"

	"paperwing/internal/model"
)

// Chunk is one indexable slice of a document's extracted text
type Chunk struct {
	Index int
	Text  string
	Page  int
}

// Chunker splits extracted text into overlapping chunks, snapping chunk ends
// to sentence or word boundaries and attributing each chunk to the page its
// start offset falls on.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a new chunker
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// pageBoundary marks where a page starts in the flattened text
type pageBoundary struct {
	offset int
	page   int
}

// Chunk splits an extracted document into page-attributed chunks. When the
// document carries per-page structure the page text is flattened in order
// and boundaries recorded; otherwise the cleaned top-level text is used
// with no page attribution.
func (c *Chunker) Chunk(doc *model.ExtractedDocument) []Chunk {
	text, boundaries := flatten(doc)
	if len(text) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0

	for start < len(text) {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}

		// Snap to a sentence boundary, falling back to a word boundary,
		// so chunks do not cut through the middle of a sentence.
		if end < len(text) {
			end = snapEnd(text, start, end, c.chunkSize)
		}

		piece := strings.TrimSpace(text[start:end])
		if len(piece) > 0 {
			chunks = append(chunks, Chunk{
				Index: len(chunks),
				Text:  piece,
				Page:  pageAt(boundaries, start),
			})
		}

		// The chunk reaching the end of the text is the last one. Stepping
		// back for overlap here would only re-emit pieces of its tail.
		if end == len(text) {
			break
		}

		newStart := end - c.chunkOverlap
		if newStart <= start {
			// ensure progress to avoid an infinite loop
			newStart = start + 1
		}
		start = newStart
	}

	return chunks
}

// flatten joins page paragraphs in order, recording page start offsets.
// Each page is cleaned before it is appended so the recorded offsets
// refer to the same text the chunk offsets are measured on.
func flatten(doc *model.ExtractedDocument) (string, []pageBoundary) {
	if len(doc.Pages) == 0 {
		return strings.TrimSpace(cleanText(doc.Text)), nil
	}

	var b strings.Builder
	boundaries := make([]pageBoundary, 0, len(doc.Pages))

	for _, page := range doc.Pages {
		var pageText strings.Builder
		for _, paragraph := range page.Paragraphs {
			pageText.WriteString(paragraph)
			pageText.WriteString("\n")
		}

		cleaned := strings.TrimSpace(cleanText(pageText.String()))
		if cleaned == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		boundaries = append(boundaries, pageBoundary{offset: b.Len(), page: page.PageNumber})
		b.WriteString(cleaned)
	}

	return b.String(), boundaries
}

// pageAt returns the page whose span contains the offset
func pageAt(boundaries []pageBoundary, offset int) int {
	page := 0
	for _, boundary := range boundaries {
		if boundary.offset > offset {
			break
		}
		page = boundary.page
	}
	return page
}

// snapEnd walks back from end looking for a sentence break, then a space,
// never receding past half a chunk
func snapEnd(text string, start, end, chunkSize int) int {
	floor := start + chunkSize/2

	for i := end; i > floor; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}

	for i := end; i > floor; i-- {
		if text[i] == ' ' {
			return i
		}
	}

	return end
}

// cleanText collapses whitespace runs into single spaces, preserving
// newlines as sentence-break hints
func cleanText(text string) string {
	var result strings.Builder
	result.Grow(len(text))

	prevSpace := false
	for _, r := range text {
		if r == '\n' {
			result.WriteRune('\n')
			prevSpace = true
			continue
		}
		if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		result.WriteRune(r)
		prevSpace = false
	}

	return result.String()
}
