package chunker

import (
	"strings"
	"testing"
)

func TestFixedChunkOverlap(t *testing.T) {
	text := strings.Repeat("word ", 400) // ~2000 chars
	chunks, err := (SimpleChunker{}).Chunk(text, Options{Strategy: "fixed", MaxTokens: 100, Overlap: 10})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		if c.Text == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestMarkdownChunkSplitsOnHeadings(t *testing.T) {
	text := "# Section A\nsome audit notes\n\n# Section B\nmore notes"
	chunks, err := (SimpleChunker{}).Chunk(text, Options{Strategy: "markdown", MaxTokens: 1})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected heading-based split, got %d chunks", len(chunks))
	}
}
