// Package chunker splits audit transcripts and interview text into
// overlapping windows sized for embedding and full-text indexing.
package chunker

import "strings"

// Chunk is one produced window of text.
type Chunk struct {
	Index int
	Text  string
}

// Options controls chunk sizing. MaxTokens and Overlap are expressed in
// tokens; both are converted to an approximate character budget.
type Options struct {
	Strategy string // fixed, markdown; defaults to fixed
	MaxTokens int
	Overlap   int
}

// Chunker splits text into chunks under a chosen strategy.
type Chunker interface {
	Chunk(text string, opt Options) ([]Chunk, error)
}

// SimpleChunker implements the fixed-window and markdown-aware strategies.
type SimpleChunker struct{}

func (SimpleChunker) Chunk(text string, opt Options) ([]Chunk, error) {
	switch strings.ToLower(opt.Strategy) {
	case "markdown", "md":
		return markdownChunk(text, opt), nil
	default:
		return fixedChunk(text, opt), nil
	}
}

func targetLen(opt Options) int {
	n := opt.MaxTokens
	if n <= 0 {
		n = 1000
	}
	return n * 4 // rough 4 chars per token heuristic
}

// fixedChunk makes contiguous chunks of target size with optional overlap,
// preferring to cut at whitespace boundaries to avoid mid-word splits.
func fixedChunk(text string, opt Options) []Chunk {
	tgt := targetLen(opt)
	if tgt < 32 {
		tgt = 32
	}
	ov := opt.Overlap
	if ov < 0 {
		ov = 0
	}
	ovChars := ov * 4
	var out []Chunk
	start := 0
	idx := 0
	for start < len(text) {
		end := start + tgt
		if end > len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > tgt/2 {
			end = start + i
		}
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			out = append(out, Chunk{Index: idx, Text: chunk})
			idx++
		}
		if end == len(text) {
			break
		}
		next := end - ovChars
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// markdownChunk prefers splitting on headings and paragraph breaks.
func markdownChunk(text string, opt Options) []Chunk {
	tgt := targetLen(opt)
	lines := strings.Split(text, "\n")
	var out []Chunk
	var buf strings.Builder
	idx := 0
	writeFlush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			out = append(out, Chunk{Index: idx, Text: s})
			idx++
			buf.Reset()
		}
	}
	for i, ln := range lines {
		isHeading := strings.HasPrefix(ln, "#")
		isParaBreak := strings.TrimSpace(ln) == "" && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != ""
		if isHeading && buf.Len() > 0 {
			writeFlush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(ln)
		if (isHeading || isParaBreak) && buf.Len() >= tgt {
			writeFlush()
		}
	}
	writeFlush()
	return out
}
