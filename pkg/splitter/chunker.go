// Package splitter splits long text into overlapping, boundary-aware chunks
// sized to fit an embedding model's input limit.
package splitter

import "strings"

// CharsPerToken is the conservative characters-per-token estimate used to
// convert token budgets into character windows. Conservative on purpose:
// overestimating token counts keeps chunks under the embedding limit.
const CharsPerToken = 2

// Bounded lookback windows for boundary search, in characters.
const (
	paragraphLookback = 500
	sentenceLookback  = 300
	wordLookback      = 100
)

// Chunker holds a chunking policy.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a chunker. Overlap is clamped below the chunk size so
// every window makes forward progress.
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens < 1 {
		maxTokens = 1
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 2
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// ChunkText splits text using the chunker's policy.
func (c *Chunker) ChunkText(text string) []string {
	return ChunkText(text, c.maxTokens, c.overlapTokens)
}

// ChunkText splits text into chunks of at most maxTokens (estimated via
// CharsPerToken), with overlapTokens of re-included context between
// consecutive chunks. Break points prefer paragraph breaks over sentence
// ends over plain whitespace, searched within bounded lookback windows.
// Deterministic; empty or whitespace-only input yields no chunks.
func ChunkText(text string, maxTokens, overlapTokens int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	maxChars := maxTokens * CharsPerToken
	if maxChars < 1 {
		maxChars = 1
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	overlapChars := overlapTokens * CharsPerToken
	if overlapChars >= maxChars {
		overlapChars = maxChars / 2
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		end = findBreak(text, start, end)
		chunks = append(chunks, text[start:end])

		next := end - overlapChars
		if next < 0 {
			next = 0
		}
		next = snapToWordStart(text, next)
		if next <= start {
			// No usable boundary behind the overlap point; give up the
			// overlap for this pair rather than stalling.
			next = end
		}
		start = next
	}

	return chunks
}

// findBreak picks the best break position in (start, limit], preferring
// paragraph > sentence > word boundary > hard cut.
func findBreak(text string, start, limit int) int {
	if pos := paragraphBreak(text, start, limit); pos > start {
		return pos
	}
	if pos := sentenceBreak(text, start, limit); pos > start {
		return pos
	}
	if pos := wordBreak(text, start, limit); pos > start {
		return pos
	}
	return limit
}

func paragraphBreak(text string, start, limit int) int {
	from := limit - paragraphLookback
	if from < start {
		from = start
	}
	idx := strings.LastIndex(text[from:limit], "\n\n")
	if idx < 0 {
		return -1
	}
	// Keep the blank line with the earlier chunk.
	return from + idx + 2
}

func sentenceBreak(text string, start, limit int) int {
	from := limit - sentenceLookback
	if from < start {
		from = start
	}
	for i := limit - 1; i > from; i-- {
		c := text[i-1]
		if (c == '.' || c == '!' || c == '?') && isSpace(text[i]) {
			return i
		}
	}
	return -1
}

func wordBreak(text string, start, limit int) int {
	from := limit - wordLookback
	if from < start {
		from = start
	}
	for i := limit - 1; i > from; i-- {
		if isSpace(text[i]) {
			return i
		}
	}
	return -1
}

// snapToWordStart moves pos back to the start of the word it lands in, so
// the next chunk never begins mid-word and overlap is never shortened.
func snapToWordStart(text string, pos int) int {
	for pos > 0 && !isSpace(text[pos-1]) {
		pos--
	}
	return pos
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
