package splitter

import (
	"fmt"
	"strings"
	"testing"
)

func TestChunkTextShortInputReturnedWhole(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"single word", "hello"},
		{"exactly at limit", strings.Repeat("a", 100*CharsPerToken)},
		{"sentence", "The quick brown fox jumps over the lazy dog."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkText(tt.text, 100, 10)
			if len(chunks) != 1 {
				t.Fatalf("ChunkText() returned %d chunks, want 1", len(chunks))
			}
			if chunks[0] != tt.text {
				t.Errorf("ChunkText()[0] = %q, want the input unchanged", chunks[0])
			}
		})
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		if chunks := ChunkText(text, 100, 10); len(chunks) != 0 {
			t.Errorf("ChunkText(%q) = %d chunks, want 0", text, len(chunks))
		}
	}
}

func TestChunkTextSizeAndOverlap(t *testing.T) {
	// >10,000 characters of distinct words, maxTokens=3000 overlap=100 at
	// 2 chars/token: windows of 6000 chars with 200 chars of re-included
	// context. Distinct words so chunk offsets are unambiguous.
	var b strings.Builder
	for i := 0; b.Len() < 10500; i++ {
		fmt.Fprintf(&b, "word%04d ", i)
	}
	text := strings.TrimSpace(b.String())

	chunks := ChunkText(text, 3000, 100)
	if len(chunks) < 2 {
		t.Fatalf("ChunkText() returned %d chunks, want several", len(chunks))
	}

	for i, c := range chunks {
		if len(c) > 3000*CharsPerToken {
			t.Errorf("chunk %d has %d chars, want <= %d", i, len(c), 3000*CharsPerToken)
		}
	}

	// Each chunk after the first starts no later than the previous chunk's
	// end minus the overlap, and the overlapping region matches.
	offset := 0
	for i := 1; i < len(chunks); i++ {
		end := offset + len(chunks[i-1])
		next := strings.Index(text[offset:], chunks[i]) + offset
		if next > end-100*CharsPerToken {
			t.Errorf("chunk %d starts at %d, want <= %d (end %d - overlap)", i, next, end-100*CharsPerToken, end)
		}
		if !strings.HasPrefix(text[next:], chunks[i]) {
			t.Errorf("chunk %d is not a substring of the input at its offset", i)
		}
		offset = next
	}
}

func TestChunkTextPrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("word ", 30) // 150 chars
	text := strings.TrimSpace(strings.Repeat(para+"\n\n", 20))

	chunks := ChunkText(text, 100, 10) // 200-char windows
	if len(chunks) < 2 {
		t.Fatalf("ChunkText() returned %d chunks, want several", len(chunks))
	}
	// With a paragraph break inside every lookback window, chunks should end
	// at one.
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c, "\n\n") {
			t.Errorf("chunk %d does not end at a paragraph break: %q", i, c[len(c)-20:])
		}
	}
}

func TestChunkTextNeverStartsMidWord(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta epsilon ", 400))
	chunks := ChunkText(text, 200, 20)

	words := map[string]bool{"alpha": true, "beta": true, "gamma": true, "delta": true, "epsilon": true}
	for i, c := range chunks {
		first := strings.Fields(c)[0]
		if !words[first] {
			t.Errorf("chunk %d starts mid-word with %q", i, first)
		}
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	text := strings.Repeat("some deterministic input text. ", 200)
	a := ChunkText(text, 150, 15)
	b := ChunkText(text, 150, 15)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
