package ingest

import (
	"strconv"
	"strings"
	"testing"
)

// wordTokenizer treats each whitespace-separated word as one token, which
// keeps window arithmetic easy to assert on.
type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimPrefix(f, "w"))
		if err != nil {
			n = i
		}
		tokens[i] = n
	}
	return tokens
}

func (wordTokenizer) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = "w" + strconv.Itoa(tok)
	}
	return strings.Join(parts, " ")
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + strconv.Itoa(i)
	}
	return strings.Join(parts, " ")
}

func TestNewChunkerRejectsBadWindow(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewChunker(wordTokenizer{}, tc.size, tc.overlap); err == nil {
				t.Errorf("NewChunker(%d, %d) accepted invalid window", tc.size, tc.overlap)
			}
		})
	}
}

func TestChunkWindowsAndOverlap(t *testing.T) {
	c, err := NewChunker(wordTokenizer{}, 10, 3)
	if err != nil {
		t.Fatal(err)
	}

	chunks := c.Chunk("doc", words(25))
	want := [][2]int{{0, 10}, {7, 17}, {14, 24}, {21, 25}}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, ch := range chunks {
		got := [2]int{ch.StartToken, ch.EndToken}
		if got != want[i] {
			t.Errorf("chunk %d span = %v, want %v", i, got, want[i])
		}
	}
}

func TestChunkIdentityAndText(t *testing.T) {
	c, err := NewChunker(wordTokenizer{}, 4, 1)
	if err != nil {
		t.Fatal(err)
	}

	chunks := c.Chunk("ep-42", words(7))
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	if chunks[0].ID != "ep-42::chunk::0" || chunks[1].ID != "ep-42::chunk::1" {
		t.Errorf("ids = %q, %q", chunks[0].ID, chunks[1].ID)
	}
	if chunks[0].Text != "w0 w1 w2 w3" {
		t.Errorf("chunk 0 text = %q", chunks[0].Text)
	}
	if chunks[1].Text != "w3 w4 w5 w6" {
		t.Errorf("chunk 1 text = %q", chunks[1].Text)
	}
	for i, ch := range chunks {
		if ch.DocID != "ep-42" || ch.ChunkIndex != i {
			t.Errorf("chunk %d identity = (%q, %d)", i, ch.DocID, ch.ChunkIndex)
		}
		if ch.Tokens != ch.EndToken-ch.StartToken {
			t.Errorf("chunk %d token count %d does not match span [%d, %d)",
				i, ch.Tokens, ch.StartToken, ch.EndToken)
		}
	}
}

func TestChunkShortAndEmptyInputs(t *testing.T) {
	c, err := NewChunker(wordTokenizer{}, 10, 3)
	if err != nil {
		t.Fatal(err)
	}

	if got := c.Chunk("doc", ""); got != nil {
		t.Errorf("empty text produced %d chunks", len(got))
	}

	chunks := c.Chunk("doc", words(5))
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].StartToken != 0 || chunks[0].EndToken != 5 {
		t.Errorf("span = [%d, %d), want [0, 5)", chunks[0].StartToken, chunks[0].EndToken)
	}
}
