package knowledge

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/lorebase/lorebase/internal/log"
)

func newTestProcessor(t *testing.T, cfg ProcessorConfig) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg, log.NewNop())
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

// shortSentences builds n sentences of exactly 50 bytes each, terminator
// included.
func shortSentences(n int) []string {
	pad := strings.Repeat("x", 37)
	sentences := make([]string, n)
	for i := range n {
		sentences[i] = fmt.Sprintf("Sentence %02d %s.", i+1, pad)
	}
	return sentences
}

// overlapPrefixLen returns the length of the longest suffix of prev (capped
// at maxLen) that next starts with.
func overlapPrefixLen(prev, next string, maxLen int) int {
	limit := min(maxLen, min(len(prev), len(next)))
	for n := limit; n > 0; n-- {
		if prev[len(prev)-n:] == next[:n] {
			return n
		}
	}
	return 0
}

func TestNewProcessorValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ProcessorConfig
		wantErr bool
	}{
		{name: "zero values select defaults", cfg: ProcessorConfig{}},
		{name: "explicit valid", cfg: ProcessorConfig{ChunkSize: 500, ChunkOverlap: 50, MinChunkSize: 20}},
		{name: "overlap equals chunk size", cfg: ProcessorConfig{ChunkSize: 100, ChunkOverlap: 100, MinChunkSize: 10}, wantErr: true},
		{name: "overlap exceeds chunk size", cfg: ProcessorConfig{ChunkSize: 100, ChunkOverlap: 150, MinChunkSize: 10}, wantErr: true},
		{name: "min exceeds chunk size", cfg: ProcessorConfig{ChunkSize: 100, ChunkOverlap: 10, MinChunkSize: 200}, wantErr: true},
		{name: "negative size", cfg: ProcessorConfig{ChunkSize: -1, ChunkOverlap: 10, MinChunkSize: 10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProcessor(tt.cfg, log.NewNop())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProcessor: %v", err)
			}
			if p.cfg.ChunkSize <= 0 || p.cfg.MinChunkSize <= 0 {
				t.Errorf("defaults not applied: %+v", p.cfg)
			}
		})
	}
}

func TestProcessEmptyDocumentID(t *testing.T) {
	p := newTestProcessor(t, ProcessorConfig{})
	if _, err := p.Process(Document{Content: "some text"}); err != ErrEmptyDocumentID {
		t.Errorf("error = %v, want ErrEmptyDocumentID", err)
	}
}

func TestProcessEmptyContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "whitespace only", content: "  \n\t  "},
		{name: "literal escapes only", content: `\n\t\r`},
	}

	p := newTestProcessor(t, ProcessorConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := p.Process(Document{ID: "d1", Content: tt.content})
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if len(chunks) != 0 {
				t.Errorf("got %d chunks, want 0", len(chunks))
			}
		})
	}
}

func TestProcessShortDocumentYieldsSingleChunk(t *testing.T) {
	p := newTestProcessor(t, ProcessorConfig{})
	chunks, err := p.Process(Document{ID: "d1", Content: "content about cats"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (short documents still produce a chunk)", len(chunks))
	}
	c := chunks[0]
	if c.ID != "d1_chunk_0" {
		t.Errorf("chunk ID = %q, want d1_chunk_0", c.ID)
	}
	if c.Content != "content about cats" {
		t.Errorf("content = %q, want original text", c.Content)
	}
	if c.DocumentID != "d1" || c.Index != 0 {
		t.Errorf("identity = (%q, %d), want (d1, 0)", c.DocumentID, c.Index)
	}
	if c.Metadata["document_id"] != "d1" || c.Metadata["chunk_index"] != "0" || c.Metadata["chunk_id"] != "d1_chunk_0" {
		t.Errorf("identity metadata missing: %v", c.Metadata)
	}
}

func TestProcessNormalization(t *testing.T) {
	p := newTestProcessor(t, ProcessorConfig{})
	content := `Line one.\nLine two.` + "\n\n  Line   three."

	chunks, err := p.Process(Document{ID: "d1", Content: content})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	want := "Line one. Line two. Line three."
	if chunks[0].Content != want {
		t.Errorf("content = %q, want %q", chunks[0].Content, want)
	}
}

func TestProcessIdempotent(t *testing.T) {
	p := newTestProcessor(t, ProcessorConfig{})
	doc := Document{ID: "d1", Content: strings.Join(shortSentences(49), " ")}

	first, err := p.Process(doc)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	second, err := p.Process(doc)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content {
			t.Errorf("chunk %d differs across runs", i)
		}
	}
}

func TestProcessChunkSizeInvariant(t *testing.T) {
	cfg := ProcessorConfig{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 100}
	p := newTestProcessor(t, cfg)

	chunks, err := p.Process(Document{ID: "d1", Content: strings.Join(shortSentences(49), " ")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for _, c := range chunks {
		if len(c.Content) > cfg.ChunkSize {
			t.Errorf("chunk %s length %d exceeds %d", c.ID, len(c.Content), cfg.ChunkSize)
		}
	}
}

func TestProcessOverlapScenario(t *testing.T) {
	// A ~2500-byte document of short sentences with the default parameters
	// must yield exactly 3 chunks, each later chunk starting with the
	// previous chunk's overlap tail.
	cfg := ProcessorConfig{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 100}
	p := newTestProcessor(t, cfg)

	chunks, err := p.Process(Document{ID: "d1", Content: strings.Join(shortSentences(49), " ")})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		n := overlapPrefixLen(chunks[i-1].Content, chunks[i].Content, cfg.ChunkOverlap)
		if n == 0 {
			t.Errorf("chunk %d does not start with an overlap tail of chunk %d", i, i-1)
		}
	}
	for i, c := range chunks {
		if want := fmt.Sprintf("d1_chunk_%d", i); c.ID != want {
			t.Errorf("chunk ID = %q, want %q", c.ID, want)
		}
	}
}

func TestProcessOversizedSentence(t *testing.T) {
	cfg := ProcessorConfig{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 100}
	p := newTestProcessor(t, cfg)

	big := strings.Repeat("y", 1499) + "."
	head := shortSentences(3)
	tail := []string{"Tail one 12345678901234567890123456789012345678.",
		"Tail two 12345678901234567890123456789012345678.",
		"Tail three 123456789012345678901234567890123456."}
	content := strings.Join(head, " ") + " " + big + " " + strings.Join(tail, " ")

	chunks, err := p.Process(Document{ID: "d1", Content: content})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	var oversized *Chunk
	for i := range chunks {
		if len(chunks[i].Content) > cfg.ChunkSize {
			if oversized != nil {
				t.Fatal("more than one oversized chunk")
			}
			oversized = &chunks[i]
		}
	}
	if oversized == nil {
		t.Fatal("no oversized chunk produced")
	}
	if oversized.Content != big {
		t.Errorf("oversized chunk is not exactly the long sentence (len %d, want %d)",
			len(oversized.Content), len(big))
	}
}

func TestProcessDoesNotMutateCallerMetadata(t *testing.T) {
	p := newTestProcessor(t, ProcessorConfig{})
	meta := map[string]string{"source": "test"}

	chunks, err := p.Process(Document{ID: "d1", Content: "First point. Second point.", Metadata: meta})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !reflect.DeepEqual(meta, map[string]string{"source": "test"}) {
		t.Errorf("caller metadata mutated: %v", meta)
	}
	for _, c := range chunks {
		if c.Metadata["source"] != "test" {
			t.Errorf("chunk %s lost document metadata", c.ID)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple sentences",
			text: "Hello world. How are you? Fine!",
			want: []string{"Hello world.", "How are you?", "Fine!"},
		},
		{
			name: "terminator runs stay attached",
			text: "Wait... what?! Done.",
			want: []string{"Wait...", "what?!", "Done."},
		},
		{
			name: "no terminator",
			text: "no terminator here",
			want: []string{"no terminator here"},
		},
		{
			name: "trailing unterminated text",
			text: "Ends mid. trailing text",
			want: []string{"Ends mid.", "trailing text"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitSentences(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTailBytes(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{name: "shorter than n", s: "abc", n: 10, want: "abc"},
		{name: "exact", s: "abc", n: 3, want: "abc"},
		{name: "truncates", s: "abcdef", n: 2, want: "ef"},
		{name: "zero", s: "abc", n: 0, want: ""},
		{name: "rune boundary", s: "héllo", n: 5, want: "éllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tailBytes(tt.s, tt.n); got != tt.want {
				t.Errorf("tailBytes(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
			}
		})
	}
}
