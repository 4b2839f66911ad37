package knowledge

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Chunking defaults, tuned for prose whose sentences sit well under the
// chunk size. Sizes and the overlap are byte lengths.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 100
)

// ProcessorConfig bounds the chunking algorithm. Zero values select the
// package defaults.
type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// Processor splits documents into overlapping, sentence-aligned chunks.
// Sentences are never split mid-sentence: a sentence longer than the chunk
// size becomes its own oversized chunk.
//
// Processor is stateless and safe for concurrent use.
type Processor struct {
	cfg    ProcessorConfig
	logger *slog.Logger
}

// NewProcessor validates the configuration and creates a Processor.
func NewProcessor(cfg ProcessorConfig, logger *slog.Logger) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.MinChunkSize == 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}

	if cfg.ChunkSize < 0 || cfg.ChunkOverlap < 0 || cfg.MinChunkSize < 0 {
		return nil, fmt.Errorf("chunking sizes must not be negative: %+v", cfg)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.MinChunkSize > cfg.ChunkSize {
		return nil, fmt.Errorf("min chunk size %d must not exceed chunk size %d",
			cfg.MinChunkSize, cfg.ChunkSize)
	}
	return &Processor{cfg: cfg, logger: logger}, nil
}

// Process splits the document into chunks with deterministic IDs
// ({documentID}_chunk_{index}), so reprocessing identical input upserts in
// place. Each chunk carries the document metadata plus document_id,
// chunk_index and chunk_id. Content that is empty after normalization yields
// zero chunks and nil error.
func (p *Processor) Process(doc Document) ([]Chunk, error) {
	if doc.ID == "" {
		return nil, ErrEmptyDocumentID
	}

	text := normalizeText(doc.Content)
	if text == "" {
		p.logger.Debug("document empty after normalization", "document_id", doc.ID)
		return nil, nil
	}

	pieces := p.assemble(splitSentences(text))

	chunks := make([]Chunk, len(pieces))
	for i, content := range pieces {
		id := fmt.Sprintf("%s_chunk_%d", doc.ID, i)
		chunks[i] = Chunk{
			ID:         id,
			DocumentID: doc.ID,
			Index:      i,
			Content:    content,
			Metadata:   chunkMetadata(doc.Metadata, doc.ID, i, id),
		}
	}

	p.logger.Debug("document chunked",
		"document_id", doc.ID,
		"content_length", len(doc.Content),
		"chunks", len(chunks))
	return chunks, nil
}

// normalizeText strips literal escape sequences (backslash-n as two
// characters, not a newline) and collapses every whitespace run to a single
// space.
func normalizeText(content string) string {
	content = escapeReplacer.Replace(content)
	return strings.Join(strings.Fields(content), " ")
}

var escapeReplacer = strings.NewReplacer(`\n`, " ", `\t`, " ", `\r`, " ")

// splitSentences cuts at terminal punctuation. Each sentence is the maximal
// run up to and including its terminator run ("?!" stays together); trailing
// unterminated text becomes the final sentence. Terminators are ASCII, so
// byte scanning is UTF-8 safe.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		if !isTerminator(text[i]) {
			i++
			continue
		}
		for i < len(text) && isTerminator(text[i]) {
			i++
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			sentences = append(sentences, s)
		}
		start = i
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

// assemble greedily accumulates sentences into chunks. A chunk closes when
// the next sentence would push it past ChunkSize and it already meets
// MinChunkSize; the next buffer is seeded with the closed chunk's overlap
// tail. The final buffer is emitted when it meets MinChunkSize, or
// unconditionally when it would otherwise be the document's only chunk.
func (p *Processor) assemble(sentences []string) []string {
	var chunks []string
	var buf []string
	bufLen := 0

	for _, s := range sentences {
		candidate := bufLen + len(s)
		if bufLen > 0 {
			candidate++
		}

		if bufLen > 0 && candidate > p.cfg.ChunkSize && bufLen >= p.cfg.MinChunkSize {
			chunks = append(chunks, strings.Join(buf, " "))
			buf, bufLen = p.overlapSeed(buf, chunks[len(chunks)-1], len(s))
		}

		buf = append(buf, s)
		if bufLen > 0 {
			bufLen++
		}
		bufLen += len(s)
	}

	if bufLen > 0 && (bufLen >= p.cfg.MinChunkSize || len(chunks) == 0) {
		chunks = append(chunks, strings.Join(buf, " "))
	}
	return chunks
}

// overlapSeed returns the buffer seed for the chunk following the one just
// closed: the longest whole-sentence suffix within the overlap budget,
// falling back to the raw trailing bytes when even the last sentence is too
// long. The seed shrinks further when it would not leave room for the next
// sentence within the chunk size, keeping the size invariant for everything
// but oversized sentences.
func (p *Processor) overlapSeed(closed []string, content string, nextLen int) ([]string, int) {
	budget := p.cfg.ChunkOverlap
	if budget <= 0 {
		return nil, 0
	}
	room := p.cfg.ChunkSize - nextLen - 1

	total := 0
	i := len(closed)
	for i > 0 {
		add := len(closed[i-1])
		if total > 0 {
			add++
		}
		if total+add > budget {
			break
		}
		total += add
		i--
	}

	if i == len(closed) {
		// The last sentence alone exceeds the budget.
		seed := tailBytes(content, min(budget, room))
		if seed == "" {
			return nil, 0
		}
		return []string{seed}, len(seed)
	}

	seed := closed[i:]
	for len(seed) > 0 && total > room {
		total -= len(seed[0])
		if len(seed) > 1 {
			total--
		}
		seed = seed[1:]
	}
	if len(seed) == 0 {
		return nil, 0
	}
	out := make([]string, len(seed))
	copy(out, seed)
	return out, total
}

// tailBytes returns the last n bytes of s, moved forward to the next rune
// boundary so multi-byte characters are never split.
func tailBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

// chunkMetadata copies the document metadata and adds the chunk identity
// fields. The caller's map is never mutated.
func chunkMetadata(docMeta map[string]string, docID string, index int, chunkID string) map[string]string {
	meta := make(map[string]string, len(docMeta)+3)
	for k, v := range docMeta {
		meta[k] = v
	}
	meta["document_id"] = docID
	meta["chunk_index"] = strconv.Itoa(index)
	meta["chunk_id"] = chunkID
	return meta
}
