package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Defaults in characters (runes).
const (
	DefaultMaxChunkChars = 1500
	DefaultMinChunkChars = 40
	DefaultOverlapChars  = 200
	DefaultFAQMinWords   = 10
)

// Kind distinguishes sliding-window chunks from extracted Q&A pairs.
type Kind string

const (
	KindWindow Kind = "window"
	KindFAQ    Kind = "faq"
)

// Chunk is the atomic retrievable unit. Start and End are rune offsets into
// the normalized document text; Text is exactly that span for window chunks.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Kind       Kind
	Text       string
	Start      int
	End        int
	Question   string // FAQ chunks only
	Answer     string // FAQ chunks only
	// Context situates the chunk in its document. It is indexed and
	// embedded with Text but never shown to readers.
	Context   string
	Embedding []float32
}

// IndexText is the text the lexical and vector indexes see.
func (c *Chunk) IndexText() string {
	if c.Context == "" {
		return c.Text
	}
	return c.Context + "\n\n" + c.Text
}

// Len returns the chunk length in characters.
func (c *Chunk) Len() int {
	return len([]rune(c.Text))
}

// Options configures a Chunker. Zero values take defaults.
type Options struct {
	MaxChunkChars int
	MinChunkChars int
	OverlapChars  int
	FAQMinWords   int
	// DisableFAQ turns off Q&A pair extraction.
	DisableFAQ bool
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxChunkChars: DefaultMaxChunkChars,
		MinChunkChars: DefaultMinChunkChars,
		OverlapChars:  DefaultOverlapChars,
		FAQMinWords:   DefaultFAQMinWords,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = DefaultMaxChunkChars
	}
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = DefaultMinChunkChars
	}
	if o.MinChunkChars > o.MaxChunkChars {
		o.MinChunkChars = o.MaxChunkChars
	}
	if o.OverlapChars < 0 {
		o.OverlapChars = 0
	}
	// At least half of every chunk must be new text.
	if o.OverlapChars > o.MaxChunkChars/2 {
		o.OverlapChars = o.MaxChunkChars / 2
	}
	if o.FAQMinWords < 0 {
		o.FAQMinWords = 0
	}
	return o
}

// chunkID derives a stable 16-hex-char ID from the owning document and the
// chunk's position.
func chunkID(docID string, kind Kind, ordinal, start int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%d", docID, kind, ordinal, start)))
	return hex.EncodeToString(sum[:])[:16]
}
