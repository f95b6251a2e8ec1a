package chunk

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

func longDocument() string {
	sentence := "The knowledge base stores policies for every department and team. "
	var paras []string
	for p := 0; p < 12; p++ {
		paras = append(paras, strings.Repeat(sentence, 3+p%4))
	}
	return strings.Join(paras, "\n\n")
}

func windowChunks(chunks []*Chunk) []*Chunk {
	var out []*Chunk
	for _, c := range chunks {
		if c.Kind == KindWindow {
			out = append(out, c)
		}
	}
	return out
}

func TestChunker_Chunk_ShortDocumentIsOneChunk(t *testing.T) {
	c := New(DefaultOptions())

	chunks, err := c.Chunk("doc-1", "Our support hours are 9am-5pm, Monday through Friday.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "Our support hours are 9am-5pm, Monday through Friday.", chunks[0].Text)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, KindWindow, chunks[0].Kind)
	assert.Len(t, chunks[0].ID, 16)
}

func TestChunker_Chunk_EmptyInputFails(t *testing.T) {
	c := New(DefaultOptions())

	for _, text := range []string{"", "   \n\n\t  "} {
		_, err := c.Chunk("doc-1", text)
		require.Error(t, err)
		assert.True(t, kberrors.IsChunking(err))
	}
}

func TestChunker_Chunk_InvalidUTF8Fails(t *testing.T) {
	_, err := New(DefaultOptions()).Chunk("doc-1", string([]byte{0xff, 0xfe, 'a'}))
	assert.True(t, kberrors.IsChunking(err))
}

func TestChunker_Chunk_IsDeterministic(t *testing.T) {
	c := New(Options{MaxChunkChars: 300, MinChunkChars: 40, OverlapChars: 50})
	doc := longDocument()

	first, err := c.Chunk("doc-1", doc)
	require.NoError(t, err)
	second, err := c.Chunk("doc-1", doc)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
		assert.Equal(t, first[i].Start, second[i].Start)
		assert.Equal(t, first[i].End, second[i].End)
	}
}

func TestChunker_Chunk_RespectsLengthBounds(t *testing.T) {
	opts := Options{MaxChunkChars: 300, MinChunkChars: 60, OverlapChars: 50}
	c := New(opts)

	chunks, err := c.Chunk("doc-1", longDocument())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)

	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.Len(), opts.MaxChunkChars, "chunk %d too long", ch.Ordinal)
		assert.GreaterOrEqual(t, ch.Len(), opts.MinChunkChars, "chunk %d too short", ch.Ordinal)
	}
}

func TestChunker_Chunk_OverlapCarriesTrailingContext(t *testing.T) {
	opts := Options{MaxChunkChars: 300, MinChunkChars: 40, OverlapChars: 50}
	chunks, err := New(opts).Chunk("doc-1", longDocument())
	require.NoError(t, err)

	windows := windowChunks(chunks)
	for i := 1; i < len(windows); i++ {
		prev, cur := windows[i-1], windows[i]
		overlap := prev.End - cur.Start
		assert.Greater(t, overlap, 0, "chunk %d should start inside chunk %d", i, i-1)
		assert.LessOrEqual(t, overlap, opts.OverlapChars)
		assert.Greater(t, cur.End, prev.End, "chunk %d must add new text", i)
	}
}

func TestChunker_Chunk_CoversAllContent(t *testing.T) {
	doc := longDocument()
	chunks, err := New(Options{MaxChunkChars: 250, MinChunkChars: 40, OverlapChars: 30}).Chunk("doc-1", doc)
	require.NoError(t, err)

	runes := []rune(Normalize(doc))
	covered := make([]bool, len(runes))
	for _, ch := range windowChunks(chunks) {
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		for i := ch.Start; i < ch.End; i++ {
			covered[i] = true
		}
	}
	for i, r := range runes {
		if !unicode.IsSpace(r) {
			require.True(t, covered[i], "rune %d (%q) not covered", i, r)
		}
	}
}

func TestChunker_Chunk_HardCutsUnbrokenText(t *testing.T) {
	doc := strings.Repeat("x", 1000)
	opts := Options{MaxChunkChars: 200, MinChunkChars: 20, OverlapChars: 20}

	chunks, err := New(opts).Chunk("doc-1", doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 4)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.Len(), 200)
	}
	assert.Equal(t, 1000, chunks[len(chunks)-1].End)
}

func TestChunker_Chunk_PrefersSentenceBoundaries(t *testing.T) {
	para := "First sentence is here. Second sentence follows it. Third one ends the paragraph."
	chunks, err := New(Options{MaxChunkChars: 60, MinChunkChars: 10, OverlapChars: 0, DisableFAQ: true}).Chunk("doc-1", para)
	require.NoError(t, err)

	for _, ch := range chunks {
		assert.True(t, strings.HasSuffix(ch.Text, "."), "chunk %q should end at a sentence", ch.Text)
	}
}

func TestChunker_Chunk_ShortTailBorrowsContext(t *testing.T) {
	doc := strings.Repeat("alpha beta gamma delta. ", 12) + "\n\nEnd."
	opts := Options{MaxChunkChars: 150, MinChunkChars: 40, OverlapChars: 20, DisableFAQ: true}

	chunks, err := New(opts).Chunk("doc-1", doc)
	require.NoError(t, err)

	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(last.Text, "End."))
	assert.GreaterOrEqual(t, last.Len(), opts.MinChunkChars)
}

func TestChunker_Chunk_EmitsFAQChunks(t *testing.T) {
	doc := `Frequently asked questions

**What are your business hours for phone support?**
Our support team answers calls from 9am to 5pm, Monday through Friday.

**How much does a standard consultation cost?**
A standard consultation costs 150 dollars per hour and includes a written summary.`

	chunks, err := New(DefaultOptions()).Chunk("doc-1", doc)
	require.NoError(t, err)

	var faqs []*Chunk
	for _, ch := range chunks {
		if ch.Kind == KindFAQ {
			faqs = append(faqs, ch)
		}
	}
	require.Len(t, faqs, 2)
	assert.Equal(t, "What are your business hours for phone support?", faqs[0].Question)
	assert.Contains(t, faqs[0].Answer, "9am to 5pm")
	assert.True(t, strings.HasPrefix(faqs[1].Text, "How much does a standard consultation cost?\n"))

	// Ordinals continue after window chunks and never repeat
	seen := map[int]bool{}
	for _, ch := range chunks {
		assert.False(t, seen[ch.Ordinal])
		seen[ch.Ordinal] = true
	}
}

func TestChunker_Chunk_DropsTinyFAQPairs(t *testing.T) {
	doc := "Q: Open?\nA: Yes.\n\nQ: Closed?\nA: No."

	chunks, err := New(DefaultOptions()).Chunk("doc-1", doc)
	require.NoError(t, err)
	for _, ch := range chunks {
		assert.Equal(t, KindWindow, ch.Kind)
	}
}

func TestNormalize(t *testing.T) {
	in := "  line one  \r\nline two\r\n\r\n\r\n\r\n   \nnext para\t \n"
	assert.Equal(t, "line one\nline two\n\nnext para", Normalize(in))
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultMaxChunkChars, o.MaxChunkChars)
	assert.Equal(t, DefaultMinChunkChars, o.MinChunkChars)

	o = Options{MaxChunkChars: 100, OverlapChars: 90, MinChunkChars: 500}.withDefaults()
	assert.Equal(t, 50, o.OverlapChars)
	assert.Equal(t, 100, o.MinChunkChars)
}
