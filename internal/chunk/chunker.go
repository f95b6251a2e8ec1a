// Package chunk splits extracted document text into retrievable chunks.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// Chunker produces overlapping window chunks and, for FAQ-like text, one
// extra chunk per question/answer pair. It is stateless and safe for
// concurrent use.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero option values take defaults.
func New(opts Options) *Chunker {
	return &Chunker{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize canonicalizes line endings and blank lines so that paragraph
// breaks are exactly "\n\n". Chunk offsets refer to the normalized text.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk splits text owned by docID. Identical text and options always yield
// identical chunks.
//
// Window chunks cover every non-whitespace character of the normalized text.
// Each window chunk after the first starts with up to OverlapChars of the
// text preceding it. A document shorter than MinChunkChars yields a single
// short chunk rather than being dropped.
func (c *Chunker) Chunk(docID, text string) ([]*Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, kberrors.ChunkingError("document text is not valid UTF-8", nil).
			WithDetail("document_id", docID)
	}
	norm := Normalize(text)
	if norm == "" {
		return nil, kberrors.ChunkingError("document has no text content", nil).
			WithDetail("document_id", docID)
	}

	runes := []rune(norm)
	spans := c.windows(runes)

	chunks := make([]*Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, &Chunk{
			ID:         chunkID(docID, KindWindow, i, s.start),
			DocumentID: docID,
			Ordinal:    i,
			Kind:       KindWindow,
			Text:       string(runes[s.start:s.end]),
			Start:      s.start,
			End:        s.end,
		})
	}

	if c.opts.DisableFAQ {
		return chunks, nil
	}

	ordinal := len(chunks)
	for _, p := range ExtractFAQ(norm) {
		if len(strings.Fields(p.Question))+len(strings.Fields(p.Answer)) <= c.opts.FAQMinWords {
			continue
		}
		body := c.faqText(p)
		if utf8.RuneCountInString(body) < c.opts.MinChunkChars {
			continue
		}
		chunks = append(chunks, &Chunk{
			ID:         chunkID(docID, KindFAQ, ordinal, p.Start),
			DocumentID: docID,
			Ordinal:    ordinal,
			Kind:       KindFAQ,
			Text:       body,
			Start:      p.Start,
			End:        p.End,
			Question:   p.Question,
			Answer:     p.Answer,
		})
		ordinal++
	}
	return chunks, nil
}

// faqText renders a pair, cutting the answer so the result fits MaxChunkChars.
func (c *Chunker) faqText(p QAPair) string {
	text := p.Question + "\n" + p.Answer
	r := []rune(text)
	if len(r) <= c.opts.MaxChunkChars {
		return text
	}
	head, _ := cutAt(r, span{0, len(r)}, c.opts.MaxChunkChars)
	return string(r[head.start:head.end])
}

type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// windows packs units greedily into spans of at most MaxChunkChars.
func (c *Chunker) windows(r []rune) []span {
	maxLen, minLen, overlap := c.opts.MaxChunkChars, c.opts.MinChunkChars, c.opts.OverlapChars
	queue := units(r, maxLen-overlap)

	var out []span
	var cur span
	open := false

	begin := func(u span) {
		s := u.start
		if len(out) > 0 {
			s = max(out[len(out)-1].start, u.start-overlap)
			for s < u.start && unicode.IsSpace(r[s]) {
				s++
			}
		}
		cur = span{s, u.end}
		open = true
	}

	for i := 0; i < len(queue); i++ {
		u := queue[i]
		if !open {
			begin(u)
			continue
		}
		if u.end-cur.start <= maxLen {
			cur.end = u.end
			continue
		}
		// A chunk that would close under the minimum borrows the head of
		// the next unit instead.
		if cur.len() < minLen {
			if room := maxLen - (u.start - cur.start); room > 0 {
				head, tail := cutAt(r, u, room)
				cur.end = head.end
				out = append(out, cur)
				open = false
				if tail.len() > 0 {
					queue[i] = tail
					i--
				}
				continue
			}
		}
		out = append(out, cur)
		open = false
		i--
	}

	if open {
		if cur.len() < minLen && len(out) > 0 {
			prev := out[len(out)-1]
			s := max(prev.start, cur.end-minLen)
			for s > prev.start && unicode.IsSpace(r[s]) {
				s--
			}
			if cur.end-s > maxLen {
				s = cur.end - maxLen
			}
			cur.start = min(cur.start, s)
		}
		out = append(out, cur)
	}
	return out
}

// units splits r into paragraphs, then sentences, then hard cuts, so that no
// unit exceeds limit.
func units(r []rune, limit int) []span {
	if limit < 1 {
		limit = 1
	}
	var out []span
	for _, p := range paragraphs(r) {
		if p.len() <= limit {
			out = append(out, p)
			continue
		}
		for _, s := range sentences(r, p) {
			if s.len() <= limit {
				out = append(out, s)
				continue
			}
			out = append(out, hardCut(r, s, limit)...)
		}
	}
	return out
}

func paragraphs(r []rune) []span {
	var out []span
	start := 0
	for i := 0; i+1 < len(r); i++ {
		if r[i] == '\n' && r[i+1] == '\n' {
			if i > start {
				out = append(out, span{start, i})
			}
			start = i + 2
			i++
		}
	}
	if start < len(r) {
		out = append(out, span{start, len(r)})
	}
	return out
}

func isTerminal(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

func isCloser(c rune) bool {
	return c == '"' || c == '\'' || c == ')' || c == ']' || c == '”' || c == '’'
}

// sentences splits a paragraph after terminal punctuation followed by
// whitespace, and at single line breaks.
func sentences(r []rune, p span) []span {
	var out []span
	start := p.start
	i := p.start
	for i < p.end {
		boundary := -1
		switch {
		case r[i] == '\n':
			boundary = i
		case isTerminal(r[i]):
			j := i + 1
			for j < p.end && (isTerminal(r[j]) || isCloser(r[j])) {
				j++
			}
			if j < p.end && unicode.IsSpace(r[j]) {
				boundary = j
			} else {
				i = j
				continue
			}
		}
		if boundary < 0 {
			i++
			continue
		}
		if boundary > start {
			out = append(out, span{start, boundary})
		}
		k := boundary
		for k < p.end && unicode.IsSpace(r[k]) {
			k++
		}
		start, i = k, k
	}
	if start < p.end {
		out = append(out, span{start, p.end})
	}
	return out
}

func hardCut(r []rune, s span, limit int) []span {
	var out []span
	for s.len() > limit {
		head, tail := cutAt(r, s, limit)
		out = append(out, head)
		s = tail
	}
	if s.len() > 0 {
		out = append(out, s)
	}
	return out
}

// cutAt splits s so the head holds at most limit runes, preferring the last
// whitespace in the back half of the window.
func cutAt(r []rune, s span, limit int) (head, tail span) {
	if s.len() <= limit {
		return s, span{s.end, s.end}
	}
	cut := s.start + limit
	for k := cut; k > s.start+limit/2; k-- {
		if unicode.IsSpace(r[k]) {
			cut = k
			break
		}
	}
	end := cut
	for end > s.start && unicode.IsSpace(r[end-1]) {
		end--
	}
	if end == s.start {
		end = s.start + limit
		cut = end
	}
	next := cut
	for next < s.end && unicode.IsSpace(r[next]) {
		next++
	}
	return span{s.start, end}, span{next, s.end}
}
