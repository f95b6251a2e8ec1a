package chunk

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// Format is a supported document format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
)

// DetectFormat picks a format from the file extension. Unknown extensions
// are treated as plain text.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return FormatMarkdown
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	default:
		return FormatText
	}
}

// SupportedExtensions lists the extensions ingestion picks up from directories.
func SupportedExtensions() []string {
	return []string{".txt", ".text", ".md", ".markdown", ".mdx", ".json", ".csv"}
}

// ExtractText converts raw file content into plain text for chunking.
// Unreadable content fails with a chunking error.
func ExtractText(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", kberrors.ChunkingError("document is not valid UTF-8 text", nil).WithDetail("name", name)
	}

	switch DetectFormat(name) {
	case FormatMarkdown:
		return markdownText(data), nil
	case FormatJSON:
		s, err := jsonText(data)
		if err != nil {
			return "", kberrors.ChunkingError("document is not valid JSON", err).WithDetail("name", name)
		}
		return s, nil
	case FormatCSV:
		s, err := csvText(data)
		if err != nil {
			return "", kberrors.ChunkingError("document is not valid CSV", err).WithDetail("name", name)
		}
		return s, nil
	default:
		return string(data), nil
	}
}

var md = goldmark.New()

// markdownText renders markdown as plain text, one block per paragraph.
// A paragraph led by a bold question ("**How do I...?** answer") puts the
// question on its own line so FAQ detection sees it.
func markdownText(source []byte) string {
	doc := md.Parser().Parse(text.NewReader(source))

	var blocks []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Paragraph:
			blocks = append(blocks, paragraphText(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.Heading, *ast.TextBlock:
			var b strings.Builder
			inlineText(node.FirstChild(), source, &b)
			blocks = append(blocks, b.String())
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			var b strings.Builder
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			blocks = append(blocks, b.String())
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return strings.Join(out, "\n\n")
}

func paragraphText(p *ast.Paragraph, source []byte) string {
	var b strings.Builder
	first := p.FirstChild()
	if em, ok := first.(*ast.Emphasis); ok && em.Level == 2 {
		var q strings.Builder
		inlineText(em.FirstChild(), source, &q)
		if question := strings.TrimSpace(q.String()); strings.HasSuffix(question, "?") {
			var rest strings.Builder
			inlineText(em.NextSibling(), source, &rest)
			b.WriteString(question)
			b.WriteByte('\n')
			b.WriteString(strings.TrimLeft(rest.String(), " \t"))
			return b.String()
		}
	}
	inlineText(first, source, &b)
	return b.String()
}

// inlineText writes the text of n and its following siblings.
func inlineText(n ast.Node, source []byte, b *strings.Builder) {
	for ; n != nil; n = n.NextSibling() {
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(source))
		case *ast.RawHTML:
		default:
			inlineText(n.FirstChild(), source, b)
		}
	}
}

// jsonText flattens JSON into "path: value" lines in key order.
func jsonText(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	var lines []string
	flattenJSON("", v, &lines)
	return strings.Join(lines, "\n"), nil
}

func flattenJSON(path string, v any, lines *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			next := k
			if path != "" {
				next = path + "." + k
			}
			flattenJSON(next, t[k], lines)
		}
	case []any:
		for i, e := range t {
			flattenJSON(fmt.Sprintf("%s[%d]", path, i), e, lines)
		}
	case nil:
	default:
		if path == "" {
			*lines = append(*lines, fmt.Sprint(t))
			return
		}
		*lines = append(*lines, fmt.Sprintf("%s: %v", path, t))
	}
}

func csvText(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, strings.Join(rec, ", "))
	}
	return strings.Join(lines, "\n"), nil
}
