package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatMarkdown, DetectFormat("guide.MD"))
	assert.Equal(t, FormatJSON, DetectFormat("faq.json"))
	assert.Equal(t, FormatCSV, DetectFormat("prices.csv"))
	assert.Equal(t, FormatText, DetectFormat("notes.txt"))
	assert.Equal(t, FormatText, DetectFormat("README"))
}

func TestExtractText_MarkdownStripsFormatting(t *testing.T) {
	src := "# Support\n\nOur **support** hours are _9am-5pm_.\nCall [us](https://example.com) anytime.\n\n- first item\n- second item\n\n```\ncode line\n```\n"

	got, err := ExtractText("support.md", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "Support\n\nOur support hours are 9am-5pm.\nCall us anytime.\n\nfirst item\n\nsecond item\n\ncode line", got)
}

func TestExtractText_MarkdownBoldQuestionGetsOwnLine(t *testing.T) {
	src := "**What are your hours?** We are open from nine to five.\n"

	got, err := ExtractText("faq.md", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "What are your hours?\nWe are open from nine to five.", got)
}

func TestExtractText_JSONFlattensSorted(t *testing.T) {
	src := `{"service": {"name": "Consulting", "price": 1500000}, "tags": ["a", "b"], "active": true, "note": null}`

	got, err := ExtractText("svc.json", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, "active: true\nservice.name: Consulting\nservice.price: 1500000\ntags[0]: a\ntags[1]: b", got)
}

func TestExtractText_CSV(t *testing.T) {
	got, err := ExtractText("p.csv", []byte("plan,price\nbasic,10\npro,20,extra\n"))
	require.NoError(t, err)
	assert.Equal(t, "plan, price\nbasic, 10\npro, 20, extra", got)
}

func TestExtractText_Errors(t *testing.T) {
	_, err := ExtractText("bad.json", []byte("{not json"))
	assert.True(t, kberrors.IsChunking(err))

	_, err = ExtractText("bin.txt", []byte{0xff, 0x00, 0xfe})
	assert.True(t, kberrors.IsChunking(err))
}

func TestExtractText_PlainTextPassesThrough(t *testing.T) {
	got, err := ExtractText("a.txt", []byte("hello\n\nworld"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n\nworld", got)
}
