package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToTextHeadingsAndEmphasis(t *testing.T) {
	out := htmlToText("<h2>Weekly Report</h2><p>All <strong>systems</strong> are <em>go</em>.</p>")
	assert.Contains(t, out, "## Weekly Report")
	assert.Contains(t, out, "**systems**")
	assert.Contains(t, out, "_go_")
}

func TestHTMLToTextLinks(t *testing.T) {
	out := htmlToText(`<p>See <a href="https://example.com/doc">the doc</a> for details.</p>`)
	assert.Contains(t, out, "[the doc](https://example.com/doc)")
}

func TestHTMLToTextLists(t *testing.T) {
	out := htmlToText("<ul><li>first</li><li>second</li></ul><ol><li>one</li><li>two</li></ol>")
	assert.Contains(t, out, "- first")
	assert.Contains(t, out, "- second")
	assert.Contains(t, out, "1. one")
	assert.Contains(t, out, "2. two")
}

func TestHTMLToTextDropsStyleAndScript(t *testing.T) {
	out := htmlToText("<style>body{color:red}</style><script>alert(1)</script><p>visible</p>")
	assert.NotContains(t, out, "color:red")
	assert.NotContains(t, out, "alert")
	assert.Contains(t, out, "visible")
}

func TestHTMLToTextCollapsesBlankLines(t *testing.T) {
	out := htmlToText("<p>a</p><p></p><p></p><p>b</p>")
	assert.NotContains(t, out, "\n\n\n")
}
