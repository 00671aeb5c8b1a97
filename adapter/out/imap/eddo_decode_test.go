package imap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeQuotedPrintableUTF8(t *testing.T) {
	// Multi-byte sequences must be reassembled at the byte level before
	// UTF-8 decoding.
	assert.Equal(t, "café", decodeQuotedPrintable("caf=C3=A9"))
	assert.Equal(t, "→", decodeQuotedPrintable("=E2=86=92"))
}

func TestDecodeQuotedPrintableSoftBreaks(t *testing.T) {
	assert.Equal(t, "one line", decodeQuotedPrintable("one =\r\nline"))
	assert.Equal(t, "one line", decodeQuotedPrintable("one =\nline"))
}

func TestDecodeQuotedPrintableLatin1Fallback(t *testing.T) {
	// =E9 alone is not valid UTF-8; ISO-8859-1 maps it to é.
	assert.Equal(t, "café", decodeQuotedPrintable("caf=E9"))
}

func TestDecodeQuotedPrintablePassthrough(t *testing.T) {
	assert.Equal(t, "plain text, nothing encoded", decodeQuotedPrintable("plain text, nothing encoded"))
	// An = not followed by two hex digits stays literal.
	assert.Equal(t, "a=zb", decodeQuotedPrintable("a=zb"))
}

func TestExtractPartPlain(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/alternative; boundary=xyz",
		"",
		"--xyz",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"hello body",
		"--xyz--",
	}, "\r\n")
	assert.Equal(t, "hello body", extractPart(raw, "text/plain"))
}

func TestExtractPartQuotedPrintable(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"caf=C3=A9",
	}, "\r\n")
	assert.Equal(t, "café", extractPart(raw, "text/plain"))
}

func TestExtractPartMissing(t *testing.T) {
	assert.Equal(t, "", extractPart("Subject: no body here", "text/html"))
}

func TestParseBodyPrefersSubstantialHTML(t *testing.T) {
	long := strings.Repeat("substantial content here. ", 10)
	raw := strings.Join([]string{
		"Content-Type: multipart/alternative; boundary=b",
		"",
		"--b",
		"Content-Type: text/plain",
		"",
		"plain version",
		"--b",
		"Content-Type: text/html",
		"",
		"<p>" + long + "</p>",
		"--b--",
	}, "\r\n")
	body := parseBody(raw)
	assert.Contains(t, body, "substantial content here.")
}

func TestParseBodyFallsBackToPlainOnThinHTML(t *testing.T) {
	raw := strings.Join([]string{
		"Content-Type: multipart/alternative; boundary=b",
		"",
		"--b",
		"Content-Type: text/plain",
		"",
		"the plain text version of the message",
		"--b",
		"Content-Type: text/html",
		"",
		"<p>hi</p>",
		"--b--",
	}, "\r\n")
	assert.Equal(t, "the plain text version of the message", parseBody(raw))
}
