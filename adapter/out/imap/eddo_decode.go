package imap

import (
	"strings"
	"unicode/utf8"
)

// decodeQuotedPrintable decodes quoted-printable text by reassembling the
// full byte stream before character decoding. Soft line breaks are removed,
// =HH sequences become raw bytes, and the buffer is decoded as UTF-8 with an
// ISO-8859-1 fallback. Decoding =HH pairs one character at a time would
// corrupt multi-byte sequences.
func decodeQuotedPrintable(s string) string {
	// Soft line breaks join wrapped lines.
	s = strings.ReplaceAll(s, "=\r\n", "")
	s = strings.ReplaceAll(s, "=\n", "")

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '=' && i+2 < len(s) {
			hi, okHi := hexVal(s[i+1])
			lo, okLo := hexVal(s[i+2])
			if okHi && okLo {
				buf = append(buf, hi<<4|lo)
				i += 2
				continue
			}
		}
		buf = append(buf, c)
	}

	if utf8.Valid(buf) {
		return string(buf)
	}
	return latin1String(buf)
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

func latin1String(buf []byte) string {
	runes := make([]rune, len(buf))
	for i, b := range buf {
		runes[i] = rune(b)
	}
	return string(runes)
}

// extractPart pulls the body of the first MIME part with the given
// content type out of a raw message. Plain substring search keeps the scan
// linear on hostile input. Returns "" when no such part exists.
func extractPart(raw, contentType string) string {
	lower := strings.ToLower(raw)
	marker := "content-type: " + strings.ToLower(contentType)
	idx := strings.Index(lower, marker)
	if idx < 0 {
		// Some senders omit the space after the colon.
		marker = "content-type:" + strings.ToLower(contentType)
		idx = strings.Index(lower, marker)
		if idx < 0 {
			return ""
		}
	}

	rest := raw[idx:]
	// The part body starts after the blank line ending its headers.
	sep := strings.Index(rest, "\r\n\r\n")
	sepLen := 4
	if sep < 0 {
		sep = strings.Index(rest, "\n\n")
		sepLen = 2
	}
	if sep < 0 {
		return ""
	}
	headers := rest[:sep]
	body := rest[sep+sepLen:]

	// Stop at the next MIME boundary.
	if end := strings.Index(body, "\n--"); end >= 0 {
		body = body[:end]
	}

	if strings.Contains(strings.ToLower(headers), "quoted-printable") {
		body = decodeQuotedPrintable(body)
	}
	return strings.TrimSpace(body)
}

// minHTMLLength is the threshold under which a decoded HTML body is
// considered too thin and the plain-text part is preferred.
const minHTMLLength = 100

// parseBody extracts the best body text from a raw message: HTML converted
// to markdown-like text when substantial, plain text otherwise.
func parseBody(raw string) string {
	if html := extractPart(raw, "text/html"); html != "" {
		text := htmlToText(html)
		if len(text) >= minHTMLLength {
			return text
		}
		if plain := extractPart(raw, "text/plain"); plain != "" {
			return plain
		}
		return text
	}
	if plain := extractPart(raw, "text/plain"); plain != "" {
		return plain
	}
	return strings.TrimSpace(raw)
}
