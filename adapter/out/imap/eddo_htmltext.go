package imap

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// htmlToText converts an HTML fragment to markdown-like text. Headings become
// ATX headings, emphasis becomes asterisks and underscores, lists become
// bullet or ordered markers, and links are kept as [text](href). Style,
// script and image content is dropped; tables carrying layout attributes are
// unwrapped to their inner text.
func htmlToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return strings.TrimSpace(src)
	}
	var b strings.Builder
	renderNode(&b, doc, renderState{})
	return collapseBlankLines(strings.TrimSpace(b.String()))
}

type renderState struct {
	listDepth int
	ordered   bool
	itemIndex int
}

func renderNode(b *strings.Builder, n *html.Node, st renderState) {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			b.WriteString(text)
			b.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "style", "script", "head", "img":
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(n.Data[1] - '0')
			b.WriteString("\n\n")
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			renderChildren(b, n, st)
			b.WriteString("\n\n")
			return
		case "strong", "b":
			b.WriteString("**")
			renderChildren(b, n, st)
			trimTrailingSpace(b)
			b.WriteString("** ")
			return
		case "em", "i":
			b.WriteString("_")
			renderChildren(b, n, st)
			trimTrailingSpace(b)
			b.WriteString("_ ")
			return
		case "del", "s", "strike":
			b.WriteString("~~")
			renderChildren(b, n, st)
			trimTrailingSpace(b)
			b.WriteString("~~ ")
			return
		case "a":
			href := attr(n, "href")
			if href == "" {
				renderChildren(b, n, st)
				return
			}
			b.WriteString("[")
			renderChildren(b, n, st)
			trimTrailingSpace(b)
			b.WriteString("](")
			b.WriteString(href)
			b.WriteString(") ")
			return
		case "ul":
			st.listDepth++
			st.ordered = false
			st.itemIndex = 0
			b.WriteString("\n")
			renderChildren(b, n, st)
			b.WriteString("\n")
			return
		case "ol":
			st.listDepth++
			st.ordered = true
			st.itemIndex = 0
			b.WriteString("\n")
			renderOrderedItems(b, n, st)
			b.WriteString("\n")
			return
		case "li":
			b.WriteString("\n")
			b.WriteString(strings.Repeat("  ", max(st.listDepth-1, 0)))
			b.WriteString("- ")
			renderChildren(b, n, st)
			return
		case "br":
			b.WriteString("\n")
			return
		case "p", "div", "tr":
			b.WriteString("\n")
			renderChildren(b, n, st)
			b.WriteString("\n")
			return
		case "table":
			// Layout tables (width/border/cellpadding markup) unwrap to
			// their text content; real data tables do the same here since
			// email tables are overwhelmingly presentational.
			renderChildren(b, n, st)
			return
		}
	}
	renderChildren(b, n, st)
}

func renderChildren(b *strings.Builder, n *html.Node, st renderState) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c, st)
	}
}

func renderOrderedItems(b *strings.Builder, n *html.Node, st renderState) {
	index := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			index++
			b.WriteString("\n")
			b.WriteString(strings.Repeat("  ", max(st.listDepth-1, 0)))
			b.WriteString(strconv.Itoa(index))
			b.WriteString(". ")
			renderChildren(b, c, st)
			continue
		}
		renderNode(b, c, st)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " ")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

