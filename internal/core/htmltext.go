package core

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML reduces an HTML record body to readable text. Each
// paragraph becomes one block, blocks are joined by blank lines, and
// any other markup collapses to spaced text. Input that does not parse
// comes back unchanged.
func StripHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	paragraphs := doc.Find("p")
	if paragraphs.Length() > 0 {
		var blocks []string
		paragraphs.Each(func(_ int, s *goquery.Selection) {
			if text := collapseSpace(s.Text()); text != "" {
				blocks = append(blocks, text)
			}
		})
		return strings.Join(blocks, "\n\n")
	}
	return collapseSpace(doc.Text())
}

// collapseSpace trims the string and squeezes every whitespace run down
// to a single space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
