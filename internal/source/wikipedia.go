package source

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WikipediaAdapter reads article prose, leaving out citation markers,
// infoboxes, navigation boxes and the trailing reference sections
type WikipediaAdapter struct {
	BaseAdapter
	skipClasses   []string
	trailingHeads map[string]bool
}

// NewWikipediaAdapter creates a new Wikipedia adapter
func NewWikipediaAdapter() *WikipediaAdapter {
	return &WikipediaAdapter{
		skipClasses: []string{
			"reference", "mw-editsection", "infobox", "navbox", "metadata",
			"reflist", "references", "mw-references-wrap", "toc", "hatnote",
			"shortdescription", "thumb", "sidebar", "ambox", "noprint",
		},
		trailingHeads: map[string]bool{
			"references":      true,
			"notes":           true,
			"see also":        true,
			"external links":  true,
			"further reading": true,
			"bibliography":    true,
			"sources":         true,
			"citations":       true,
		},
	}
}

// Name returns the adapter name
func (a *WikipediaAdapter) Name() string {
	return "wikipedia"
}

// CanHandle checks if this is a Wikipedia URL
func (a *WikipediaAdapter) CanHandle(rawURL string, contentType string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Host)
	return host == "wikipedia.org" || strings.HasSuffix(host, ".wikipedia.org")
}

// Extract returns the article body up to the first reference section
func (a *WikipediaAdapter) Extract(doc *html.Node, rawURL string) (*Document, error) {
	content := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Div &&
			(a.HasClass(n, "mw-parser-output") || a.GetAttribute(n, "id") == "mw-content-text")
	})
	if content == nil {
		content = doc
	}

	text := HTMLToText(content, TextOptions{
		Skip: a.skip,
		Stop: a.trailingSection,
	})

	return &Document{
		Title: a.title(doc),
		Text:  text,
	}, nil
}

func (a *WikipediaAdapter) skip(n *html.Node) bool {
	if n.DataAtom == atom.Sup && a.HasClass(n, "reference") {
		return true
	}
	if a.GetAttribute(n, "id") == "toc" {
		return true
	}
	for _, class := range a.skipClasses {
		if a.HasClass(n, class) {
			return true
		}
	}
	return false
}

// trailingSection matches the h2 opening "References", "See also" and similar
func (a *WikipediaAdapter) trailingSection(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.H2 {
		return false
	}
	heading := strings.ToLower(HTMLToText(n, TextOptions{Skip: a.skip}))
	return a.trailingHeads[strings.TrimSpace(heading)]
}

func (a *WikipediaAdapter) title(doc *html.Node) string {
	if h := a.FindFirst(doc, func(n *html.Node) bool {
		return a.GetAttribute(n, "id") == "firstHeading"
	}); h != nil {
		return HTMLToText(h, TextOptions{})
	}
	title := a.Title(doc)
	if i := strings.LastIndex(title, " - Wikipedia"); i > 0 {
		title = title[:i]
	}
	return title
}
