package source

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LegalAdapter reads statutes and regulations
type LegalAdapter struct {
	BaseAdapter
	legalDomains []string
	legalPaths   []string
}

// NewLegalAdapter creates a new legal document adapter
func NewLegalAdapter() *LegalAdapter {
	return &LegalAdapter{
		legalDomains: []string{
			"legislation.gov.uk",
			"law.cornell.edu",
			"gov.uk",
			"justice.gov",
			"eur-lex.europa.eu",
		},
		legalPaths: []string{"/statute", "/legal", "/law", "/regulation"},
	}
}

// Name returns the adapter name
func (a *LegalAdapter) Name() string {
	return "legal"
}

// CanHandle matches known legal hosts and statute-like paths
func (a *LegalAdapter) CanHandle(rawURL string, contentType string) bool {
	parsed, err := url.Parse(strings.ToLower(rawURL))
	if err != nil || parsed.Host == "" {
		return false
	}

	for _, domain := range a.legalDomains {
		if parsed.Host == domain || strings.HasSuffix(parsed.Host, "."+domain) {
			return true
		}
	}

	for _, p := range a.legalPaths {
		if strings.HasPrefix(parsed.Path, p) {
			return true
		}
	}

	return false
}

// Extract reads the main content, keeping section numbering and footnotes
func (a *LegalAdapter) Extract(doc *html.Node, rawURL string) (*Document, error) {
	content := a.FindFirst(doc, isElement(atom.Main))
	if content == nil {
		content = a.FindFirst(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode &&
				(n.DataAtom == atom.Article || a.GetAttribute(n, "role") == "main")
		})
	}
	if content == nil {
		content = doc
	}

	return &Document{
		Title: a.Title(doc),
		Text: HTMLToText(content, TextOptions{Skip: func(n *html.Node) bool {
			return chrome(n) || a.HasClass(n, "breadcrumb") || a.HasClass(n, "skip-link")
		}}),
	}, nil
}
