package source

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// GenericAdapter is the fallback for unknown sites
type GenericAdapter struct {
	BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(url string, contentType string) bool {
	return true
}

// Extract reads <article>, then <main>, then <body>, without page chrome
func (a *GenericAdapter) Extract(doc *html.Node, url string) (*Document, error) {
	content := a.FindFirst(doc, isElement(atom.Article))
	if content == nil {
		content = a.FindFirst(doc, isElement(atom.Main))
	}
	if content == nil {
		content = a.FindFirst(doc, isElement(atom.Body))
	}
	if content == nil {
		content = doc
	}

	return &Document{
		Title: a.Title(doc),
		Text:  HTMLToText(content, TextOptions{Skip: chrome}),
	}, nil
}
