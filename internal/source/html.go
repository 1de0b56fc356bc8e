package source

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextOptions tunes HTMLToText
type TextOptions struct {
	// Skip prunes a subtree
	Skip func(*html.Node) bool

	// Stop ends extraction at the first matching node
	Stop func(*html.Node) bool
}

// invisible elements never contribute text
var invisible = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Button:   true,
	atom.Select:   true,
}

// block elements start and end a line
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Dl: true, atom.Dt: true, atom.Dd: true,
	atom.Table: true, atom.Tr: true, atom.Blockquote: true, atom.Pre: true,
	atom.Br: true, atom.Hr: true, atom.Figcaption: true, atom.Caption: true,
}

// HTMLToText renders the visible text of n as one line per block element,
// with runs of whitespace collapsed.
func HTMLToText(n *html.Node, opts TextOptions) string {
	var buf strings.Builder
	stopped := false
	inPre := 0

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if stopped {
			return
		}
		if opts.Stop != nil && opts.Stop(node) {
			stopped = true
			return
		}

		switch node.Type {
		case html.TextNode:
			if inPre > 0 {
				buf.WriteString(node.Data)
			} else {
				buf.WriteString(flatten.Replace(node.Data))
			}
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if invisible[node.DataAtom] {
				return
			}
			if opts.Skip != nil && opts.Skip(node) {
				return
			}
			if node.DataAtom == atom.Pre {
				inPre++
				defer func() { inPre-- }()
			}
			if block[node.DataAtom] {
				buf.WriteByte('\n')
				defer buf.WriteByte('\n')
			} else if node.DataAtom == atom.Td || node.DataAtom == atom.Th {
				defer buf.WriteByte(' ')
			}
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return collapseLines(buf.String())
}

// flatten turns source line breaks into spaces outside <pre>
var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// ParseHTML parses a document
func ParseHTML(content string) (*html.Node, error) {
	return html.Parse(strings.NewReader(content))
}

// LooksLikeHTML sniffs content that arrived without a useful content type
func LooksLikeHTML(contentType, body string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "html") {
		return true
	}
	if ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		return false
	}
	head := strings.ToLower(strings.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") || strings.Contains(head, "<body")
}
