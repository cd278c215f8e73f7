package render

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML renders nodes as an HTML fragment. Text and attribute values are
// escaped by the html package.
func HTML(nodes []Node) (string, error) {
	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, htmlNode(n)); err != nil {
			return "", fmt.Errorf("render: html: %w", err)
		}
	}
	return buf.String(), nil
}

func htmlNode(n Node) *html.Node {
	switch n.Kind {
	case KindCard:
		div := element(atom.Div, "class", "offer-card")
		for _, c := range n.Children {
			div.AppendChild(htmlNode(c))
		}
		return div
	case KindHeading:
		return withText(element(atom.H3, "class", "offer-title"), n.Text)
	case KindList:
		div := labeled(n.Label)
		ul := element(atom.Ul)
		for _, item := range n.Items {
			ul.AppendChild(withText(element(atom.Li), item))
		}
		div.AppendChild(ul)
		return div
	case KindLink:
		div := labeled(n.Label)
		a := element(atom.A, "href", n.Href, "target", "_blank", "rel", "noopener noreferrer")
		div.AppendChild(withText(a, n.Text))
		return div
	case KindField:
		div := labeled(n.Label)
		div.AppendChild(withText(element(atom.Span), n.Text))
		return div
	default:
		return withText(element(atom.P), n.Text)
	}
}

// labeled starts a field row with its bold "Label:" prefix.
func labeled(label string) *html.Node {
	div := element(atom.Div, "class", "offer-field")
	div.AppendChild(withText(element(atom.Strong), label+":"))
	div.AppendChild(&html.Node{Type: html.TextNode, Data: " "})
	return div
}

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func withText(n *html.Node, text string) *html.Node {
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}
