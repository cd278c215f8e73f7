// Package render turns parsed assistant blocks into a display tree that any
// front end can draw, with text and HTML projections of the same tree.
package render

import (
	"regexp"
	"strings"

	"property-agent/internal/blocks"
)

// Kind tags a Node.
type Kind string

const (
	KindCard      Kind = "card"
	KindHeading   Kind = "heading"
	KindField     Kind = "field"
	KindList      Kind = "list"
	KindLink      Kind = "link"
	KindParagraph Kind = "paragraph"
)

const viewOfferText = "View Offer"

var (
	listSeparator = regexp.MustCompile(`,\s*`)
	viewOfferLink = regexp.MustCompile(`\[View Offer\]\((https?://[^\s]+)\)`)
)

// Node is one renderable element.
//
//	card       Children
//	heading    Text
//	field      Label, Text
//	list       Label, Items
//	link       Label, Href, Text
//	paragraph  Text
type Node struct {
	Kind     Kind     `json:"kind"`
	Label    string   `json:"label,omitempty"`
	Text     string   `json:"text,omitempty"`
	Href     string   `json:"href,omitempty"`
	Items    []string `json:"items,omitempty"`
	Children []Node   `json:"children,omitempty"`
}

// Message parses and renders assistant text. Text that yields no blocks is
// shown verbatim as a single paragraph.
func Message(text string) []Node {
	nodes := Render(blocks.Parse(text))
	if len(nodes) == 0 && text != "" {
		return []Node{{Kind: KindParagraph, Text: text}}
	}
	return nodes
}

// Render maps blocks to nodes one to one, keeping field order.
func Render(bs []blocks.Block) []Node {
	nodes := make([]Node, 0, len(bs))
	for _, b := range bs {
		switch b := b.(type) {
		case blocks.PropertyBlock:
			nodes = append(nodes, card(b))
		case blocks.ProseBlock:
			nodes = append(nodes, Node{Kind: KindParagraph, Text: b.Text()})
		}
	}
	return nodes
}

func card(b blocks.PropertyBlock) Node {
	children := make([]Node, 0, len(b.Fields)+1)
	if b.Title != "" {
		children = append(children, Node{Kind: KindHeading, Text: b.Title})
	}
	for _, f := range b.Fields {
		children = append(children, field(f))
	}
	return Node{Kind: KindCard, Children: children}
}

func field(f blocks.Field) Node {
	switch strings.ToLower(f.Label) {
	case "amenities":
		return Node{Kind: KindList, Label: f.Label, Items: SplitList(f.Value)}
	case "link":
		if m := viewOfferLink.FindStringSubmatch(f.Value); m != nil {
			return Node{Kind: KindLink, Label: f.Label, Href: m[1], Text: viewOfferText}
		}
		return Node{Kind: KindLink, Label: f.Label, Href: f.Value, Text: f.Value}
	default:
		return Node{Kind: KindField, Label: f.Label, Text: f.Value}
	}
}

// SplitList splits a comma separated value, dropping empty items.
func SplitList(value string) []string {
	var items []string
	for _, item := range listSeparator.Split(value, -1) {
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Text projects nodes back to the "Label: value" text they came from.
func Text(nodes []Node) string {
	paragraphs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		switch n.Kind {
		case KindCard:
			lines := make([]string, 0, len(n.Children))
			for _, c := range n.Children {
				lines = append(lines, textLine(c))
			}
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		default:
			paragraphs = append(paragraphs, textLine(n))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func textLine(n Node) string {
	switch n.Kind {
	case KindHeading, KindParagraph:
		return n.Text
	case KindList:
		return n.Label + ": " + strings.Join(n.Items, ", ")
	case KindLink:
		if n.Text == viewOfferText && n.Text != n.Href {
			return n.Label + ": [" + viewOfferText + "](" + n.Href + ")"
		}
		return n.Label + ": " + n.Href
	default:
		return n.Label + ": " + n.Text
	}
}
