package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is the minimal queryable-markup surface the parser needs. It
// keeps the parser independent of the underlying HTML library.
type Document interface {
	// First returns the first node matching the CSS selector, or nil.
	First(selector string) Node
	// All returns every node matching the CSS selector.
	All(selector string) []Node
	// HTML serializes the current state of the document.
	HTML() (string, error)
}

// Node is a single element inside a Document. Mutations (Remove, SetAttr)
// write through to the owning document.
type Node interface {
	First(selector string) Node
	All(selector string) []Node
	Text() string
	Attr(name string) string
	SetAttr(name, value string)
	Remove()
	HTML() (string, error)
}

// LoadDocument parses raw markup into a queryable document.
func LoadDocument(markup string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return &goqueryDocument{doc: doc}, nil
}

type goqueryDocument struct {
	doc *goquery.Document
}

func (d *goqueryDocument) First(selector string) Node {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return &goqueryNode{sel: sel}
}

func (d *goqueryDocument) All(selector string) []Node {
	var nodes []Node
	d.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		nodes = append(nodes, &goqueryNode{sel: sel})
	})
	return nodes
}

func (d *goqueryDocument) HTML() (string, error) {
	return d.doc.Html()
}

type goqueryNode struct {
	sel *goquery.Selection
}

func (n *goqueryNode) First(selector string) Node {
	sel := n.sel.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return &goqueryNode{sel: sel}
}

func (n *goqueryNode) All(selector string) []Node {
	var nodes []Node
	n.sel.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		nodes = append(nodes, &goqueryNode{sel: sel})
	})
	return nodes
}

func (n *goqueryNode) Text() string {
	return n.sel.Text()
}

func (n *goqueryNode) Attr(name string) string {
	val, _ := n.sel.Attr(name)
	return val
}

func (n *goqueryNode) SetAttr(name, value string) {
	n.sel.SetAttr(name, value)
}

func (n *goqueryNode) Remove() {
	n.sel.Remove()
}

func (n *goqueryNode) HTML() (string, error) {
	return goquery.OuterHtml(n.sel)
}
