// Package dom evaluates locators against a rendered page snapshot.
//
// A locator is either an XPath expression (anything starting with '/' or '(')
// or a CSS selector. Callers treat locators as opaque strings, only this
// package looks inside them.
package dom

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Document is a parsed snapshot of a rendered page.
type Document struct {
	root *html.Node
	doc  *goquery.Document
}

// IsXPath reports whether locator is evaluated as an XPath expression.
func IsXPath(locator string) bool {
	l := strings.TrimSpace(locator)
	return strings.HasPrefix(l, "/") || strings.HasPrefix(l, "(") || strings.HasPrefix(l, "./")
}

// ValidateLocator checks that locator compiles.
func ValidateLocator(locator string) error {
	if strings.TrimSpace(locator) == "" {
		return errors.New("locator is empty")
	}
	if IsXPath(locator) {
		if _, err := xpath.Compile(locator); err != nil {
			return fmt.Errorf("invalid xpath %q: %w", locator, err)
		}
		return nil
	}
	if _, err := cascadia.Compile(locator); err != nil {
		return fmt.Errorf("invalid css selector %q: %w", locator, err)
	}
	return nil
}

// Parse parses the outer html of a page.
func Parse(s string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, err
	}
	return &Document{
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}, nil
}

func (d *Document) nodes(locator string) ([]*html.Node, error) {
	if IsXPath(locator) {
		return htmlquery.QueryAll(d.root, locator)
	}
	m, err := cascadia.Compile(locator)
	if err != nil {
		return nil, err
	}
	return d.doc.FindMatcher(m).Nodes, nil
}

// Count returns the number of elements matching locator.
func (d *Document) Count(locator string) (int, error) {
	nodes, err := d.nodes(locator)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Texts returns the rendered text of every element matching locator, in
// document order. Invisible elements yield an empty string but keep their
// position.
func (d *Document) Texts(locator string) ([]string, error) {
	nodes, err := d.nodes(locator)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		texts = append(texts, Text(n))
	}
	return texts, nil
}

// Attrs returns the value of attr for every matching element that has it.
func (d *Document) Attrs(locator, attr string) ([]string, error) {
	nodes, err := d.nodes(locator)
	if err != nil {
		return nil, err
	}
	values := []string{}
	for _, n := range nodes {
		for _, a := range n.Attr {
			if a.Key == attr {
				values = append(values, a.Val)
				break
			}
		}
	}
	return values, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

func isHidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

// Text approximates what a browser renders for n: hidden subtrees and
// scripts are skipped, block elements start a new line and whitespace
// within a line is collapsed.
func Text(n *html.Node) string {
	for p := n; p != nil; p = p.Parent {
		if isHidden(p) {
			return ""
		}
	}
	var sb strings.Builder
	renderText(&sb, n)
	lines := []string{}
	for _, l := range strings.Split(sb.String(), "\n") {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func renderText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[n.Data] || isHidden(n) {
			return
		}
		if n.Data == "br" {
			sb.WriteByte('\n')
			return
		}
	}
	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(sb, c)
	}
	if block {
		sb.WriteByte('\n')
	}
}

// ClickScript returns a javascript function that clicks the index-th element
// matching locator and reports whether such an element existed. The click is
// dispatched from script so overlays and visibility checks do not get in the
// way.
func ClickScript(locator string, index int) string {
	quoted, _ := json.Marshal(locator)
	var lookup string
	if IsXPath(locator) {
		lookup = fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotItem(%d)", quoted, index)
	} else {
		lookup = fmt.Sprintf("document.querySelectorAll(%s).item(%d)", quoted, index)
	}
	return fmt.Sprintf(`() => {
	const el = %s;
	if (!el) {
		return false;
	}
	if (typeof el.click === "function") {
		el.click();
	} else {
		el.dispatchEvent(new MouseEvent("click", {bubbles: true, cancelable: true}));
	}
	return true;
}`, lookup)
}
