package cssfeatures

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultFallbackHref is the stylesheet loaded when support is incomplete.
const DefaultFallbackHref = "prefixes.css"

// InjectFallback parses the HTML document from r, appends a
// <link rel="stylesheet" href="..."> to its head and renders it to w.
//
// It reports whether a link was added: a document already linking href is
// rendered unchanged.
func InjectFallback(w io.Writer, r io.Reader, href string) (bool, error) {
	if strings.TrimSpace(href) == "" {
		href = DefaultFallbackHref
	}

	doc, err := html.Parse(r)
	if err != nil {
		return false, fmt.Errorf("parse document: %w", err)
	}

	head := findElement(doc, atom.Head)
	if head == nil {
		// html.Parse always synthesizes a head; guard against fragments anyway.
		return false, fmt.Errorf("parse document: no head element")
	}

	injected := !hasStylesheet(head, href)
	if injected {
		head.AppendChild(&html.Node{
			Type:     html.ElementNode,
			Data:     "link",
			DataAtom: atom.Link,
			Attr: []html.Attribute{
				{Key: "rel", Val: "stylesheet"},
				{Key: "href", Val: href},
			},
		})
	}

	if err := html.Render(w, doc); err != nil {
		return false, fmt.Errorf("render document: %w", err)
	}
	return injected, nil
}

// ApplyFallback injects the fallback link only when result needs it.
// Otherwise the document is copied unchanged.
func ApplyFallback(w io.Writer, r io.Reader, result *Result, href string) (bool, error) {
	if !result.NeedsFallback() {
		_, err := io.Copy(w, r)
		return false, err
	}
	return InjectFallback(w, r, href)
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func hasStylesheet(head *html.Node, href string) bool {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Link {
			continue
		}
		var rel, h string
		for _, a := range c.Attr {
			switch a.Key {
			case "rel":
				rel = a.Val
			case "href":
				h = a.Val
			}
		}
		if strings.EqualFold(rel, "stylesheet") && h == href {
			return true
		}
	}
	return false
}
