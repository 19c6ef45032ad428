package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == xmlquery.ElementNode {
		return doc
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// children returns the element children of n named local in no namespace.
// Repeated and single elements both come back as a slice.
func children(n *xmlquery.Node, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.NamespaceURI == "" && c.Data == local {
			out = append(out, c)
		}
	}
	return out
}

func child(n *xmlquery.Node, local string) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.NamespaceURI == "" && c.Data == local {
			return c
		}
	}
	return nil
}

// namespacedChildren returns the element children of n in namespace uri,
// grouped by local name in document order.
func namespacedChildren(n *xmlquery.Node, uri string) map[string][]*xmlquery.Node {
	out := make(map[string][]*xmlquery.Node)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.NamespaceURI == uri {
			out[c.Data] = append(out[c.Data], c)
		}
	}
	return out
}

func attr(n *xmlquery.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

func text(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	return cleanText(n.InnerText())
}

func childText(n *xmlquery.Node, local string) string {
	return text(child(n, local))
}

func childTexts(n *xmlquery.Node, local string) []string {
	var out []string
	for _, c := range children(n, local) {
		if s := text(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func childInt(n *xmlquery.Node, local string) int {
	v, err := strconv.Atoi(childText(n, local))
	if err != nil {
		return 0
	}
	return v
}

func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseDatePtr(s string) *time.Time {
	t, ok := parseDate(s)
	if !ok {
		return nil
	}
	return &t
}
