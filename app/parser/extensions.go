package parser

import (
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/lysyi3m/rss-archive/app/feed"
	ext "github.com/mmcdole/gofeed/extensions"
)

const (
	NamespaceDublinCore = "http://purl.org/dc/elements/1.1/"
	NamespaceContent    = "http://purl.org/rss/1.0/modules/content/"
)

// declaredNamespaces collects the namespace URIs declared on the root element.
func declaredNamespaces(root *xmlquery.Node) map[string]bool {
	out := make(map[string]bool)
	for _, a := range root.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			out[strings.TrimSpace(a.Value)] = true
		}
	}
	return out
}

// dublinCore decodes the dc: children of an item. It returns nil when the
// item carries none.
func dublinCore(item *xmlquery.Node) *ext.DublinCoreExtension {
	nodes := namespacedChildren(item, NamespaceDublinCore)
	if len(nodes) == 0 {
		return nil
	}

	extensions := make(map[string][]ext.Extension, len(nodes))
	for name, elems := range nodes {
		for _, elem := range elems {
			value := text(elem)
			if value == "" {
				continue
			}
			extensions[name] = append(extensions[name], ext.Extension{
				Name:  name,
				Value: value,
				Attrs: map[string]string{},
			})
		}
	}
	if len(extensions) == 0 {
		return nil
	}

	return ext.NewDublinCoreExtension(extensions)
}

func content(item *xmlquery.Node) *feed.ContentExtension {
	encoded := namespacedChildren(item, NamespaceContent)["encoded"]
	if len(encoded) == 0 {
		return nil
	}

	value := strings.TrimSpace(encoded[0].InnerText())
	if value == "" {
		return nil
	}
	return &feed.ContentExtension{Encoded: value}
}
