package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"
)

// Generator renders an archived feed back into an RSS 2.0 document.
type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version}
}

func (g *Generator) Run(f *Feed, items []Item, selfLink string) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", f.Title, 4)
	g.writeElement(&buf, "link", f.Link, 4)
	g.writeElement(&buf, "description", cmp.Or(f.Description, f.Title), 4)

	if selfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(selfLink)))
	}

	if f.Language != "" {
		g.writeElement(&buf, "language", f.Language, 4)
	}

	lastBuildDate := f.InsertedAt
	if len(items) > 0 {
		lastBuildDate = cmp.Or(items[0].InsertedAt, lastBuildDate)
	}
	if !lastBuildDate.IsZero() {
		g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	}
	g.writeElement(&buf, "generator", fmt.Sprintf("RSS-Archive/%s", g.version), 4)

	if f.Image != nil && f.Image.URL != "" {
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", f.Image.URL, 6)
		g.writeElement(&buf, "title", cmp.Or(f.Image.Title, f.Title), 6)
		g.writeElement(&buf, "link", cmp.Or(f.Image.Link, f.Link), 6)
		buf.WriteString("    </image>\n")
	}

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String()
}

func (g *Generator) writeItem(buf *bytes.Buffer, item Item) {
	buf.WriteString("    <item>\n")

	if item.GUID != nil && item.GUID.Value != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", item.GUID.IsPermaLink))
		xml.EscapeText(buf, []byte(item.GUID.Value))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", item.Link, 6)
	g.writeElement(buf, "description", item.Description, 6)

	if item.Content != nil && item.Content.Encoded != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(item.Content.Encoded, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", item.PubDate.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "author", item.Author, 6)
	g.writeElement(buf, "comments", item.Comments, 6)

	for _, category := range item.Categories {
		g.writeElement(buf, "category", category, 6)
	}

	if item.DC != nil {
		for _, creator := range item.DC.Creator {
			g.writeElement(buf, "dc:creator", creator, 6)
		}
	}

	// RSS 2.0: url, length and type are all required on an enclosure
	if item.Enclosure != nil && item.Enclosure.URL != "" && item.Enclosure.Type != "" {
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"%d\" type=\"%s\" />\n",
			html.EscapeString(item.Enclosure.URL),
			item.Enclosure.Length,
			html.EscapeString(item.Enclosure.Type)))
	}

	if item.Source != nil && item.Source.URL != "" {
		buf.WriteString(fmt.Sprintf("      <source url=\"%s\">", html.EscapeString(item.Source.URL)))
		xml.EscapeText(buf, []byte(item.Source.Value))
		buf.WriteString("</source>\n")
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
