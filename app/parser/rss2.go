package parser

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/lysyi3m/rss-archive/app/feed"
)

type RSS20Validator struct{}

func NewRSS20Validator() *RSS20Validator {
	return &RSS20Validator{}
}

func (v *RSS20Validator) Validate(doc *xmlquery.Node) (feed.Version, error) {
	root := rootElement(doc)
	if root == nil {
		return "", v.fail("document has no root element")
	}
	if root.Data != "rss" || root.NamespaceURI != "" {
		return "", v.fail("root element is <" + root.Data + ">")
	}
	if version := strings.TrimSpace(attr(root, "version")); version != "2.0" {
		return "", v.fail("unsupported version " + strconv.Quote(version))
	}

	channels := children(root, "channel")
	if len(channels) != 1 {
		return "", v.fail("expected one <channel>, found " + strconv.Itoa(len(channels)))
	}
	channel := channels[0]

	for _, name := range []string{"title", "link", "description"} {
		if child(channel, name) == nil {
			return "", v.fail("channel is missing <" + name + ">")
		}
	}

	for i, item := range children(channel, "item") {
		if child(item, "title") == nil && child(item, "description") == nil {
			return "", v.fail("item " + strconv.Itoa(i) + " has neither <title> nor <description>")
		}
	}

	return feed.VersionRSS20, nil
}

func (v *RSS20Validator) fail(reason string) error {
	return &ValidationError{Version: feed.VersionRSS20, Reason: reason}
}

// RSS20Parser converts a validated RSS 2.0 tree into the canonical model.
type RSS20Parser struct {
	now func() time.Time
}

func NewRSS20Parser() *RSS20Parser {
	return &RSS20Parser{now: time.Now}
}

func (p *RSS20Parser) Parse(doc *xmlquery.Node) (*feed.Feed, error) {
	root := rootElement(doc)
	if root == nil {
		return nil, errors.New("document has no root element")
	}
	channel := child(root, "channel")
	if channel == nil {
		return nil, errors.New("document has no channel")
	}

	parsedAt := p.now()
	namespaces := declaredNamespaces(root)

	f := &feed.Feed{
		Version:        feed.VersionRSS20,
		Title:          childText(channel, "title"),
		Link:           childText(channel, "link"),
		Description:    childText(channel, "description"),
		Language:       childText(channel, "language"),
		Copyright:      childText(channel, "copyright"),
		ManagingEditor: childText(channel, "managingEditor"),
		WebMaster:      childText(channel, "webMaster"),
		PubDate:        parseDatePtr(childText(channel, "pubDate")),
		LastBuildDate:  parseDatePtr(childText(channel, "lastBuildDate")),
		Generator:      childText(channel, "generator"),
		Docs:           childText(channel, "docs"),
		TTL:            childInt(channel, "ttl"),
		Categories:     childTexts(channel, "category"),
		Image:          parseImage(child(channel, "image")),
		TextInput:      parseTextInput(child(channel, "textInput")),
		Cloud:          parseCloud(child(channel, "cloud")),
	}

	itemNodes := children(channel, "item")
	f.Items = make([]feed.Item, 0, len(itemNodes))
	for _, node := range itemNodes {
		f.Items = append(f.Items, p.parseItem(node, namespaces, parsedAt))
	}

	return f, nil
}

func (p *RSS20Parser) parseItem(node *xmlquery.Node, namespaces map[string]bool, parsedAt time.Time) feed.Item {
	item := feed.Item{
		Title:       childText(node, "title"),
		Description: childText(node, "description"),
		Link:        childText(node, "link"),
		Author:      childText(node, "author"),
		Categories:  childTexts(node, "category"),
		Comments:    childText(node, "comments"),
		Enclosure:   parseEnclosure(child(node, "enclosure")),
		GUID:        parseGUID(child(node, "guid")),
		Source:      parseSource(child(node, "source")),
	}

	if pubDate, ok := parseDate(childText(node, "pubDate")); ok {
		item.PubDate = pubDate
	} else {
		item.PubDate = parsedAt
	}

	if namespaces[NamespaceDublinCore] {
		item.DC = dublinCore(node)
	}
	if namespaces[NamespaceContent] {
		item.Content = content(node)
	}

	item.AssignID()
	return item
}

func parseImage(n *xmlquery.Node) *feed.Image {
	if n == nil {
		return nil
	}
	url := childText(n, "url")
	if url == "" {
		return nil
	}
	return &feed.Image{
		URL:         url,
		Title:       childText(n, "title"),
		Link:        childText(n, "link"),
		Width:       childInt(n, "width"),
		Height:      childInt(n, "height"),
		Description: childText(n, "description"),
	}
}

func parseTextInput(n *xmlquery.Node) *feed.TextInput {
	if n == nil {
		return nil
	}
	return &feed.TextInput{
		Title:       childText(n, "title"),
		Description: childText(n, "description"),
		Name:        childText(n, "name"),
		Link:        childText(n, "link"),
	}
}

func parseCloud(n *xmlquery.Node) *feed.Cloud {
	if n == nil {
		return nil
	}
	port, _ := strconv.Atoi(attr(n, "port"))
	return &feed.Cloud{
		Domain:            attr(n, "domain"),
		Port:              port,
		Path:              attr(n, "path"),
		RegisterProcedure: attr(n, "registerProcedure"),
		Protocol:          attr(n, "protocol"),
	}
}

func parseEnclosure(n *xmlquery.Node) *feed.Enclosure {
	if n == nil {
		return nil
	}
	url := strings.TrimSpace(attr(n, "url"))
	if url == "" {
		return nil
	}
	length, _ := strconv.ParseInt(strings.TrimSpace(attr(n, "length")), 10, 64)
	return &feed.Enclosure{
		URL:    url,
		Length: length,
		Type:   strings.TrimSpace(attr(n, "type")),
	}
}

// isPermaLink defaults to true when the attribute is absent.
func parseGUID(n *xmlquery.Node) *feed.GUID {
	value := text(n)
	if value == "" {
		return nil
	}
	return &feed.GUID{
		Value:       value,
		IsPermaLink: !strings.EqualFold(strings.TrimSpace(attr(n, "isPermaLink")), "false"),
	}
}

func parseSource(n *xmlquery.Node) *feed.Source {
	if n == nil {
		return nil
	}
	return &feed.Source{
		URL:   strings.TrimSpace(attr(n, "url")),
		Value: text(n),
	}
}
