package feed

import (
	"time"

	ext "github.com/mmcdole/gofeed/extensions"
)

// Canonical feed model

type Version string

const (
	VersionRSS20 Version = "rss-2.0"
)

type Feed struct {
	ID             string     `json:"feedId"`
	Version        Version    `json:"version"`
	Title          string     `json:"title"`
	Link           string     `json:"link"`
	Description    string     `json:"description"`
	Language       string     `json:"language,omitempty"`
	Copyright      string     `json:"copyright,omitempty"`
	ManagingEditor string     `json:"managingEditor,omitempty"`
	WebMaster      string     `json:"webMaster,omitempty"`
	PubDate        *time.Time `json:"pubDate,omitempty"`
	LastBuildDate  *time.Time `json:"lastBuildDate,omitempty"`
	Generator      string     `json:"generator,omitempty"`
	Docs           string     `json:"docs,omitempty"`
	TTL            int        `json:"ttl,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	Image          *Image     `json:"image,omitempty"`
	TextInput      *TextInput `json:"textInput,omitempty"`
	Cloud          *Cloud     `json:"cloud,omitempty"`
	InsertedAt     time.Time  `json:"insertedAt"`
	Items          []Item     `json:"items,omitempty"`
}

type Image struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Description string `json:"description,omitempty"`
}

type TextInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Name        string `json:"name"`
	Link        string `json:"link"`
}

type Cloud struct {
	Domain            string `json:"domain"`
	Port              int    `json:"port"`
	Path              string `json:"path"`
	RegisterProcedure string `json:"registerProcedure"`
	Protocol          string `json:"protocol"`
}

type Item struct {
	ID          string                   `json:"itemId"`
	FeedID      string                   `json:"feedId"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Link        string                   `json:"link,omitempty"`
	Author      string                   `json:"author,omitempty"`
	Categories  []string                 `json:"category,omitempty"`
	Comments    string                   `json:"comments,omitempty"`
	PubDate     time.Time                `json:"pubDate"`
	Enclosure   *Enclosure               `json:"enclosure,omitempty"`
	GUID        *GUID                    `json:"guid,omitempty"`
	Source      *Source                  `json:"source,omitempty"`
	Read        bool                     `json:"read"`
	DC          *ext.DublinCoreExtension `json:"dc,omitempty"`
	Content     *ContentExtension        `json:"content,omitempty"`
	InsertedAt  time.Time                `json:"insertedAt"`
}

type Enclosure struct {
	URL    string `json:"url"`
	Length int64  `json:"length"`
	Type   string `json:"type"`
}

type GUID struct {
	Value       string `json:"value"`
	IsPermaLink bool   `json:"isPermaLink"`
}

type Source struct {
	URL   string `json:"url"`
	Value string `json:"value"`
}

// ContentExtension holds the content: namespace (content:encoded).
type ContentExtension struct {
	Encoded string `json:"encoded"`
}

// Subscription configuration types

type Config struct {
	ID           string   `yaml:"-"` // Derived from filename (without extension)
	Name         string   `yaml:"name"`
	URL          string   `yaml:"url"`
	Enabled      bool     `yaml:"enabled"`
	PollInterval Duration `yaml:"poll_interval"`
	Timeout      int      `yaml:"timeout"` // seconds
}
