package parser

import (
	"errors"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/lysyi3m/rss-archive/app/feed"
)

var ErrParserNotFound = errors.New("no parser found for document")

// Validator decides whether a raw document conforms to one syndication format.
type Validator interface {
	Validate(doc *xmlquery.Node) (feed.Version, error)
}

// Parser converts a validated raw document into the canonical model.
type Parser interface {
	Parse(doc *xmlquery.Node) (*feed.Feed, error)
}

type Strategy struct {
	Validator Validator
	Parser    Parser
}

// ValidationError reports why a document does not match a format.
type ValidationError struct {
	Version feed.Version
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document is not %s: %s", e.Version, e.Reason)
}

// ParseError reports a body that is not well-formed XML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
