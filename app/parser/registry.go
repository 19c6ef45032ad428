package parser

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/antchfx/xmlquery"
	"github.com/lysyi3m/rss-archive/app/feed"
)

// Registry holds an ordered list of format strategies. Strategies are tried
// in registration order and the first validator that accepts a document wins.
type Registry struct {
	strategies []Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

// DefaultRegistry knows RSS 2.0 only.
func DefaultRegistry() *Registry {
	return NewRegistry(Strategy{Validator: NewRSS20Validator(), Parser: NewRSS20Parser()})
}

func (r *Registry) Register(v Validator, p Parser) {
	r.strategies = append(r.strategies, Strategy{Validator: v, Parser: p})
}

func (r *Registry) Len() int {
	return len(r.strategies)
}

func (r *Registry) Resolve(doc *xmlquery.Node) (Parser, feed.Version, error) {
	for _, strategy := range r.strategies {
		version, err := strategy.Validator.Validate(doc)
		if err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				slog.Debug("Validator rejected document", "version", validationErr.Version, "reason", validationErr.Reason)
				continue
			}
			return nil, "", err
		}
		return strategy.Parser, version, nil
	}

	return nil, "", ErrParserNotFound
}

// Run parses a raw body and converts it with the first matching strategy.
func (r *Registry) Run(data []byte) (*feed.Feed, error) {
	doc, err := ParseDocument(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	p, _, err := r.Resolve(doc)
	if err != nil {
		return nil, err
	}

	return p.Parse(doc)
}

// ParseDocument reads a raw XML tree. Encodings other than UTF-8 are
// converted using the XML declaration.
func ParseDocument(r io.Reader) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if rootElement(doc) == nil {
		return nil, &ParseError{Err: errors.New("document has no root element")}
	}
	return doc, nil
}
