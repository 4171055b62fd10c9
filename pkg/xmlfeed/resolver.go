// Package xmlfeed walks a market-data session document and pulls the raw
// text of every price-report element found under a known namespace.
package xmlfeed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// PriceReportElement is the local name of one per-security report.
const PriceReportElement = "PricRpt"

// ErrParse matches every ParseError via errors.Is.
var ErrParse = errors.New("document could not be parsed")

// ParseError reports a document whose top-level structure is malformed.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure at byte %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Resolver holds the closed set of namespace URIs price reports may live under.
type Resolver struct {
	candidates []string
	known      map[string]struct{}
}

// NewResolver builds a resolver over candidates; duplicates are dropped and
// order is kept.
func NewResolver(candidates []string) *Resolver {
	r := &Resolver{known: make(map[string]struct{}, len(candidates))}
	for _, c := range candidates {
		if _, dup := r.known[c]; dup || c == "" {
			continue
		}
		r.known[c] = struct{}{}
		r.candidates = append(r.candidates, c)
	}
	return r
}

// Candidates returns the namespace URIs in configured order.
func (r *Resolver) Candidates() []string {
	return append([]string(nil), r.candidates...)
}

// Matches reports whether space is one of the candidates.
func (r *Resolver) Matches(space string) bool {
	_, ok := r.known[space]
	return ok
}

// Resolve scans the whole document and returns the candidates that own at
// least one price-report element, in candidate order. A candidate with no
// match contributes nothing; an empty result is not an error.
func (r *Resolver) Resolve(rd io.Reader) ([]string, error) {
	found := make(map[string]bool, len(r.candidates))
	err := scan(rd, func(dec *xml.Decoder, se xml.StartElement) (bool, error) {
		if se.Name.Local == PriceReportElement && r.Matches(se.Name.Space) {
			found[se.Name.Space] = true
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	var out []string
	for _, c := range r.candidates {
		if found[c] {
			out = append(out, c)
		}
	}
	return out, nil
}

// tokenError marks a decoder failure raised while a callback was reading
// tokens, so scan can tell it apart from the callback's own errors.
type tokenError struct{ err error }

func (e *tokenError) Error() string { return e.err.Error() }

// scan drives a strict decoder over rd and calls fn for every start element.
// fn may consume the element's remaining tokens from dec and reports whether
// it did. The document must hold exactly one root element with nothing but
// whitespace, comments and processing instructions around it. Decoder
// failures are reported as *ParseError; errors returned by fn pass through
// untouched.
func scan(rd io.Reader, fn func(*xml.Decoder, xml.StartElement) (bool, error)) error {
	dec := xml.NewDecoder(rd)
	sawRoot := false
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ParseError{Offset: dec.InputOffset(), Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && sawRoot {
				return &ParseError{Offset: dec.InputOffset(), Err: errors.New("junk after document element")}
			}
			sawRoot = true
			depth++
			consumed, err := fn(dec, t)
			if err != nil {
				var te *tokenError
				if errors.As(err, &te) {
					return &ParseError{Offset: dec.InputOffset(), Err: te.err}
				}
				return err
			}
			if consumed {
				depth--
			}
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return &ParseError{Offset: dec.InputOffset(), Err: errors.New("text outside document element")}
			}
		}
	}
	if !sawRoot {
		return &ParseError{Offset: dec.InputOffset(), Err: errors.New("no root element")}
	}
	return nil
}
