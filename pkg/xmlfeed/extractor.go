package xmlfeed

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/metrics"
	"github.com/alim08/fin_quotes/pkg/models"
)

// Sub-element groups of a price report and the leaves read from each.
// The first occurrence of a group, and of a leaf within it, wins.
var reportLayout = map[string][]string{
	"TradDt":           {"Dt"},
	"SctyId":           {"TckrSymb"},
	"FinInstrmAttrbts": {"FrstPric", "LastPric", "RglrTxsQty"},
}

func fieldFor(raw *models.RawQuote, group, leaf string) **string {
	switch group + "/" + leaf {
	case "TradDt/Dt":
		return &raw.TradeDate
	case "SctyId/TckrSymb":
		return &raw.Ticker
	case "FinInstrmAttrbts/FrstPric":
		return &raw.OpenPrice
	case "FinInstrmAttrbts/LastPric":
		return &raw.ClosePrice
	case "FinInstrmAttrbts/RglrTxsQty":
		return &raw.Volume
	}
	return nil
}

// Extractor yields one RawQuote per price-report element, in document order.
type Extractor struct {
	resolver *Resolver
	log      *zap.Logger
}

func NewExtractor(resolver *Resolver, log *zap.Logger) *Extractor {
	return &Extractor{resolver: resolver, log: logger.Or(log)}
}

// Walk calls fn for each price-report element as it is read. Elements are
// delivered before the rest of the document is checked, so callers that must
// not act on a malformed document should buffer until Walk returns nil.
func (e *Extractor) Walk(rd io.Reader, fn func(models.RawQuote) error) error {
	return scan(rd, func(dec *xml.Decoder, se xml.StartElement) (bool, error) {
		if se.Name.Local != PriceReportElement || !e.resolver.Matches(se.Name.Space) {
			return false, nil
		}
		raw, err := readReport(dec, se.Name.Space)
		if err != nil {
			return true, &tokenError{err: err}
		}
		metrics.ExtractElements.WithLabelValues(raw.Namespace).Inc()
		return true, fn(raw)
	})
}

// Extract reads the whole document. On a parse failure no records are
// returned.
func (e *Extractor) Extract(rd io.Reader) ([]models.RawQuote, error) {
	start := time.Now()
	defer func() { metrics.ExtractLatency.Observe(time.Since(start).Seconds()) }()

	var out []models.RawQuote
	err := e.Walk(rd, func(raw models.RawQuote) error {
		out = append(out, raw)
		return nil
	})
	if err != nil {
		metrics.ExtractErrors.Inc()
		e.log.Warn("extraction aborted", zap.Int("elements_discarded", len(out)), zap.Error(err))
		return nil, err
	}
	e.log.Debug("extraction finished", zap.Int("elements", len(out)))
	return out, nil
}

// readReport consumes tokens up to the end of the current price report.
// Only elements in ns take part in the lookup; others are descended through.
func readReport(dec *xml.Decoder, ns string) (models.RawQuote, error) {
	raw := models.RawQuote{Namespace: ns}
	seenGroup := make(map[string]bool, len(reportLayout))
	seenLeaf := make(map[string]bool, 5)

	var (
		depth      int
		group      string
		groupDepth int
		leaf       **string
		leafDepth  int
		text       strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return raw, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Space != ns || leaf != nil {
				continue
			}
			if group == "" {
				if _, ok := reportLayout[t.Name.Local]; ok && !seenGroup[t.Name.Local] {
					seenGroup[t.Name.Local] = true
					group, groupDepth = t.Name.Local, depth
				}
				continue
			}
			key := group + "/" + t.Name.Local
			if dst := fieldFor(&raw, group, t.Name.Local); dst != nil && !seenLeaf[key] {
				seenLeaf[key] = true
				leaf, leafDepth = dst, depth
				text.Reset()
			}

		case xml.CharData:
			if leaf != nil && depth == leafDepth {
				text.Write(t)
			}

		case xml.EndElement:
			if depth == 0 {
				return raw, nil
			}
			if leaf != nil && depth == leafDepth {
				if s := text.String(); s != "" {
					*leaf = &s
				}
				leaf = nil
			}
			if group != "" && depth == groupDepth {
				group = ""
			}
			depth--
		}
	}
}
