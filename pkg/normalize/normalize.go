// Package normalize turns the raw text of a price report into a typed
// QuoteRecord and decides whether the record is admissible.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/alim08/fin_quotes/pkg/metrics"
	"github.com/alim08/fin_quotes/pkg/models"
	"github.com/alim08/fin_quotes/pkg/validation"
)

// RejectReason explains why a record was dropped. The zero value means the
// record was admitted.
type RejectReason string

const (
	Admitted      RejectReason = ""
	MissingTicker RejectReason = "missing_ticker"
	MissingDate   RejectReason = "missing_date"
	MissingPrices RejectReason = "missing_prices"
)

// Field names used for coercion warnings.
const (
	FieldTradeDate  = "trade_date"
	FieldOpenPrice  = "open_price"
	FieldClosePrice = "close_price"
	FieldVolume     = "volume"
)

// Column shapes of the quotes table.
const (
	PricePrecision  = 10
	VolumePrecision = 18
	Scale           = 2
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05"
)

var (
	errBadDate    = errors.New("unrecognized date shape")
	errOutOfRange = errors.New("value exceeds column precision")
)

// Stats counts what one Normalizer has seen.
type Stats struct {
	Seen     int                  `json:"seen"`
	Admitted int                  `json:"admitted"`
	Rejected map[RejectReason]int `json:"rejected"`
	Warnings map[string]int       `json:"coercion_warnings"`
}

// RejectedTotal sums rejections over all reasons.
func (s Stats) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// Normalizer converts raw quotes. It keeps running counters and is not safe
// for concurrent use.
type Normalizer struct {
	stats Stats
}

func NewNormalizer() *Normalizer {
	return &Normalizer{stats: Stats{
		Rejected: make(map[RejectReason]int),
		Warnings: make(map[string]int),
	}}
}

// Normalize converts raw. When the returned reason is not Admitted the
// record must be dropped.
func (n *Normalizer) Normalize(raw models.RawQuote) (models.QuoteRecord, RejectReason) {
	n.stats.Seen++

	var rec models.QuoteRecord
	if raw.Ticker != nil {
		rec.Ticker = CleanTicker(*raw.Ticker)
	}
	if text, ok := present(raw.TradeDate); ok {
		d, err := ParseTradeDate(text)
		if err != nil {
			n.warn(FieldTradeDate)
		} else {
			rec.TradeDate = d
		}
	}

	rec.OpenPrice = n.decimalField(raw.OpenPrice, PricePrecision, FieldOpenPrice)
	rec.ClosePrice = n.decimalField(raw.ClosePrice, PricePrecision, FieldClosePrice)
	rec.Volume = n.decimalField(raw.Volume, VolumePrecision, FieldVolume)

	if err := rec.Validate(); err != nil {
		return models.QuoteRecord{}, n.reject(rejectReason(err))
	}

	n.stats.Admitted++
	metrics.NormalizeCounter.Inc()
	return rec, Admitted
}

// NormalizeAll keeps the admissible records of raws in input order.
func (n *Normalizer) NormalizeAll(raws []models.RawQuote) []models.QuoteRecord {
	out := make([]models.QuoteRecord, 0, len(raws))
	for _, raw := range raws {
		if rec, reason := n.Normalize(raw); reason == Admitted {
			out = append(out, rec)
		}
	}
	return out
}

// Stats returns a copy of the counters.
func (n *Normalizer) Stats() Stats {
	out := Stats{
		Seen:     n.stats.Seen,
		Admitted: n.stats.Admitted,
		Rejected: make(map[RejectReason]int, len(n.stats.Rejected)),
		Warnings: make(map[string]int, len(n.stats.Warnings)),
	}
	for k, v := range n.stats.Rejected {
		out.Rejected[k] = v
	}
	for k, v := range n.stats.Warnings {
		out.Warnings[k] = v
	}
	return out
}

// rejectReason maps the first failing field of a record to its reason.
func rejectReason(err error) RejectReason {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		switch verrs[0].Field {
		case "Ticker":
			return MissingTicker
		case "TradeDate":
			return MissingDate
		}
	}
	return MissingPrices
}

func (n *Normalizer) reject(reason RejectReason) RejectReason {
	n.stats.Rejected[reason]++
	metrics.NormalizeRejections.WithLabelValues(string(reason)).Inc()
	return reason
}

func (n *Normalizer) warn(field string) {
	n.stats.Warnings[field]++
	metrics.NormalizeCoercionWarnings.WithLabelValues(field).Inc()
}

func (n *Normalizer) decimalField(p *string, precision int, field string) decimal.NullDecimal {
	text, ok := present(p)
	if !ok {
		return decimal.NullDecimal{}
	}
	d, err := ParseDecimal(text, precision, Scale)
	if err != nil {
		n.warn(field)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// present returns the trimmed text of p, and false when it is nil or blank.
func present(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	s := strings.TrimSpace(*p)
	return s, s != ""
}

// CleanTicker trims the ticker and cuts it to the column width. Overflow is
// truncated silently.
func CleanTicker(s string) string {
	s = validation.SanitizeString(s)
	if utf8.RuneCountInString(s) <= validation.MaxTickerLength {
		return s
	}
	return string([]rune(s)[:validation.MaxTickerLength])
}

// ParseTradeDate accepts YYYY-MM-DD and YYYY-MM-DDTHH:MM:SS with an optional
// trailing Z, and returns the calendar date at UTC midnight.
func ParseTradeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := dateLayout
	if strings.Contains(s, "T") {
		s = strings.TrimSuffix(s, "Z")
		layout = timestampLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errBadDate, s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// ParseDecimal parses s exactly, rounds it to scale digits and checks it fits
// a numeric(precision, scale) column.
func ParseDecimal(s string, precision, scale int) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, err
	}
	d = d.Round(int32(scale))
	limit := decimal.New(1, int32(precision-scale))
	if d.Abs().GreaterThanOrEqual(limit) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", errOutOfRange, s)
	}
	return d, nil
}
