package models

import (
    "fmt"
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "github.com/alim08/fin_quotes/pkg/validation"
)

// RawQuote holds the untouched text of one price-report element.
// A nil field means the sub-element was absent or empty.
type RawQuote struct {
    Namespace  string
    TradeDate  *string
    Ticker     *string
    OpenPrice  *string
    ClosePrice *string
    Volume     *string
}

// QuoteRecord is the normalized, admissible form of a price report.
// It is never mutated after normalization.
type QuoteRecord struct {
    Ticker     string              `json:"ticker" validate:"required,ticker"`
    TradeDate  time.Time           `json:"trade_date" validate:"required"`
    OpenPrice  decimal.NullDecimal `json:"open_price"`
    ClosePrice decimal.NullDecimal `json:"close_price"`
    Volume     decimal.NullDecimal `json:"volume"`
}

// Validate checks the record is admissible: ticker and date present and
// at least one of the two prices.
func (q QuoteRecord) Validate() error {
    if errs := validation.ValidateStruct(q); len(errs) > 0 {
        return errs
    }
    if !q.OpenPrice.Valid && !q.ClosePrice.Valid {
        return validation.ValidationErrors{{Field: "OpenPrice", Message: "open_price or close_price is required"}}
    }
    return nil
}

// Key identifies the (ticker, trade_date) slot used by the upsert policy.
func (q QuoteRecord) Key() string {
    return q.Ticker + "|" + q.TradeDate.Format("2006-01-02")
}

// QuoteRow is a persisted QuoteRecord with its surrogate identity.
type QuoteRow struct {
    ID int64 `json:"id"`
    QuoteRecord
}

// MergePolicy selects how records colliding on (ticker, trade_date) are stored.
type MergePolicy string

const (
    // PolicyAppend inserts every record as a new row.
    PolicyAppend MergePolicy = "append"
    // PolicyUpsert merges records onto the row keyed by (ticker, trade_date).
    PolicyUpsert MergePolicy = "upsert"
)

// ParseMergePolicy accepts "append" or "upsert" in any case.
func ParseMergePolicy(s string) (MergePolicy, error) {
    switch p := MergePolicy(strings.ToLower(strings.TrimSpace(s))); p {
    case PolicyAppend, PolicyUpsert:
        return p, nil
    default:
        return "", fmt.Errorf("unknown merge policy %q", s)
    }
}

func (p MergePolicy) String() string { return string(p) }
