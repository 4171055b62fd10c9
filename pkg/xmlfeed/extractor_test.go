package xmlfeed

import (
	"errors"
	"strings"
	"testing"

	"github.com/alim08/fin_quotes/pkg/models"
)

func deref(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func newTestExtractor(candidates ...string) *Extractor {
	if len(candidates) == 0 {
		candidates = []string{ns052, ns217}
	}
	return NewExtractor(NewResolver(candidates), nil)
}

func TestExtract_DocumentOrderAndFields(t *testing.T) {
	doc := sessionDocument(
		priceReport("2025-09-23", "PETR4", "30.10", "30.55", "12345"),
		priceReport("2025-09-23T23:12:53Z", "VALE3", "", "61.02", ""),
		priceReport("2025-09-23", "PETR4", "30.20", "30.70", "99"),
	)

	raws, err := newTestExtractor().Extract(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("got %d records; want 3", len(raws))
	}

	first := raws[0]
	if deref(first.Ticker) != "PETR4" || deref(first.TradeDate) != "2025-09-23" ||
		deref(first.OpenPrice) != "30.10" || deref(first.ClosePrice) != "30.55" || deref(first.Volume) != "12345" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if first.Namespace != ns217 {
		t.Errorf("Namespace = %q; want %q", first.Namespace, ns217)
	}

	second := raws[1]
	if second.OpenPrice != nil || second.Volume != nil {
		t.Errorf("absent fields should be nil: open=%s volume=%s", deref(second.OpenPrice), deref(second.Volume))
	}
	if deref(second.TradeDate) != "2025-09-23T23:12:53Z" {
		t.Errorf("TradeDate = %s", deref(second.TradeDate))
	}

	if deref(raws[2].ClosePrice) != "30.70" {
		t.Errorf("document order not kept: %+v", raws[2])
	}
}

func TestExtract_MissingSubElements(t *testing.T) {
	doc := sessionDocument(
		priceReport("", "PETR4", "1", "2", ""),
		priceReport("2025-09-23", "", "1", "2", ""),
		`<PricRpt/>`,
	)
	raws, err := newTestExtractor().Extract(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("got %d records; want 3", len(raws))
	}
	if raws[0].TradeDate != nil {
		t.Errorf("expected nil date, got %q", deref(raws[0].TradeDate))
	}
	if raws[1].Ticker != nil {
		t.Errorf("expected nil ticker, got %q", deref(raws[1].Ticker))
	}
	if raws[2] != (models.RawQuote{Namespace: ns217}) {
		t.Errorf("empty report should carry only its namespace: %+v", raws[2])
	}
}

func TestExtract_NamespaceFiltering(t *testing.T) {
	doc := `<Root xmlns:a="` + ns052 + `" xmlns:b="` + ns217 + `" xmlns:o="urn:other.01.xsd">` +
		`<a:PricRpt><a:SctyId><a:TckrSymb>AAA1</a:TckrSymb></a:SctyId></a:PricRpt>` +
		`<o:PricRpt><o:SctyId><o:TckrSymb>OTHER</o:TckrSymb></o:SctyId></o:PricRpt>` +
		`<b:PricRpt><b:SctyId><o:TckrSymb>FOREIGN</o:TckrSymb><b:TckrSymb>BBB2</b:TckrSymb></b:SctyId></b:PricRpt>` +
		`</Root>`

	t.Run("union of candidates in document order", func(t *testing.T) {
		raws, err := newTestExtractor().Extract(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if len(raws) != 2 {
			t.Fatalf("got %d records; want 2", len(raws))
		}
		if deref(raws[0].Ticker) != "AAA1" || raws[0].Namespace != ns052 {
			t.Errorf("first = %+v", raws[0])
		}
		if deref(raws[1].Ticker) != "BBB2" || raws[1].Namespace != ns217 {
			t.Errorf("second = %s in %s", deref(raws[1].Ticker), raws[1].Namespace)
		}
	})

	t.Run("single candidate", func(t *testing.T) {
		raws, err := newTestExtractor(ns217).Extract(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if len(raws) != 1 || deref(raws[0].Ticker) != "BBB2" {
			t.Errorf("unexpected records: %+v", raws)
		}
	})
}

func TestExtract_FirstMatchWins(t *testing.T) {
	doc := `<Document xmlns="` + ns217 + `"><PricRpt>` +
		`<SctyId><TckrSymb>FIRST</TckrSymb><TckrSymb>SECOND</TckrSymb></SctyId>` +
		`<SctyId><TckrSymb>THIRD</TckrSymb></SctyId>` +
		`<FinInstrmAttrbts><Nested><LastPric>10.5</LastPric></Nested></FinInstrmAttrbts>` +
		`</PricRpt></Document>`
	raws, err := newTestExtractor().Extract(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := deref(raws[0].Ticker); got != "FIRST" {
		t.Errorf("Ticker = %q; want FIRST", got)
	}
	if got := deref(raws[0].ClosePrice); got != "10.5" {
		t.Errorf("ClosePrice = %q; want descendant lookup to find 10.5", got)
	}
}

func TestExtract_ParseFailure(t *testing.T) {
	cases := map[string]string{
		"unclosed root":   sessionDocument(priceReport("2025-09-23", "PETR4", "1", "2", ""))[:200],
		"mismatched tags": `<Document xmlns="` + ns217 + `"><PricRpt></Document></PricRpt>`,
		"empty":           "",
		"not xml":         "PK\x03\x04 zip bytes",
		"two roots": sessionDocument(priceReport("2025-09-23", "PETR4", "1", "2", "")) +
			`<Document xmlns="` + ns217 + `">` + priceReport("2025-09-23", "VALE3", "1", "2", "") + `</Document>`,
		"trailing junk": sessionDocument(priceReport("2025-09-23", "PETR4", "1", "2", "")) + "garbage after root",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			raws, err := newTestExtractor().Extract(strings.NewReader(doc))
			if err == nil {
				t.Fatal("expected parse failure")
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("error %v does not match ErrParse", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %T is not *ParseError", err)
			}
			if raws != nil {
				t.Errorf("expected no partial output, got %d records", len(raws))
			}
		})
	}
}

func TestExtract_TrailingMiscAfterRoot(t *testing.T) {
	doc := sessionDocument(priceReport("2025-09-23", "PETR4", "1", "2", "")) +
		"\n<!-- generated 2025-09-23 -->\n<?audit ok?>\n"

	raws, err := newTestExtractor().Extract(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("got %d records; want 1", len(raws))
	}
}

func TestWalk_CallbackErrorPassesThrough(t *testing.T) {
	stop := errors.New("stop")
	doc := sessionDocument(priceReport("2025-09-23", "PETR4", "1", "2", ""), priceReport("2025-09-23", "VALE3", "1", "2", ""))

	calls := 0
	err := newTestExtractor().Walk(strings.NewReader(doc), func(models.RawQuote) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("err = %v; want stop", err)
	}
	if errors.Is(err, ErrParse) {
		t.Error("callback error must not be reported as a parse failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1", calls)
	}
}
