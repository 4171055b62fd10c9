package xmlfeed

import "fmt"

const (
	ns052 = "urn:bvmf.052.01.xsd"
	ns217 = "urn:bvmf.217.01.xsd"
)

// priceReport renders one PricRpt; empty arguments omit the sub-element.
func priceReport(date, ticker, open, close, volume string) string {
	out := "<PricRpt>"
	if date != "" {
		out += fmt.Sprintf("<TradDt><Dt>%s</Dt></TradDt>", date)
	}
	if ticker != "" {
		out += fmt.Sprintf("<SctyId><TckrSymb>%s</TckrSymb></SctyId>", ticker)
	}
	out += "<FinInstrmAttrbts>"
	if open != "" {
		out += fmt.Sprintf("<FrstPric Ccy=\"BRL\">%s</FrstPric>", open)
	}
	if close != "" {
		out += fmt.Sprintf("<LastPric Ccy=\"BRL\">%s</LastPric>", close)
	}
	if volume != "" {
		out += fmt.Sprintf("<RglrTxsQty>%s</RglrTxsQty>", volume)
	}
	out += "</FinInstrmAttrbts></PricRpt>"
	return out
}

// sessionDocument wraps reports the way the exchange file nests them: an
// outer 052 envelope holding a 217 document.
func sessionDocument(reports ...string) string {
	body := ""
	for _, r := range reports {
		body += r
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<Document xmlns="` + ns052 + `"><BizFileHdr><Xchg><BizGrp>` +
		`<Document xmlns="` + ns217 + `">` + body + `</Document>` +
		`</BizGrp></Xchg></BizFileHdr></Document>`
}
