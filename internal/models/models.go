// Package models provides the data structures used throughout the application.
package models

import (
	"strings"
)

// Kind distinguishes money leaving the account from money paid back onto it.
type Kind string

const (
	// KindCharge is a purchase or cash advance. Amount is non-negative.
	KindCharge Kind = "CHARGE"
	// KindPayment is a payment or credit onto the account. Amount is non-positive.
	KindPayment Kind = "PAYMENT"
)

// Issuer identifies the financial institution whose statement grammar applies.
type Issuer string

const (
	IssuerAmex    Issuer = "AMEX"
	IssuerZolve   Issuer = "ZOLVE"
	IssuerFreedom Issuer = "FREEDOM"
	IssuerUnknown Issuer = "UNKNOWN"
)

// KnownIssuers lists the closed set of issuers the detector may return.
var KnownIssuers = []Issuer{IssuerAmex, IssuerZolve, IssuerFreedom}

// ParseIssuer maps a free-form string onto the closed issuer set.
// Anything outside the set becomes IssuerUnknown.
func ParseIssuer(s string) Issuer {
	switch Issuer(strings.ToUpper(strings.TrimSpace(s))) {
	case IssuerAmex:
		return IssuerAmex
	case IssuerZolve:
		return IssuerZolve
	case IssuerFreedom:
		return IssuerFreedom
	default:
		return IssuerUnknown
	}
}

// Namespace names the coarse category buckets that scope similarity search.
const (
	NamespaceHousing       = "Housing"
	NamespaceGrocery       = "Grocery"
	NamespaceFun           = "Fun"
	NamespaceInvestment    = "Investment"
	NamespaceMiscellaneous = "Miscellaneous"
)

// Namespaces returns the fixed closed set of similarity-search namespaces.
func Namespaces() []string {
	return []string{
		NamespaceHousing,
		NamespaceGrocery,
		NamespaceFun,
		NamespaceInvestment,
		NamespaceMiscellaneous,
	}
}

// CoerceNamespace validates a namespace label against the closed set.
// Invalid or out-of-set labels collapse to Miscellaneous.
func CoerceNamespace(s string) string {
	s = strings.TrimSpace(s)
	for _, ns := range Namespaces() {
		if strings.EqualFold(s, ns) {
			return ns
		}
	}
	return NamespaceMiscellaneous
}

// StatementDocument is the ordered page text of one statement.
// It is immutable once constructed; the pipeline owns it transiently.
type StatementDocument struct {
	Source string
	Pages  []string
}

// RawLine is a single line of page text. Each line is consumed by exactly
// one parser strategy.
type RawLine struct {
	Page int
	Text string
}

// FirstPage returns the text of the first page, or "" for an empty document.
// Issuer detection only ever looks at the first page.
func (d StatementDocument) FirstPage() string {
	if len(d.Pages) == 0 {
		return ""
	}
	return d.Pages[0]
}

// Lines splits all pages into raw lines, preserving page order and
// dropping blank lines.
func (d StatementDocument) Lines() []RawLine {
	var lines []RawLine
	for page, text := range d.Pages {
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			lines = append(lines, RawLine{Page: page, Text: line})
		}
	}
	return lines
}

// ParsedFragment is a partially-parsed candidate transaction produced by a
// parser strategy or the fallback tagger. Fields are raw statement text;
// the normalizer decides whether the fragment survives.
type ParsedFragment struct {
	DateRaw     string
	MerchantRaw string
	AmountRaw   string

	// SignHint carries the kind implied by grammar context (a payment
	// marker or section header). Nil when the line itself is neutral.
	SignHint *Kind

	// Year supplies the billing year for month/day-only dates.
	// Zero when DateRaw carries its own year.
	Year int

	// LowConfidence marks fragments whose year had to be assumed rather
	// than recovered from a statement header.
	LowConfidence bool
}

// HintKind is a convenience for building a SignHint in strategy tables.
func HintKind(k Kind) *Kind {
	return &k
}
