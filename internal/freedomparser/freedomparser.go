// Package freedomparser provides the line parser strategy for Chase Freedom
// credit card statements.
//
// Freedom statements print transaction dates without a year (MM/DD). The
// year is recovered from the statement period header:
//
//	Opening/Closing Date 03/01/24 - 03/31/24
//
// Section headers set the sign context for unsigned lines. Lines that print
// an explicit minus (refunds under PURCHASE, for instance) keep their sign
// and derive their kind from it.
package freedomparser

import (
	"regexp"
	"strconv"
	"strings"

	"finlens/statement-ledger/internal/models"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

var (
	periodRule = regexp.MustCompile(`Opening/Closing Date\s+\d{2}/\d{2}/(\d{2})`)

	transactionRule = regexp.MustCompile(
		`^(\d{2}/\d{2})\s+(.+?)\s+(-?\$?-?[\d,]+\.\d{2})\s*$`)
)

// Strategy implements parser.Strategy for Chase Freedom statements.
type Strategy struct {
	// DefaultYear is used when the statement period header is missing.
	// Fragments falling back to it are flagged low confidence.
	DefaultYear int
}

// New creates a new Freedom parser strategy.
func New(defaultYear int) *Strategy {
	return &Strategy{DefaultYear: defaultYear}
}

// Issuer returns the issuer tag this strategy is keyed by.
func (s *Strategy) Issuer() models.Issuer {
	return models.IssuerFreedom
}

// Parse scans the whole document for the period header first, then walks
// the lines collecting transaction fragments under section context.
func (s *Strategy) Parse(doc models.StatementDocument) []models.ParsedFragment {
	year, yearFound := s.statementYear(doc)

	var fragments []models.ParsedFragment
	kind := models.KindCharge

	for _, line := range doc.Lines() {
		text := strings.TrimSpace(line.Text)
		upper := strings.ToUpper(text)

		if strings.Contains(upper, "PAYMENTS AND OTHER CREDITS") {
			kind = models.KindPayment
			continue
		}
		if strings.Contains(upper, "PURCHASE") && !transactionRule.MatchString(text) {
			kind = models.KindCharge
			continue
		}

		m := transactionRule.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		amount := strings.ReplaceAll(m[3], "$", "")
		hint := models.HintKind(kind)
		if strings.HasPrefix(amount, "-") {
			// A printed sign wins over the section context.
			hint = nil
		} else if kind == models.KindPayment {
			amount = "-" + amount
		}

		fragments = append(fragments, models.ParsedFragment{
			DateRaw:       m[1],
			MerchantRaw:   m[2],
			AmountRaw:     amount,
			SignHint:      hint,
			Year:          year,
			LowConfidence: !yearFound,
		})
	}

	log.WithFields(logrus.Fields{
		"source": doc.Source,
		"count":  len(fragments),
		"year":   year,
	}).Debug("Parsed Freedom statement")

	return fragments
}

// statementYear extracts the closing year from the period header. The
// two-digit year expands to the 2000s.
func (s *Strategy) statementYear(doc models.StatementDocument) (int, bool) {
	for _, page := range doc.Pages {
		m := periodRule.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		yy, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return 2000 + yy, true
	}
	log.WithField("source", doc.Source).Warn("Statement period header not found, using default year")
	return s.DefaultYear, false
}
