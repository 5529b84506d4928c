// Package zolveparser provides the line parser strategy for ZOLVE credit
// card statements.
//
// ZOLVE statements split transactions into two sections whose headers flip
// the sign context: "Payments and Other Credits" (negative) and "Purchases
// and Cash Advances" (positive). Most lines are unsigned and take the
// section's sign; a line with an explicit minus keeps it. Each transaction
// line carries a posted date, the transaction date, a description, and the
// amount:
//
//	01/05/2024 01/03/2024 COSTCO WHSE #1190 SAN JOSE $231.18
package zolveparser

import (
	"regexp"
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

// Section headers and the line rule. The transaction date is the second of
// the two dates; the posted date is dropped during normalization.
const (
	creditsHeader   = "Payments and Other Credits"
	purchasesHeader = "Purchases and Cash Advances"
)

var transactionRule = regexp.MustCompile(
	`^(\d{2}/\d{2}/\d{4})\s+(\d{2}/\d{2}/\d{4})\s+(.+?)\s+(-?\$?-?[\d,]+\.\d{2})\s*$`)

// Strategy implements parser.Strategy for ZOLVE statements.
type Strategy struct{}

// New creates a new ZOLVE parser strategy.
func New() *Strategy {
	return &Strategy{}
}

// Issuer returns the issuer tag this strategy is keyed by.
func (s *Strategy) Issuer() models.Issuer {
	return models.IssuerZolve
}

// Parse walks the document's lines in order, tracking which section the
// cursor is in so each fragment gets the right sign hint.
func (s *Strategy) Parse(doc models.StatementDocument) []models.ParsedFragment {
	var fragments []models.ParsedFragment

	inTransactions := false
	kind := models.KindCharge

	for _, line := range doc.Lines() {
		text := strings.TrimSpace(line.Text)

		// Column headers and subtotals are layout, not data.
		if strings.Contains(text, "Posted Date") || strings.Contains(text, "Sub Total") {
			continue
		}

		if strings.Contains(text, creditsHeader) {
			inTransactions = true
			kind = models.KindPayment
			continue
		}
		if strings.Contains(text, purchasesHeader) {
			inTransactions = true
			kind = models.KindCharge
			continue
		}

		if !inTransactions {
			continue
		}

		m := transactionRule.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		amount := strings.ReplaceAll(m[4], "$", "")
		hint := models.HintKind(kind)
		if strings.HasPrefix(amount, "-") {
			// A printed sign wins over the section context.
			hint = nil
		} else if kind == models.KindPayment {
			amount = "-" + amount
		}

		fragments = append(fragments, models.ParsedFragment{
			DateRaw:     m[2],
			MerchantRaw: m[3],
			AmountRaw:   amount,
			SignHint:    hint,
		})
	}

	log.WithFields(logrus.Fields{
		"source": doc.Source,
		"count":  len(fragments),
	}).Debug("Parsed ZOLVE statement")

	return fragments
}
