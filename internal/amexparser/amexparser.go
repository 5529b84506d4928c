// Package amexparser provides the line parser strategy for AMEX credit card
// statements.
//
// It handles two line shapes:
//   - Regular charges:  09/22/24 PAYPAL *STARBUCKS 8007827282 WA $25.00
//   - Payments/credits: 10/14/24* MOBILE PAYMENT - THANK YOU -$620.00
package amexparser

import (
	"regexp"

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

// Rules are tried top-to-bottom per line; first match wins. The payment rule
// comes first because its date carries a trailing asterisk that the charge
// rule would otherwise swallow into the merchant.
var (
	paymentRule = regexp.MustCompile(`(\d{2}/\d{2}/\d{2})\*\s+(.+?)\s+-\$([\d,]+\.\d{2})`)
	chargeRule  = regexp.MustCompile(`(\d{2}/\d{2}/\d{2})\s+(.+?)\s+\$([\d,]+\.\d{2})`)
)

// Strategy implements parser.Strategy for AMEX statements.
type Strategy struct{}

// New creates a new AMEX parser strategy.
func New() *Strategy {
	return &Strategy{}
}

// Issuer returns the issuer tag this strategy is keyed by.
func (s *Strategy) Issuer() models.Issuer {
	return models.IssuerAmex
}

// Parse scans every line of the document against the AMEX grammar.
// Non-matching lines are skipped silently.
func (s *Strategy) Parse(doc models.StatementDocument) []models.ParsedFragment {
	var fragments []models.ParsedFragment

	for _, line := range doc.Lines() {
		if m := paymentRule.FindStringSubmatch(line.Text); m != nil {
			fragments = append(fragments, models.ParsedFragment{
				DateRaw:     m[1],
				MerchantRaw: m[2],
				AmountRaw:   "-" + m[3],
				SignHint:    models.HintKind(models.KindPayment),
			})
			continue
		}
		if m := chargeRule.FindStringSubmatch(line.Text); m != nil {
			fragments = append(fragments, models.ParsedFragment{
				DateRaw:     m[1],
				MerchantRaw: m[2],
				AmountRaw:   m[3],
				SignHint:    models.HintKind(models.KindCharge),
			})
		}
	}

	log.WithFields(logrus.Fields{
		"source": doc.Source,
		"count":  len(fragments),
	}).Debug("Parsed AMEX statement")

	return fragments
}
