// Package normalizer converts parsed fragments into canonical transactions.
// It is the single place where the sign invariant is enforced: a CHARGE
// carries a non-negative amount and a PAYMENT a non-positive one,
// regardless of how the issuer printed the line.
package normalizer

import (
	"errors"
	"strings"
	"time"

	"finlens/statement-ledger/internal/dateutils"
	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/parsererror"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// Normalize turns a raw fragment into a transaction, or rejects it with a
// typed fragment-level error. Normalization is idempotent: re-normalizing
// the textual form of its own output yields the same transaction.
func Normalize(frag models.ParsedFragment, issuer models.Issuer) (models.Transaction, error) {
	date, err := parseDate(frag)
	if err != nil {
		return models.Transaction{}, err
	}

	amount, err := parseAmount(frag.AmountRaw)
	if err != nil {
		return models.Transaction{}, err
	}
	if amount.IsZero() {
		return models.Transaction{}, &parsererror.InvalidAmountError{
			Raw:    frag.AmountRaw,
			Reason: "zero amount",
		}
	}

	kind := deriveKind(frag, amount)
	amount = enforceSign(kind, amount)

	tx := models.Transaction{
		Date:          date,
		Merchant:      cleanMerchant(frag.MerchantRaw),
		Amount:        amount,
		Kind:          kind,
		Issuer:        issuer,
		LowConfidence: frag.LowConfidence,
	}

	log.WithFields(logrus.Fields{
		"merchant": tx.Merchant,
		"amount":   tx.Amount.String(),
		"kind":     tx.Kind,
	}).Trace("Normalized fragment")

	return tx, nil
}

// parseDate handles both self-contained dates and yearless MM/DD dates
// whose year the parser recovered from the statement header.
func parseDate(frag models.ParsedFragment) (time.Time, error) {
	cleaned := dateutils.CleanDateString(frag.DateRaw)

	if isMonthDay(cleaned) {
		if frag.Year == 0 {
			return time.Time{}, &parsererror.InvalidDateError{
				Raw: frag.DateRaw,
				Err: errMissingYear,
			}
		}
		date, err := dateutils.ParseMonthDay(cleaned, frag.Year)
		if err != nil {
			return time.Time{}, &parsererror.InvalidDateError{Raw: frag.DateRaw, Err: err}
		}
		return date, nil
	}

	date, err := dateutils.ParseStatementDate(cleaned)
	if err != nil {
		return time.Time{}, &parsererror.InvalidDateError{Raw: frag.DateRaw, Err: err}
	}
	return date, nil
}

var errMissingYear = errors.New("month/day date without a billing year")

func isMonthDay(cleaned string) bool {
	return strings.Count(cleaned, "/") == 1
}

func parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Zero, &parsererror.InvalidAmountError{Raw: raw, Reason: "empty amount"}
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &parsererror.InvalidAmountError{Raw: raw, Reason: "not a number"}
	}
	return amount, nil
}

// deriveKind trusts the parser's sign hint when present, otherwise the
// amount sign decides.
func deriveKind(frag models.ParsedFragment, amount decimal.Decimal) models.Kind {
	if frag.SignHint != nil {
		return *frag.SignHint
	}
	if amount.IsNegative() {
		return models.KindPayment
	}
	return models.KindCharge
}

// enforceSign makes the stored amount consistent with the kind: charges
// non-negative, payments non-positive.
func enforceSign(kind models.Kind, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case models.KindPayment:
		if amount.IsPositive() {
			return amount.Neg()
		}
	case models.KindCharge:
		if amount.IsNegative() {
			return amount.Neg()
		}
	}
	return amount
}

func cleanMerchant(raw string) string {
	cleaned := models.CollapseWhitespace(strings.TrimSpace(raw))
	return strings.Trim(cleaned, "*")
}
