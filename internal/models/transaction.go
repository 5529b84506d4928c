package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the canonical, normalized unit of record.
// It is created by the normalizer and mutated only by the classification
// engine, which fills Category and Note. After handoff to persistence it is
// never mutated again.
type Transaction struct {
	Date     time.Time
	Merchant string
	Amount   decimal.Decimal
	Kind     Kind
	Issuer   Issuer
	Category string
	Note     string

	// LowConfidence is inherited from the fragment when the billing year
	// had to be assumed.
	LowConfidence bool
}

// Fingerprint returns the idempotency identity for external writes.
// Two transactions with the same date, merchant, amount, and issuer are the
// same record, so a retried write after a transient failure cannot duplicate.
func (t Transaction) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		t.Date.Format("2006-01-02"), t.Merchant, t.Amount.StringFixed(2), t.Issuer)
}

// SearchText renders the short textual description used for embedding and
// similarity search.
func (t Transaction) SearchText() string {
	return fmt.Sprintf("Transaction: %s for amount $%s on %s",
		t.Merchant, t.Amount.Abs().StringFixed(2), t.Date.Format("2006-01-02"))
}

// VectorID returns the stable identifier under which a classified
// transaction is written back to the similarity index.
func (t Transaction) VectorID() string {
	return fmt.Sprintf("%s_%s", t.Date.Format("2006-01-02"),
		strings.ReplaceAll(t.Merchant, " ", "_"))
}

// Record is the canonical output shape for one transaction, shared by the
// JSON API surface and the CSV export.
type Record struct {
	Date     string  `json:"date" csv:"Date"`
	Merchant string  `json:"merchant" csv:"Merchant"`
	Amount   float64 `json:"amount" csv:"Amount"`
	Type     string  `json:"type" csv:"Type"`
	Card     string  `json:"card" csv:"Card"`
	Category string  `json:"category" csv:"Category"`
	Note     string  `json:"note" csv:"Note"`
}

// Record converts the transaction to its canonical output record.
func (t Transaction) Record() Record {
	amount, _ := t.Amount.Float64()
	return Record{
		Date:     t.Date.Format("2006-01-02"),
		Merchant: t.Merchant,
		Amount:   amount,
		Type:     string(t.Kind),
		Card:     string(t.Issuer),
		Category: t.Category,
		Note:     t.Note,
	}
}

// MarshalJSON emits the canonical record shape rather than the internal
// representation, so a Transaction can be returned directly from an API.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Record())
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims a merchant string and collapses internal runs of
// whitespace to single spaces. No truncation is applied.
func CollapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}
