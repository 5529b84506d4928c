// Package dateutils provides the date parsing used by the field normalizer.
// US card statements carry dates as MM/DD/YY or MM/DD/YYYY, sometimes with
// stray punctuation (a trailing asterisk marks payments on AMEX statements),
// and sometimes as bare MM/DD with the year recovered from a statement header.
package dateutils

import (
	"fmt"
	"strings"
	"time"
)

// Layout constants for the statement date shapes we accept.
const (
	DateLayoutISO      = "2006-01-02"
	DateLayoutShortUS  = "01/02/06"
	DateLayoutLongUS   = "01/02/2006"
	DateLayoutMonthDay = "01/02"
)

// statementFormats is tried in order when parsing a self-contained date.
var statementFormats = []string{
	DateLayoutShortUS,
	DateLayoutLongUS,
	DateLayoutISO,
	"1/2/06",
	"1/2/2006",
}

// CleanDateString strips the punctuation statements sprinkle around dates:
// commas, asterisks, and all spaces.
func CleanDateString(dateStr string) string {
	r := strings.NewReplacer(",", "", "*", "", " ", "")
	return r.Replace(strings.TrimSpace(dateStr))
}

// ParseStatementDate parses a raw statement date carrying its own year.
// The raw value is cleaned first; unparseable input is an error for the
// caller to turn into a fragment rejection.
func ParseStatementDate(raw string) (time.Time, error) {
	cleaned := CleanDateString(raw)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, format := range statementFormats {
		if t, err := time.Parse(format, cleaned); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %s", cleaned)
}

// ParseMonthDay parses a yearless MM/DD date against an externally supplied
// billing year.
func ParseMonthDay(raw string, year int) (time.Time, error) {
	cleaned := CleanDateString(raw)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, format := range []string{DateLayoutMonthDay, "1/2"} {
		if t, err := time.Parse(format, cleaned); err == nil {
			return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported month/day format: %s", cleaned)
}

// ToISODate formats a date in the canonical YYYY-MM-DD output form.
func ToISODate(date time.Time) string {
	return date.Format(DateLayoutISO)
}
