// Package parser defines the Strategy interface implemented by each
// issuer-specific line parser, and the registry that maps detected issuers
// onto strategies.
package parser

import (
	"finlens/statement-ledger/internal/models"
)

// Strategy turns the raw lines of one statement into candidate transaction
// fragments using an issuer-specific grammar.
//
// Strategies try their match rules top-to-bottom per line; the first rule
// that matches wins and non-matching lines are silently skipped, since
// statements are full of headers, totals, and disclaimers. A strategy never
// fails: malformed input yields fewer fragments, not an error.
type Strategy interface {
	// Issuer returns the issuer tag this strategy is keyed by.
	Issuer() models.Issuer

	// Parse scans the document's lines in order and returns the candidate
	// fragments. Order matters: section headers flip the sign context for
	// the lines that follow them.
	Parse(doc models.StatementDocument) []models.ParsedFragment
}
