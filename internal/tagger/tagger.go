// Package tagger is the statistical fallback extractor used when no parser
// strategy is registered for an issuer, or a registered strategy finds
// nothing. It labels line tokens with BIO tags (DATE, MERCHANT, AMOUNT)
// using shape features and a small lexicon, then assembles the longest
// contiguous run of each label into a fragment.
//
// The tagger is tolerant by design of the pipeline contract: it returns
// fewer fragments rather than an error, and every fragment it emits is
// marked low confidence.
package tagger

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

type label int

const (
	labelOther label = iota
	labelDate
	labelMerchant
	labelAmount
)

var (
	dateShape   = regexp.MustCompile(`^\d{1,2}/\d{1,2}(/\d{2,4})?\*?$`)
	amountShape = regexp.MustCompile(`^-?\$?-?[\d,]+\.\d{2}$`)
	numberShape = regexp.MustCompile(`^[\d,.#*-]+$`)
)

// Tokens that never belong to a merchant name. Keeps column headers and
// summary rows from producing garbage fragments.
var stopwords = map[string]struct{}{
	"TOTAL":    {},
	"SUBTOTAL": {},
	"SUB":      {},
	"BALANCE":  {},
	"DATE":     {},
	"POSTED":   {},
	"AMOUNT":   {},
	"PAGE":     {},
}

// Tagger extracts fragments from lines no grammar could handle.
type Tagger struct{}

// New creates a fallback tagger.
func New() *Tagger {
	return &Tagger{}
}

// Extract labels each line's tokens and assembles fragments. A line
// contributes only when it carries a date and at least one of merchant or
// amount.
func (t *Tagger) Extract(doc models.StatementDocument) []models.ParsedFragment {
	var fragments []models.ParsedFragment

	for _, line := range doc.Lines() {
		frag, ok := t.extractLine(line.Text)
		if ok {
			fragments = append(fragments, frag)
		}
	}

	log.WithFields(logrus.Fields{
		"source": doc.Source,
		"count":  len(fragments),
	}).Debug("Fallback tagger extracted fragments")

	return fragments
}

func (t *Tagger) extractLine(text string) (models.ParsedFragment, bool) {
	tokens := strings.Fields(text)
	if len(tokens) < 2 {
		return models.ParsedFragment{}, false
	}

	labels := make([]label, len(tokens))
	for i, tok := range tokens {
		labels[i] = classifyToken(tok)
	}

	date := longestRun(tokens, labels, labelDate)
	merchant := longestRun(tokens, labels, labelMerchant)
	amount := longestRun(tokens, labels, labelAmount)

	if date == "" || (merchant == "" && amount == "") {
		return models.ParsedFragment{}, false
	}

	return models.ParsedFragment{
		DateRaw:       date,
		MerchantRaw:   merchant,
		AmountRaw:     strings.ReplaceAll(amount, "$", ""),
		LowConfidence: true,
	}, true
}

func classifyToken(tok string) label {
	switch {
	case dateShape.MatchString(tok):
		return labelDate
	case amountShape.MatchString(tok):
		return labelAmount
	case isStopword(tok):
		return labelOther
	case numberShape.MatchString(tok):
		return labelOther
	case isLowercaseWord(tok):
		// Statement merchants print in upper or title case; bare
		// lowercase words are prose around them.
		return labelOther
	default:
		return labelMerchant
	}
}

func isStopword(tok string) bool {
	_, ok := stopwords[strings.ToUpper(strings.Trim(tok, ":"))]
	return ok
}

func isLowercaseWord(tok string) bool {
	hasLetter := false
	for _, r := range tok {
		if r >= 'A' && r <= 'Z' {
			return false
		}
		if r >= 'a' && r <= 'z' {
			hasLetter = true
		}
	}
	return hasLetter
}

// longestRun joins the longest contiguous span of tokens carrying the
// wanted label. For dates and amounts that span is usually a single token;
// for merchants it recovers multi-word names.
func longestRun(tokens []string, labels []label, want label) string {
	bestStart, bestLen := -1, 0
	start, length := -1, 0

	for i := range labels {
		if labels[i] == want {
			if start < 0 {
				start = i
			}
			length++
			if length > bestLen {
				bestStart, bestLen = start, length
			}
			continue
		}
		start, length = -1, 0
	}

	if bestStart < 0 {
		return ""
	}
	return strings.Join(tokens[bestStart:bestStart+bestLen], " ")
}
