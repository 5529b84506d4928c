// Package detector classifies which issuer grammar applies to a statement
// from its first page of text.
package detector

import (
	"context"
	"strings"

	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/parsererror"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// Detector resolves a statement's issuer from its first page. Implementations
// must be deterministic for identical input and must return exactly one tag
// from the closed issuer set, or IssuerUnknown with an error.
type Detector interface {
	Detect(ctx context.Context, doc models.StatementDocument) (models.Issuer, error)
}

// issuerMarkers maps each supported issuer to text markers found on the
// first page of its statements. Checked in a fixed order so detection is
// deterministic.
var issuerMarkers = []struct {
	issuer  models.Issuer
	markers []string
}{
	{models.IssuerAmex, []string{"AMERICAN EXPRESS", "AMEX", "americanexpress.com"}},
	{models.IssuerZolve, []string{"ZOLVE", "Zolve Credit Card"}},
	{models.IssuerFreedom, []string{"CHASE FREEDOM", "FREEDOM", "Opening/Closing Date"}},
}

// KeywordDetector resolves the issuer by scanning the first page for
// issuer-specific markers. It is the default, fully offline detector.
type KeywordDetector struct{}

// NewKeywordDetector creates a new keyword-based detector.
func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{}
}

// Detect implements Detector.
func (d *KeywordDetector) Detect(_ context.Context, doc models.StatementDocument) (models.Issuer, error) {
	firstPage := strings.ToUpper(doc.FirstPage())

	for _, entry := range issuerMarkers {
		for _, marker := range entry.markers {
			if strings.Contains(firstPage, strings.ToUpper(marker)) {
				log.WithFields(logrus.Fields{
					"source": doc.Source,
					"issuer": entry.issuer,
					"marker": marker,
				}).Debug("Detected statement issuer")
				return entry.issuer, nil
			}
		}
	}

	return models.IssuerUnknown, &parsererror.UnrecognizedFormatError{
		Source:  doc.Source,
		Snippet: snippet(doc.FirstPage()),
	}
}

// IssuerClassifier is the AI collaborator contract for issuer detection:
// first-page text in, one label out. The label is coerced to the closed set
// by AIDetector, so implementations may return raw model output.
type IssuerClassifier interface {
	ClassifyIssuer(ctx context.Context, firstPage string) (string, error)
}

// AIDetector delegates issuer detection to an external classifier and falls
// back to keyword matching when the classifier fails or returns a label
// outside the closed set.
type AIDetector struct {
	classifier IssuerClassifier
	fallback   *KeywordDetector
}

// NewAIDetector creates a detector backed by the given classifier.
func NewAIDetector(classifier IssuerClassifier) *AIDetector {
	return &AIDetector{
		classifier: classifier,
		fallback:   NewKeywordDetector(),
	}
}

// Detect implements Detector.
func (d *AIDetector) Detect(ctx context.Context, doc models.StatementDocument) (models.Issuer, error) {
	label, err := d.classifier.ClassifyIssuer(ctx, doc.FirstPage())
	if err != nil {
		log.WithError(err).WithField("source", doc.Source).
			Warn("Issuer classifier failed, falling back to keyword detection")
		return d.fallback.Detect(ctx, doc)
	}

	issuer := models.ParseIssuer(label)
	if issuer == models.IssuerUnknown {
		log.WithFields(logrus.Fields{
			"source": doc.Source,
			"label":  label,
		}).Warn("Issuer classifier returned out-of-set label, falling back to keyword detection")
		return d.fallback.Detect(ctx, doc)
	}

	return issuer, nil
}

func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > 40 {
		return text[:40]
	}
	return text
}
