package detector

import (
	"context"
	"errors"
	"testing"

	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/parsererror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordDetector(t *testing.T) {
	tests := []struct {
		name      string
		firstPage string
		expected  models.Issuer
	}{
		{"amex full name", "AMERICAN EXPRESS\nPrepared for JOHN DOE", models.IssuerAmex},
		{"amex lowercase url", "visit americanexpress.com for details", models.IssuerAmex},
		{"zolve", "Zolve Credit Card Statement\nPosted Date", models.IssuerZolve},
		{"freedom", "CHASE FREEDOM\nOpening/Closing Date 03/01/24", models.IssuerFreedom},
		{"freedom by header only", "Account summary\nOpening/Closing Date 03/01/24", models.IssuerFreedom},
	}

	d := NewKeywordDetector()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := models.StatementDocument{Source: "s.txt", Pages: []string{tc.firstPage}}
			issuer, err := d.Detect(context.Background(), doc)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, issuer)
		})
	}
}

func TestKeywordDetectorUnknown(t *testing.T) {
	d := NewKeywordDetector()
	doc := models.StatementDocument{Source: "mystery.txt", Pages: []string{"Dear customer, thank you"}}

	issuer, err := d.Detect(context.Background(), doc)
	assert.Equal(t, models.IssuerUnknown, issuer)

	var formatErr *parsererror.UnrecognizedFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "mystery.txt", formatErr.Source)
}

func TestKeywordDetectorDeterministic(t *testing.T) {
	d := NewKeywordDetector()
	// A page mentioning several issuers must always resolve the same way.
	doc := models.StatementDocument{Pages: []string{"AMEX payment to CHASE FREEDOM"}}

	first, err := d.Detect(context.Background(), doc)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		issuer, err := d.Detect(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, first, issuer)
	}
}

type stubClassifier struct {
	label string
	err   error
}

func (s *stubClassifier) ClassifyIssuer(_ context.Context, _ string) (string, error) {
	return s.label, s.err
}

func TestAIDetector(t *testing.T) {
	doc := models.StatementDocument{Pages: []string{"some first page"}}

	t.Run("valid label", func(t *testing.T) {
		d := NewAIDetector(&stubClassifier{label: "FREEDOM"})
		issuer, err := d.Detect(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, models.IssuerFreedom, issuer)
	})

	t.Run("out-of-set label falls back to keywords", func(t *testing.T) {
		d := NewAIDetector(&stubClassifier{label: "VISA PLATINUM"})
		amexDoc := models.StatementDocument{Pages: []string{"AMERICAN EXPRESS statement"}}
		issuer, err := d.Detect(context.Background(), amexDoc)
		require.NoError(t, err)
		assert.Equal(t, models.IssuerAmex, issuer)
	})

	t.Run("classifier error falls back and may still be unknown", func(t *testing.T) {
		d := NewAIDetector(&stubClassifier{err: errors.New("quota exceeded")})
		issuer, err := d.Detect(context.Background(), doc)
		assert.Equal(t, models.IssuerUnknown, issuer)
		assert.Error(t, err)
	})
}
