// Package export renders the categorized ledger as CSV or JSON records,
// and writes the monthly category summaries.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/storage"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// WriteCSV renders the transactions as CSV in the canonical record shape.
func WriteCSV(w io.Writer, transactions []models.Transaction) error {
	records := make([]models.Record, 0, len(transactions))
	for _, tx := range transactions {
		records = append(records, tx.Record())
	}

	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}

	log.WithField("count", len(records)).Info("Wrote CSV export")
	return nil
}

// WriteJSON renders the transactions as a JSON array of canonical records.
func WriteJSON(w io.Writer, transactions []models.Transaction) error {
	records := make([]models.Record, 0, len(transactions))
	for _, tx := range transactions {
		records = append(records, tx.Record())
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("error writing JSON: %w", err)
	}

	log.WithField("count", len(records)).Info("Wrote JSON export")
	return nil
}

// SummaryRow is one line of the monthly summary export.
type SummaryRow struct {
	Issuer   string `csv:"Card"`
	Category string `csv:"Category"`
	Total    string `csv:"Total"`
	Count    int    `csv:"Transactions"`
}

// WriteSummaryCSV renders monthly category totals as CSV.
func WriteSummaryCSV(w io.Writer, totals []storage.CategoryTotal) error {
	rows := make([]SummaryRow, 0, len(totals))
	for _, total := range totals {
		rows = append(rows, SummaryRow{
			Issuer:   string(total.Issuer),
			Category: total.Category,
			Total:    total.Total.StringFixed(2),
			Count:    total.Count,
		})
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("error writing summary CSV: %w", err)
	}
	return nil
}

// WriteFile routes the transactions to a file, picking the format from the
// extension: .json gets JSON records, everything else CSV.
func WriteFile(path string, transactions []models.Transaction) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating export file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.WithError(err).Warn("Failed to close export file")
		}
	}()

	if hasJSONExtension(path) {
		return WriteJSON(file, transactions)
	}
	return WriteCSV(file, transactions)
}

func hasJSONExtension(path string) bool {
	return len(path) > 5 && path[len(path)-5:] == ".json"
}
