package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"finlens/statement-ledger/internal/dateutils"
	"finlens/statement-ledger/internal/models"

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

// Repository is the persistence surface the pipeline depends on. Writes
// are idempotent on the transaction fingerprint.
type Repository interface {
	StoreTransaction(ctx context.Context, tx models.Transaction) (int64, error)
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	MonthlySummary(ctx context.Context, year int, month time.Month) ([]CategoryTotal, error)
}

// CategoryTotal is one row of a monthly summary.
type CategoryTotal struct {
	Issuer   models.Issuer
	Category string
	Total    decimal.Decimal
	Count    int
}

// SQLiteRepository implements Repository over the shared ledger database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps an opened ledger database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// StoreTransaction inserts the transaction, keyed by fingerprint. Storing
// the same transaction again refreshes category and note and returns the
// existing row id, so re-runs never duplicate the ledger.
func (r *SQLiteRepository) StoreTransaction(ctx context.Context, tx models.Transaction) (int64, error) {
	cents := tx.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (fingerprint, date, merchant, amount_cents, kind, issuer, category, note, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			category = excluded.category,
			note = excluded.note,
			low_confidence = excluded.low_confidence`,
		tx.Fingerprint(), dateutils.ToISODate(tx.Date), tx.Merchant, cents,
		string(tx.Kind), string(tx.Issuer), tx.Category, tx.Note, boolToInt(tx.LowConfidence))
	if err != nil {
		return 0, fmt.Errorf("store transaction: %w", err)
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM transactions WHERE fingerprint = ?`, tx.Fingerprint()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read back transaction id: %w", err)
	}

	log.WithFields(logrus.Fields{
		"id":       id,
		"merchant": tx.Merchant,
		"category": tx.Category,
	}).Debug("Stored transaction")

	return id, nil
}

// ListTransactions returns the full ledger ordered by date.
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, merchant, amount_cents, kind, issuer, category, note, low_confidence
		FROM transactions ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var (
			dateStr       string
			cents         int64
			kind, issuer  string
			lowConfidence int
			tx            models.Transaction
		)
		if err := rows.Scan(&dateStr, &tx.Merchant, &cents, &kind, &issuer,
			&tx.Category, &tx.Note, &lowConfidence); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		date, err := time.Parse(dateutils.DateLayoutISO, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", dateStr, err)
		}
		tx.Date = date
		tx.Amount = decimal.New(cents, -2)
		tx.Kind = models.Kind(kind)
		tx.Issuer = models.Issuer(issuer)
		tx.LowConfidence = lowConfidence != 0
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// MonthlySummary totals the stored ledger per issuer and category for one
// billing month.
func (r *SQLiteRepository) MonthlySummary(ctx context.Context, year int, month time.Month) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT issuer, category, SUM(amount_cents), COUNT(*)
		FROM transactions
		WHERE strftime('%Y', date) = ? AND strftime('%m', date) = ?
		GROUP BY issuer, category
		ORDER BY issuer, category`,
		fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", int(month)))
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var (
			issuer string
			total  CategoryTotal
			cents  int64
		)
		if err := rows.Scan(&issuer, &total.Category, &cents, &total.Count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		total.Issuer = models.Issuer(issuer)
		total.Total = decimal.New(cents, -2)
		totals = append(totals, total)
	}
	return totals, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
