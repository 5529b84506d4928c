package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// SQLiteIndex implements Index over the embeddings table of the shared
// ledger database. Search is brute force over the namespace, which is fine
// at personal-ledger scale.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex wraps an opened ledger database.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

// Query loads the namespace's vectors and ranks them by cosine similarity.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, namespace string, topK int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, category, merchant FROM embeddings WHERE namespace = ?`, namespace)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			match Match
			blob  []byte
		)
		if err := rows.Scan(&match.ID, &blob, &match.Category, &match.Merchant); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			log.WithField("id", match.ID).WithError(err).Warn("Skipping malformed embedding")
			continue
		}
		match.Score = cosineSimilarity(vector, stored)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topMatches(matches, topK), nil
}

// Upsert stores the vector, replacing any previous entry for the id.
func (s *SQLiteIndex) Upsert(ctx context.Context, id string, vector []float32, meta Metadata, namespace string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (namespace, id, vector, category, merchant)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, id) DO UPDATE SET
			vector = excluded.vector,
			category = excluded.category,
			merchant = excluded.merchant`,
		namespace, id, encodeVector(vector), meta.Category, meta.Merchant)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}

	log.WithFields(logrus.Fields{
		"id":        id,
		"namespace": namespace,
		"category":  meta.Category,
	}).Debug("Upserted embedding")

	return nil
}
