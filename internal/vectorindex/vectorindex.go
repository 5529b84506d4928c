// Package vectorindex provides similarity search over transaction
// embeddings, partitioned by namespace. The default implementation stores
// vectors in the shared SQLite ledger database and scores candidates with
// cosine similarity; an in-memory implementation backs tests and dry runs.
package vectorindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Metadata travels with a stored vector and is echoed back on matches.
type Metadata struct {
	Category string
	Merchant string
}

// Match is one similarity search result, best first.
type Match struct {
	ID       string
	Score    float64
	Category string
	Merchant string
}

// Index is the similarity search surface the classifier depends on.
type Index interface {
	// Query returns up to topK matches in the namespace, best first.
	// An empty namespace yields no matches, not an error.
	Query(ctx context.Context, vector []float32, namespace string, topK int) ([]Match, error)
	// Upsert stores the vector under the id, replacing any previous value.
	Upsert(ctx context.Context, id string, vector []float32, meta Metadata, namespace string) error
}

// cosineSimilarity returns 0 for zero-length or mismatched vectors so a
// corrupt row ranks last instead of failing the whole query.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func topMatches(matches []Match, topK int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// encodeVector packs float32 values little-endian for BLOB storage.
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("malformed vector blob of %d bytes", len(buf))
	}
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vector, nil
}
