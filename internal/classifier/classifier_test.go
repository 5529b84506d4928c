package classifier

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"finlens/statement-ledger/internal/feedback"
	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/parsererror"
	"finlens/statement-ledger/internal/retry"
	"finlens/statement-ledger/internal/store"
	"finlens/statement-ledger/internal/vectorindex"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAI struct {
	namespace    string
	vector       []float32
	embedErr     error
	namespaceErr error
}

func (s *stubAI) JudgeNamespace(ctx context.Context, text string) (string, error) {
	return s.namespace, s.namespaceErr
}

func (s *stubAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.embedErr
}

func (s *stubAI) ClassifyIssuer(ctx context.Context, firstPage string) (string, error) {
	return "", errors.New("not used")
}

// countingIndex wraps an Index and counts upserts per id.
type countingIndex struct {
	vectorindex.Index
	mu      sync.Mutex
	upserts map[string]int
}

func newCountingIndex(inner vectorindex.Index) *countingIndex {
	return &countingIndex{Index: inner, upserts: make(map[string]int)}
}

func (c *countingIndex) Upsert(ctx context.Context, id string, vector []float32, meta vectorindex.Metadata, namespace string) error {
	c.mu.Lock()
	c.upserts[id]++
	c.mu.Unlock()
	return c.Index.Upsert(ctx, id, vector, meta, namespace)
}

func (c *countingIndex) count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upserts[id]
}

var fastRetry = retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func fastOptions() Options {
	return Options{
		ConfidenceThreshold: 0.8,
		TopK:                3,
		PollInterval:        5 * time.Millisecond,
		FeedbackTimeout:     250 * time.Millisecond,
		MaxPendingFeedback:  1,
		Retry:               fastRetry,
	}
}

func groceryTransaction() models.Transaction {
	return models.Transaction{
		Date:     time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		Merchant: "WHOLEFDS SJO 10230",
		Amount:   decimal.NewFromFloat(42.17),
		Kind:     models.KindCharge,
		Issuer:   models.IssuerFreedom,
	}
}

func TestClassifyConfidentMatch(t *testing.T) {
	ctx := context.Background()
	index := newCountingIndex(vectorindex.NewMemoryIndex())
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}

	require.NoError(t, index.Index.Upsert(ctx, "seed",
		[]float32{0.99, 0.05, 0}, vectorindex.Metadata{Category: "Grocery"}, models.NamespaceGrocery))

	engine := New(ai, index, feedback.NewMemoryChannel(), fastOptions())
	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, "Grocery", tx.Category)
	assert.Empty(t, tx.Note)

	// Learning writeback happened.
	assert.Equal(t, 1, index.count(tx.VectorID()))
}

func TestClassifyMajorityVote(t *testing.T) {
	ctx := context.Background()
	index := vectorindex.NewMemoryIndex()
	ai := &stubAI{namespace: models.NamespaceFun, vector: []float32{1, 0, 0}}

	require.NoError(t, index.Upsert(ctx, "a", []float32{1, 0, 0}, vectorindex.Metadata{Category: "Fun"}, models.NamespaceFun))
	require.NoError(t, index.Upsert(ctx, "b", []float32{0.98, 0.01, 0}, vectorindex.Metadata{Category: "Grocery"}, models.NamespaceFun))
	require.NoError(t, index.Upsert(ctx, "c", []float32{0.97, 0.02, 0}, vectorindex.Metadata{Category: "Grocery"}, models.NamespaceFun))

	engine := New(ai, index, feedback.NewMemoryChannel(), fastOptions())
	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, "Grocery", tx.Category)
}

func TestClassifyBelowThresholdOpensTicket(t *testing.T) {
	ctx := context.Background()
	index := newCountingIndex(vectorindex.NewMemoryIndex())
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}
	channel := feedback.NewMemoryChannel()

	// A weak neighbor only.
	require.NoError(t, index.Index.Upsert(ctx, "weak",
		[]float32{0.1, 1, 0}, vectorindex.Metadata{Category: "Fun"}, models.NamespaceGrocery))

	engine := New(ai, index, channel, fastOptions())

	// Answer the ticket as soon as it shows up.
	go func() {
		for {
			pending, err := channel.Pending(context.Background())
			if err == nil && pending != nil {
				_ = channel.Answer(context.Background(), pending.ID, "Grocery")
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, "Grocery", tx.Category)
	assert.Empty(t, tx.Note)
	assert.Equal(t, 1, index.count(tx.VectorID()))
}

func TestFreeTextAnswerBecomesNote(t *testing.T) {
	ctx := context.Background()
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}
	channel := feedback.NewMemoryChannel()

	engine := New(ai, vectorindex.NewMemoryIndex(), channel, fastOptions())

	go func() {
		for {
			pending, err := channel.Pending(context.Background())
			if err == nil && pending != nil {
				_ = channel.Answer(context.Background(), pending.ID, "weekly farmers market haul")
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, models.NamespaceMiscellaneous, tx.Category)
	assert.Equal(t, "weekly farmers market haul", tx.Note)
}

func TestFeedbackTimeoutFallsBackToMiscellaneous(t *testing.T) {
	ctx := context.Background()
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}

	opts := fastOptions()
	opts.FeedbackTimeout = 30 * time.Millisecond

	index := newCountingIndex(vectorindex.NewMemoryIndex())
	engine := New(ai, index, feedback.NewMemoryChannel(), opts)
	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, models.NamespaceMiscellaneous, tx.Category)
	assert.Equal(t, NoteUnresolved, tx.Note)
	// The fallback category is a guess, so the index must not learn it.
	assert.Equal(t, 0, index.count(tx.VectorID()))
}

func TestClassifyCancellableWhileAwaitingFeedback(t *testing.T) {
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}

	opts := fastOptions()
	opts.FeedbackTimeout = time.Hour

	engine := New(ai, vectorindex.NewMemoryIndex(), feedback.NewMemoryChannel(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := engine.Classify(ctx, groceryTransaction())
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWritebackHappensOncePerFingerprint(t *testing.T) {
	ctx := context.Background()
	index := newCountingIndex(vectorindex.NewMemoryIndex())
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}

	require.NoError(t, index.Index.Upsert(ctx, "seed",
		[]float32{1, 0, 0}, vectorindex.Metadata{Category: "Grocery"}, models.NamespaceGrocery))

	engine := New(ai, index, feedback.NewMemoryChannel(), fastOptions())
	tx := groceryTransaction()

	first, err := engine.Classify(ctx, tx)
	require.NoError(t, err)
	_, err = engine.Classify(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, 1, index.count(first.VectorID()))
}

func TestMappingHitSkipsSearch(t *testing.T) {
	ctx := context.Background()
	index := newCountingIndex(vectorindex.NewMemoryIndex())
	ai := &stubAI{namespaceErr: errors.New("must not be called")}

	mappings := store.NewMappingStore(filepath.Join(t.TempDir(), "mappings.yaml"))
	mappings.Record("WHOLEFDS SJO 10230", "Grocery")

	engine := New(ai, index, feedback.NewMemoryChannel(), fastOptions())
	engine.UseMappings(mappings)

	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, "Grocery", tx.Category)
	assert.Equal(t, 0, index.count(tx.VectorID()))
}

func TestResolvedCategoryIsRecorded(t *testing.T) {
	ctx := context.Background()
	index := vectorindex.NewMemoryIndex()
	ai := &stubAI{namespace: models.NamespaceGrocery, vector: []float32{1, 0, 0}}

	require.NoError(t, index.Upsert(ctx, "seed",
		[]float32{1, 0, 0}, vectorindex.Metadata{Category: "Grocery"}, models.NamespaceGrocery))

	mappings := store.NewMappingStore(filepath.Join(t.TempDir(), "mappings.yaml"))
	engine := New(ai, index, feedback.NewMemoryChannel(), fastOptions())
	engine.UseMappings(mappings)

	tx, err := engine.Classify(ctx, groceryTransaction())
	require.NoError(t, err)
	assert.Equal(t, "Grocery", tx.Category)

	category, ok := mappings.Lookup(tx.Merchant)
	require.True(t, ok)
	assert.Equal(t, "Grocery", category)
}

func TestAIFailureSurfacesExternalServiceError(t *testing.T) {
	ai := &stubAI{namespaceErr: errors.New("quota exceeded")}
	engine := New(ai, vectorindex.NewMemoryIndex(), feedback.NewMemoryChannel(), fastOptions())

	_, err := engine.Classify(context.Background(), groceryTransaction())
	var extErr *parsererror.ExternalServiceError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "ai", extErr.Service)
}
