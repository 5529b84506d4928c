// Package pipeline orchestrates the full run: detect the issuer, parse
// with the registered strategy (or the fallback tagger), normalize,
// classify, persist. Statements are processed concurrently; failures stay
// scoped to the statement or transaction that caused them.
package pipeline

import (
	"context"
	"sync"

	"finlens/statement-ledger/internal/classifier"
	"finlens/statement-ledger/internal/detector"
	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/normalizer"
	"finlens/statement-ledger/internal/parser"
	"finlens/statement-ledger/internal/parsererror"
	"finlens/statement-ledger/internal/retry"
	"finlens/statement-ledger/internal/storage"
	"finlens/statement-ledger/internal/tagger"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// Result is the per-statement outcome. Errs holds the item-level failures
// that did not stop the rest of the statement.
type Result struct {
	Source       string
	Issuer       models.Issuer
	Transactions []models.Transaction
	Rejected     int
	Errs         []error
}

// Pipeline wires the stages together. All collaborators are shared across
// statements and must be safe for concurrent use.
type Pipeline struct {
	detector   detector.Detector
	registry   *parser.Registry
	fallback   *tagger.Tagger
	classifier *classifier.Engine
	repo       storage.Repository

	workers int
	retry   retry.Policy
}

// New assembles a pipeline. workers bounds concurrent statements.
func New(det detector.Detector, registry *parser.Registry, fallback *tagger.Tagger,
	engine *classifier.Engine, repo storage.Repository, workers int, retryPolicy retry.Policy) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		detector:   det,
		registry:   registry,
		fallback:   fallback,
		classifier: engine,
		repo:       repo,
		workers:    workers,
		retry:      retryPolicy,
	}
}

// ProcessAll runs every statement, one worker per statement up to the
// configured bound. Statement-level failures land in their Result; the
// returned error is only ever context cancellation.
func (p *Pipeline) ProcessAll(ctx context.Context, docs []models.StatementDocument) ([]Result, error) {
	results := make([]Result, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p.Process(ctx, doc)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Process runs one statement end to end.
func (p *Pipeline) Process(ctx context.Context, doc models.StatementDocument) Result {
	result := Result{Source: doc.Source, Issuer: models.IssuerUnknown}

	issuer, err := p.detector.Detect(ctx, doc)
	if err != nil {
		log.WithField("source", doc.Source).WithError(err).Warn("Statement format not recognized")
		result.Errs = append(result.Errs, err)
		return result
	}
	result.Issuer = issuer

	fragments := p.parse(doc, issuer)

	transactions := p.normalize(&result, fragments, issuer)
	if len(transactions) == 0 {
		log.WithFields(logrus.Fields{
			"source": doc.Source,
			"issuer": issuer,
		}).Warn("Statement produced no transactions")
		return result
	}

	p.classifyAndStore(ctx, &result, transactions)

	log.WithFields(logrus.Fields{
		"source":       doc.Source,
		"issuer":       issuer,
		"transactions": len(result.Transactions),
		"rejected":     result.Rejected,
	}).Info("Processed statement")

	return result
}

// parse runs the issuer's strategy, falling back to the statistical tagger
// when no strategy exists or the grammar came up empty.
func (p *Pipeline) parse(doc models.StatementDocument, issuer models.Issuer) []models.ParsedFragment {
	if strategy, ok := p.registry.Get(issuer); ok {
		if fragments := strategy.Parse(doc); len(fragments) > 0 {
			return fragments
		}
		log.WithFields(logrus.Fields{
			"source": doc.Source,
			"issuer": issuer,
		}).Warn("Grammar found nothing, trying fallback tagger")
	}
	return p.fallback.Extract(doc)
}

// normalize converts fragments, counting rejections instead of failing.
func (p *Pipeline) normalize(result *Result, fragments []models.ParsedFragment, issuer models.Issuer) []models.Transaction {
	seen := make(map[string]struct{})
	var transactions []models.Transaction

	for _, frag := range fragments {
		tx, err := normalizer.Normalize(frag, issuer)
		if err != nil {
			if parsererror.IsRejection(err) {
				result.Rejected++
				log.WithError(err).Debug("Fragment rejected")
				continue
			}
			result.Errs = append(result.Errs, err)
			continue
		}
		if _, dup := seen[tx.Fingerprint()]; dup {
			continue
		}
		seen[tx.Fingerprint()] = struct{}{}
		transactions = append(transactions, tx)
	}
	return transactions
}

// classifyAndStore resolves categories concurrently, then persists each
// transaction. A failure on one item never drops the others.
func (p *Pipeline) classifyAndStore(ctx context.Context, result *Result, transactions []models.Transaction) {
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i := range transactions {
		g.Go(func() error {
			tx, err := p.classifier.Classify(ctx, transactions[i])
			if err != nil {
				// Keep the transaction; it lands in the ledger
				// uncategorized rather than vanishing.
				tx.Category = models.NamespaceMiscellaneous
				mu.Lock()
				result.Errs = append(result.Errs, err)
				mu.Unlock()
			}

			storeErr := retry.Do(ctx, p.retry, "store", func(ctx context.Context) error {
				_, err := p.repo.StoreTransaction(ctx, tx)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if storeErr != nil {
				result.Errs = append(result.Errs, storeErr)
				return nil
			}
			result.Transactions = append(result.Transactions, tx)
			return nil
		})
	}
	// Item errors are collected, never returned.
	_ = g.Wait()
}
