// Package classifier assigns a category to each normalized transaction.
//
// The engine walks a transaction through NEW, SEARCHING, then either
// CLASSIFIED directly (similarity search found confident matches) or
// AWAITING_FEEDBACK (a human ticket is opened and polled). Every resolved
// transaction is written back to the similarity index exactly once so the
// next run recognizes it.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finlens/statement-ledger/internal/aiclient"
	"finlens/statement-ledger/internal/feedback"
	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/retry"
	"finlens/statement-ledger/internal/store"
	"finlens/statement-ledger/internal/vectorindex"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// State is the classification lifecycle of one transaction.
type State string

const (
	StateNew              State = "NEW"
	StateSearching        State = "SEARCHING"
	StateAwaitingFeedback State = "AWAITING_FEEDBACK"
	StateClassified       State = "CLASSIFIED"
)

// NoteUnresolved marks transactions whose feedback ticket expired.
const NoteUnresolved = "unresolved: feedback timed out"

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	// ConfidenceThreshold is the minimum similarity score for a match to
	// count toward a direct classification.
	ConfidenceThreshold float64
	// TopK is how many neighbors similarity search returns.
	TopK int
	// PollInterval is how often an open ticket is polled.
	PollInterval time.Duration
	// FeedbackTimeout bounds how long one ticket may stay open.
	FeedbackTimeout time.Duration
	// MaxPendingFeedback bounds concurrent open tickets.
	MaxPendingFeedback int
	// Retry applies to every external call.
	Retry retry.Policy
}

func (o Options) normalized() Options {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = 0.8
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.FeedbackTimeout <= 0 {
		o.FeedbackTimeout = 5 * time.Minute
	}
	if o.MaxPendingFeedback <= 0 {
		o.MaxPendingFeedback = 1
	}
	return o
}

// Engine classifies transactions. Safe for concurrent use.
type Engine struct {
	ai      aiclient.Client
	index   vectorindex.Index
	channel feedback.Channel
	opts    Options

	// feedbackSlots bounds concurrent AWAITING_FEEDBACK transitions.
	feedbackSlots chan struct{}

	// mappings, when set, short-circuits search for merchants already
	// resolved on a previous run.
	mappings *store.MappingStore

	mu      sync.Mutex
	written map[string]struct{}
}

// New creates a classification engine over the given collaborators.
func New(ai aiclient.Client, index vectorindex.Index, channel feedback.Channel, opts Options) *Engine {
	opts = opts.normalized()
	return &Engine{
		ai:            ai,
		index:         index,
		channel:       channel,
		opts:          opts,
		feedbackSlots: make(chan struct{}, opts.MaxPendingFeedback),
		written:       make(map[string]struct{}),
	}
}

// UseMappings attaches a learned merchant mapping store. A mapping hit
// resolves the transaction without touching the AI client or the index.
func (e *Engine) UseMappings(s *store.MappingStore) {
	e.mappings = s
}

// Classify resolves the category for one transaction. On success the
// returned transaction is CLASSIFIED and its embedding has been written
// back to the index. Errors are external-service failures after retry.
func (e *Engine) Classify(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if e.mappings != nil {
		if category, ok := e.mappings.Lookup(tx.Merchant); ok {
			tx.Category = category
			log.WithFields(logrus.Fields{
				"merchant": tx.Merchant,
				"category": category,
			}).Debug("Classified from learned merchant mapping")
			return tx, nil
		}
	}

	searchText := tx.SearchText()

	var namespace string
	err := retry.Do(ctx, e.opts.Retry, "ai", func(ctx context.Context) error {
		var err error
		namespace, err = e.ai.JudgeNamespace(ctx, searchText)
		return err
	})
	if err != nil {
		return tx, err
	}
	namespace = models.CoerceNamespace(namespace)

	var vector []float32
	err = retry.Do(ctx, e.opts.Retry, "ai", func(ctx context.Context) error {
		var err error
		vector, err = e.ai.Embed(ctx, searchText)
		return err
	})
	if err != nil {
		return tx, err
	}

	var matches []vectorindex.Match
	err = retry.Do(ctx, e.opts.Retry, "index", func(ctx context.Context) error {
		var err error
		matches, err = e.index.Query(ctx, vector, namespace, e.opts.TopK)
		return err
	})
	if err != nil {
		return tx, err
	}

	category, confident := e.decide(matches)
	if confident {
		tx.Category = category
		log.WithFields(logrus.Fields{
			"merchant":  tx.Merchant,
			"category":  category,
			"namespace": namespace,
		}).Debug("Classified by similarity search")
	} else {
		tx, err = e.awaitFeedback(ctx, tx)
		if err != nil {
			return tx, err
		}
	}

	if err := e.learn(ctx, tx, vector); err != nil {
		return tx, err
	}
	if e.mappings != nil && tx.Note == "" {
		e.mappings.Record(tx.Merchant, tx.Category)
	}
	return tx, nil
}

// decide applies the confidence rule: the best match must clear the
// threshold, and the category is the majority among the matches that do.
// Ties go to the highest-scoring category.
func (e *Engine) decide(matches []vectorindex.Match) (string, bool) {
	if len(matches) == 0 || matches[0].Score < e.opts.ConfidenceThreshold {
		return "", false
	}

	votes := make(map[string]int)
	best := matches[0].Category
	for _, m := range matches {
		if m.Score < e.opts.ConfidenceThreshold || m.Category == "" {
			continue
		}
		votes[m.Category]++
	}
	if len(votes) == 0 {
		return "", false
	}

	winner, winnerVotes := best, votes[best]
	for category, count := range votes {
		if count > winnerVotes {
			winner, winnerVotes = category, count
		}
	}
	return winner, true
}

// awaitFeedback opens a ticket and polls until an answer, the configured
// timeout, or context cancellation. The semaphore keeps at most
// MaxPendingFeedback transactions in this state at once.
func (e *Engine) awaitFeedback(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	select {
	case e.feedbackSlots <- struct{}{}:
	case <-ctx.Done():
		return tx, ctx.Err()
	}
	defer func() { <-e.feedbackSlots }()

	var ticketID string
	err := retry.Do(ctx, e.opts.Retry, "feedback", func(ctx context.Context) error {
		var err error
		ticketID, err = e.channel.Submit(ctx, tx.Merchant, tx.Amount.Abs().StringFixed(2))
		return err
	})
	if err != nil {
		return tx, err
	}

	log.WithFields(logrus.Fields{
		"ticket":   ticketID,
		"merchant": tx.Merchant,
	}).Info("Awaiting human feedback")

	deadline := time.NewTimer(e.opts.FeedbackTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return tx, ctx.Err()

		case <-deadline.C:
			tx.Category = models.NamespaceMiscellaneous
			tx.Note = NoteUnresolved
			log.WithField("ticket", ticketID).Warn("Feedback ticket expired")
			return tx, nil

		case <-ticker.C:
			resolution, err := e.channel.Poll(ctx, ticketID)
			if errors.Is(err, feedback.ErrPending) {
				continue
			}
			if err != nil {
				// Transient poll failures are absorbed until the
				// deadline fires.
				log.WithField("ticket", ticketID).WithError(err).Warn("Feedback poll failed")
				continue
			}

			tx.Category = models.CoerceNamespace(resolution.Answer)
			if tx.Category != resolution.Answer {
				tx.Note = resolution.Answer
			}
			log.WithFields(logrus.Fields{
				"ticket":   ticketID,
				"category": tx.Category,
			}).Info("Feedback received")
			return tx, nil
		}
	}
}

// learn upserts the resolved transaction into the index, at most once per
// fingerprint for the lifetime of the engine. Timed-out tickets fall back to
// a placeholder category and must not teach the index anything.
func (e *Engine) learn(ctx context.Context, tx models.Transaction, vector []float32) error {
	if tx.Note == NoteUnresolved {
		return nil
	}
	fingerprint := tx.Fingerprint()

	e.mu.Lock()
	if _, done := e.written[fingerprint]; done {
		e.mu.Unlock()
		return nil
	}
	e.written[fingerprint] = struct{}{}
	e.mu.Unlock()

	err := retry.Do(ctx, e.opts.Retry, "index", func(ctx context.Context) error {
		return e.index.Upsert(ctx, tx.VectorID(), vector, vectorindex.Metadata{
			Category: tx.Category,
			Merchant: tx.Merchant,
		}, tx.Category)
	})
	if err != nil {
		// Allow a later attempt to write this transaction back.
		e.mu.Lock()
		delete(e.written, fingerprint)
		e.mu.Unlock()
		return fmt.Errorf("index writeback: %w", err)
	}
	return nil
}
