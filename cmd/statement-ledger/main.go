// Package main provides the entry point for the statement-ledger CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finlens/statement-ledger/internal/aiclient"
	"finlens/statement-ledger/internal/amexparser"
	"finlens/statement-ledger/internal/classifier"
	"finlens/statement-ledger/internal/config"
	"finlens/statement-ledger/internal/dateutils"
	"finlens/statement-ledger/internal/detector"
	"finlens/statement-ledger/internal/export"
	"finlens/statement-ledger/internal/feedback"
	"finlens/statement-ledger/internal/freedomparser"
	"finlens/statement-ledger/internal/models"
	"finlens/statement-ledger/internal/normalizer"
	"finlens/statement-ledger/internal/parser"
	"finlens/statement-ledger/internal/pipeline"
	"finlens/statement-ledger/internal/retry"
	"finlens/statement-ledger/internal/storage"
	"finlens/statement-ledger/internal/store"
	"finlens/statement-ledger/internal/tagger"
	"finlens/statement-ledger/internal/vectorindex"
	"finlens/statement-ledger/internal/zolveparser"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	log      = logrus.New()
	cfg      *config.Config
	mappings *store.MappingStore

	outputFile  string
	useAIDetect bool

	merchant  string
	amountStr string
	dateStr   string

	summaryYear  int
	summaryMonth int

	reviewAnswer string
	reviewTicket string
)

var rootCmd = &cobra.Command{
	Use:   "statement-ledger",
	Short: "Parse, categorize, and persist credit card statements.",
	Long: `statement-ledger ingests statement page text, detects the issuer,
parses transactions with per-issuer grammars (with a statistical fallback),
normalizes them, and categorizes them by embedding similarity search with a
human feedback escape hatch. Results land in a local SQLite ledger.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv()

		var err error
		cfg, err = config.InitializeConfig()
		if err != nil {
			return err
		}

		log = config.ConfigureLoggingFromConfig(cfg)
		propagateLogger(log)

		mappings = store.NewMappingStore(cfg.Storage.MappingsFile)
		if err := mappings.Load(); err != nil {
			log.WithError(err).Warn("Failed to load merchant mappings")
		}
		return nil
	},
	// Save learned merchant mappings back to disk after any command runs.
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if mappings == nil {
			return
		}
		if err := mappings.Save(); err != nil {
			log.Warnf("Failed to save merchant mappings: %v", err)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to statement-ledger!")
		fmt.Println("Use --help to see available commands")
	},
}

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process statement text files into the categorized ledger",
	Long: `Process reads one or more statement text files (pages separated by
form feeds), runs the full pipeline, and writes the categorized
transactions to the ledger database and the output file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: processFunc,
}

var categorizeCmd = &cobra.Command{
	Use:   "categorize",
	Short: "Categorize a single transaction",
	Long:  `Categorize runs the classification engine for one manually entered transaction.`,
	RunE:  categorizeFunc,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print monthly category totals from the stored ledger",
	RunE:  summaryFunc,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review pending feedback tickets",
	Long: `Review shows the oldest transaction waiting for human categorization.
With --answer it resolves that ticket so the blocked pipeline run can continue.`,
	RunE: reviewFunc,
}

func init() {
	processCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (.csv or .json); stdout JSON when omitted")
	processCmd.Flags().BoolVar(&useAIDetect, "ai-detect", false, "Use the AI issuer detector instead of keyword matching")

	categorizeCmd.Flags().StringVarP(&merchant, "merchant", "m", "", "Merchant name")
	categorizeCmd.Flags().StringVarP(&amountStr, "amount", "a", "", "Amount, negative for payments")
	categorizeCmd.Flags().StringVarP(&dateStr, "date", "d", "", "Transaction date (MM/DD/YY or YYYY-MM-DD)")
	_ = categorizeCmd.MarkFlagRequired("merchant")
	_ = categorizeCmd.MarkFlagRequired("amount")

	summaryCmd.Flags().IntVar(&summaryYear, "year", time.Now().Year(), "Year to summarize")
	summaryCmd.Flags().IntVar(&summaryMonth, "month", int(time.Now().Month()), "Month to summarize (1-12)")
	summaryCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output CSV file; stdout when omitted")

	reviewCmd.Flags().StringVar(&reviewAnswer, "answer", "", "Category or note resolving the pending ticket")
	reviewCmd.Flags().StringVar(&reviewTicket, "ticket", "", "Ticket id to resolve (defaults to the oldest pending)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(categorizeCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(reviewCmd)
}

// propagateLogger hands the configured logger to every package-level log.
func propagateLogger(logger *logrus.Logger) {
	aiclient.SetLogger(logger)
	amexparser.SetLogger(logger)
	classifier.SetLogger(logger)
	detector.SetLogger(logger)
	export.SetLogger(logger)
	feedback.SetLogger(logger)
	freedomparser.SetLogger(logger)
	normalizer.SetLogger(logger)
	pipeline.SetLogger(logger)
	retry.SetLogger(logger)
	storage.SetLogger(logger)
	store.SetLogger(logger)
	tagger.SetLogger(logger)
	vectorindex.SetLogger(logger)
	zolveparser.SetLogger(logger)
}

func retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
	}
}

func defaultYear() int {
	if cfg.Parsing.DefaultYear != 0 {
		return cfg.Parsing.DefaultYear
	}
	return time.Now().Year()
}

func newRegistry() *parser.Registry {
	registry := parser.NewRegistry()
	registry.Register(amexparser.New())
	registry.Register(zolveparser.New())
	registry.Register(freedomparser.New(defaultYear()))
	return registry
}

func newAIClient(ctx context.Context) (*aiclient.GeminiClient, error) {
	if !cfg.AI.Enabled {
		return nil, fmt.Errorf("classification requires AI; set ai.enabled and GEMINI_API_KEY")
	}
	return aiclient.NewGeminiClient(ctx, aiclient.Options{
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Timeout:        time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})
}

func newFeedbackChannel() feedback.Channel {
	if cfg.Feedback.URL != "" {
		return feedback.NewHTTPChannel(cfg.Feedback.URL)
	}
	log.Warn("No feedback URL configured; unresolvable transactions fall back to Miscellaneous after the timeout")
	return feedback.NewMemoryChannel()
}

func newEngine(ai aiclient.Client, index vectorindex.Index) *classifier.Engine {
	engine := classifier.New(ai, index, newFeedbackChannel(), classifier.Options{
		ConfidenceThreshold: cfg.Classification.ConfidenceThreshold,
		TopK:                cfg.Classification.TopK,
		PollInterval:        cfg.Feedback.PollInterval,
		FeedbackTimeout:     cfg.Feedback.Timeout,
		MaxPendingFeedback:  cfg.Feedback.MaxPending,
		Retry:               retryPolicy(),
	})
	engine.UseMappings(mappings)
	return engine
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func processFunc(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	docs, err := readStatements(args)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ai, err := newAIClient(ctx)
	if err != nil {
		return err
	}
	defer ai.Close()

	var det detector.Detector = detector.NewKeywordDetector()
	if useAIDetect {
		det = detector.NewAIDetector(ai)
	}

	p := pipeline.New(det, newRegistry(), tagger.New(),
		newEngine(ai, vectorindex.NewSQLiteIndex(db)),
		storage.NewSQLiteRepository(db),
		cfg.Pipeline.Workers, retryPolicy())

	results, err := p.ProcessAll(ctx, docs)
	if err != nil {
		return err
	}

	var transactions []models.Transaction
	failures := 0
	for _, result := range results {
		transactions = append(transactions, result.Transactions...)
		for _, itemErr := range result.Errs {
			failures++
			log.WithField("source", result.Source).WithError(itemErr).Error("Item failed")
		}
	}

	log.WithFields(logrus.Fields{
		"statements":   len(results),
		"transactions": len(transactions),
		"failures":     failures,
	}).Info("Processing complete")

	if outputFile != "" {
		return export.WriteFile(outputFile, transactions)
	}
	return export.WriteJSON(os.Stdout, transactions)
}

func categorizeFunc(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	amount, err := decimal.NewFromString(strings.ReplaceAll(amountStr, ",", ""))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	date := time.Now()
	if dateStr != "" {
		date, err = dateutils.ParseStatementDate(dateStr)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", dateStr, err)
		}
	}

	kind := models.KindCharge
	if amount.IsNegative() {
		kind = models.KindPayment
	}

	tx := models.Transaction{
		Date:     date,
		Merchant: models.CollapseWhitespace(merchant),
		Amount:   amount,
		Kind:     kind,
		Issuer:   models.IssuerUnknown,
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ai, err := newAIClient(ctx)
	if err != nil {
		return err
	}
	defer ai.Close()

	tx, err = newEngine(ai, vectorindex.NewSQLiteIndex(db)).Classify(ctx, tx)
	if err != nil {
		return err
	}

	if _, err := storage.NewSQLiteRepository(db).StoreTransaction(ctx, tx); err != nil {
		return err
	}

	return export.WriteJSON(os.Stdout, []models.Transaction{tx})
}

func summaryFunc(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if summaryMonth < 1 || summaryMonth > 12 {
		return fmt.Errorf("invalid month: %d", summaryMonth)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	totals, err := storage.NewSQLiteRepository(db).MonthlySummary(ctx, summaryYear, time.Month(summaryMonth))
	if err != nil {
		return err
	}

	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		defer file.Close()
		return export.WriteSummaryCSV(file, totals)
	}
	return export.WriteSummaryCSV(os.Stdout, totals)
}

func reviewFunc(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Feedback.URL == "" {
		return fmt.Errorf("review requires feedback.url to point at the review frontend")
	}
	channel := feedback.NewHTTPChannel(cfg.Feedback.URL)

	pending, err := channel.Pending(ctx)
	if err != nil {
		return err
	}
	if pending == nil {
		fmt.Println("No pending feedback tickets.")
		return nil
	}

	fmt.Printf("Ticket %s: %s for $%s\n", pending.ID, pending.Merchant, pending.Amount)

	if reviewAnswer == "" {
		fmt.Println("Rerun with --answer to resolve it.")
		return nil
	}

	ticketID := reviewTicket
	if ticketID == "" {
		ticketID = pending.ID
	}
	if err := channel.Answer(ctx, ticketID, reviewAnswer); err != nil {
		return err
	}
	fmt.Printf("Resolved ticket %s as %q\n", ticketID, reviewAnswer)
	return nil
}

// readStatements loads statement text files. Pages are separated by form
// feed characters, matching what text extraction tools emit.
func readStatements(paths []string) ([]models.StatementDocument, error) {
	docs := make([]models.StatementDocument, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read statement %s: %w", path, err)
		}
		docs = append(docs, models.StatementDocument{
			Source: path,
			Pages:  strings.Split(string(data), "\f"),
		})
	}
	return docs, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
