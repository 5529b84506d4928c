// Package aiclient wraps the Gemini API behind the three narrow calls the
// pipeline needs: namespace judgment, text embedding, and issuer detection.
// Consumers depend on the Client interface so tests can substitute a stub.
package aiclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finlens/statement-ledger/internal/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// Client is the AI surface the classifier and detector consume.
type Client interface {
	// JudgeNamespace picks the spending namespace for a transaction
	// description. The result is always one of the known namespaces.
	JudgeNamespace(ctx context.Context, text string) (string, error)
	// Embed returns the embedding vector for a transaction search text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// ClassifyIssuer names the card issuer for a statement's first page.
	ClassifyIssuer(ctx context.Context, firstPage string) (string, error)
}

// GeminiClient implements Client against the Google Gemini API.
type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
}

// Options configures a GeminiClient.
type Options struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

// NewGeminiClient creates a Gemini-backed client. The API key is required;
// model names fall back to the configured defaults when empty.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "text-embedding-004"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		timeout:        opts.Timeout,
	}, nil
}

// Close releases the underlying API connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// JudgeNamespace asks the model to place the transaction in one of the
// known namespaces. Anything outside the closed set is coerced to
// Miscellaneous.
func (c *GeminiClient) JudgeNamespace(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Classify the following credit card transaction into exactly one of these categories: %s.\n"+
			"Respond with only the category name.\n\nTransaction: %s",
		strings.Join(models.Namespaces(), ", "), text)

	model := c.client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("namespace judgment failed: %w", err)
	}

	answer := firstText(resp)
	namespace := models.CoerceNamespace(strings.TrimSpace(answer))

	log.WithFields(logrus.Fields{
		"text":      text,
		"namespace": namespace,
	}).Debug("Judged transaction namespace")

	return namespace, nil
}

// Embed returns the embedding vector for the given text.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	em := c.client.EmbeddingModel(c.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return res.Embedding.Values, nil
}

// ClassifyIssuer asks the model which issuer produced the statement page.
// The caller coerces the answer to the closed issuer set.
func (c *GeminiClient) ClassifyIssuer(ctx context.Context, firstPage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	issuers := make([]string, 0, len(models.KnownIssuers))
	for _, issuer := range models.KnownIssuers {
		issuers = append(issuers, string(issuer))
	}

	prompt := fmt.Sprintf(
		"Which card issuer produced this statement page? Answer with exactly one of: %s.\n\n%s",
		strings.Join(issuers, ", "), firstPage)

	model := c.client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("issuer detection failed: %w", err)
	}

	return strings.TrimSpace(firstText(resp)), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				return string(text)
			}
		}
	}
	return ""
}
