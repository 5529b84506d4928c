package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger allows setting a configured logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		log = logger
	}
}

// HTTPChannel talks to the review frontend's transaction feedback routes.
type HTTPChannel struct {
	baseURL string
	client  *http.Client
}

// NewHTTPChannel creates a channel against the review frontend at baseURL.
func NewHTTPChannel(baseURL string) *HTTPChannel {
	return &HTTPChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type requestFeedbackBody struct {
	Merchant string `json:"merchant"`
	Charge   string `json:"charge"`
}

type requestFeedbackResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
}

// Submit posts a feedback request and returns the server-issued ticket id.
func (h *HTTPChannel) Submit(ctx context.Context, merchant, amount string) (string, error) {
	var resp requestFeedbackResponse
	err := h.postJSON(ctx, "/api/transactions/request-feedback",
		requestFeedbackBody{Merchant: merchant, Charge: amount}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success || resp.RequestID == "" {
		return "", fmt.Errorf("feedback request rejected: %s", resp.Error)
	}

	log.WithFields(logrus.Fields{
		"ticket":   resp.RequestID,
		"merchant": merchant,
	}).Info("Requested human feedback")

	return resp.RequestID, nil
}

type feedbackResultResponse struct {
	Success  bool   `json:"success"`
	Feedback string `json:"feedback"`
	Error    string `json:"error"`
}

// Poll fetches the result for a ticket. The server answers 404 while the
// ticket is still pending.
func (h *HTTPChannel) Poll(ctx context.Context, ticketID string) (Resolution, error) {
	endpoint := h.baseURL + "/api/transactions/get-feedback-result?requestId=" + url.QueryEscape(ticketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("build poll request: %w", err)
	}

	res, err := h.client.Do(req)
	if err != nil {
		return Resolution{}, fmt.Errorf("poll feedback: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return Resolution{}, ErrPending
	}
	if res.StatusCode != http.StatusOK {
		return Resolution{}, fmt.Errorf("poll feedback: unexpected status %d", res.StatusCode)
	}

	var body feedbackResultResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return Resolution{}, fmt.Errorf("decode feedback result: %w", err)
	}
	if !body.Success {
		return Resolution{}, ErrPending
	}
	return Resolution{Answer: body.Feedback}, nil
}

type pendingResponse struct {
	Transaction *struct {
		ID        string `json:"id"`
		Merchant  string `json:"merchant"`
		Charge    string `json:"charge"`
		Status    string `json:"status"`
		CreatedAt string `json:"created_at"`
	} `json:"transaction"`
}

// Pending returns the oldest ticket waiting for review.
func (h *HTTPChannel) Pending(ctx context.Context) (*Ticket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.baseURL+"/api/transactions/pending-feedback", nil)
	if err != nil {
		return nil, fmt.Errorf("build pending request: %w", err)
	}

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pending feedback: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pending feedback: unexpected status %d", res.StatusCode)
	}

	var body pendingResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode pending feedback: %w", err)
	}
	if body.Transaction == nil {
		return nil, nil
	}

	ticket := &Ticket{
		ID:       body.Transaction.ID,
		Merchant: body.Transaction.Merchant,
		Amount:   body.Transaction.Charge,
		Status:   StatusPending,
	}
	if t, err := time.Parse(time.RFC3339, body.Transaction.CreatedAt); err == nil {
		ticket.CreatedAt = t
	}
	return ticket, nil
}

type submitFeedbackBody struct {
	TransactionID string `json:"transactionId"`
	Feedback      string `json:"feedback"`
}

type submitFeedbackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Answer resolves a pending ticket on behalf of the reviewer.
func (h *HTTPChannel) Answer(ctx context.Context, ticketID, answer string) error {
	var resp submitFeedbackResponse
	err := h.postJSON(ctx, "/api/transactions/submit-feedback",
		submitFeedbackBody{TransactionID: ticketID, Feedback: answer}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("submit feedback rejected: %s", resp.Error)
	}
	return nil
}

func (h *HTTPChannel) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("post %s: unexpected status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
