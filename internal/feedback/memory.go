package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryChannel is an in-process Channel and Reviewer, used in tests and
// in single-user CLI mode where the same process runs both sides.
type MemoryChannel struct {
	mu      sync.Mutex
	pending []*Ticket
	answers map[string]Resolution
}

// NewMemoryChannel creates an empty in-process channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{answers: make(map[string]Resolution)}
}

// Submit queues a ticket and returns its id.
func (m *MemoryChannel) Submit(ctx context.Context, merchant, amount string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ticket := &Ticket{
		ID:        uuid.NewString(),
		Merchant:  merchant,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.pending = append(m.pending, ticket)
	return ticket.ID, nil
}

// Poll returns the answer once, removing it. Until then it returns
// ErrPending.
func (m *MemoryChannel) Poll(ctx context.Context, ticketID string) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resolution, ok := m.answers[ticketID]
	if !ok {
		return Resolution{}, ErrPending
	}
	delete(m.answers, ticketID)
	return resolution, nil
}

// Pending returns the oldest unanswered ticket.
func (m *MemoryChannel) Pending(ctx context.Context) (*Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, nil
	}
	ticket := *m.pending[0]
	return &ticket, nil
}

// Answer resolves a pending ticket so a later Poll can consume it.
func (m *MemoryChannel) Answer(ctx context.Context, ticketID, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ticket := range m.pending {
		if ticket.ID != ticketID {
			continue
		}
		ticket.Status = StatusAnswered
		m.pending = append(m.pending[:i], m.pending[i+1:]...)
		m.answers[ticketID] = Resolution{Answer: answer}
		return nil
	}
	return fmt.Errorf("ticket %s not found", ticketID)
}
