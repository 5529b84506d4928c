// Package feedback carries the human escape hatch of the classifier: when
// similarity search cannot place a transaction, a ticket is submitted and
// polled until a human answers or the wait times out.
package feedback

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle of a ticket.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAnswered Status = "ANSWERED"
	StatusExpired  Status = "EXPIRED"
)

// Ticket is one blocked classification waiting on a human.
type Ticket struct {
	ID        string
	Merchant  string
	Amount    string
	Status    Status
	CreatedAt time.Time
}

// Resolution is a human answer, usually a category name but possibly free
// text with more context.
type Resolution struct {
	Answer string
}

// ErrPending is returned by Poll while no answer has arrived yet.
var ErrPending = errors.New("feedback still pending")

// Channel is the classifier's side of the loop. An answer is consumed by
// exactly one successful Poll.
type Channel interface {
	Submit(ctx context.Context, merchant, amount string) (string, error)
	Poll(ctx context.Context, ticketID string) (Resolution, error)
}

// Reviewer is the human's side of the loop, used by the review command.
type Reviewer interface {
	// Pending returns the oldest unanswered ticket, or nil when the
	// queue is empty.
	Pending(ctx context.Context) (*Ticket, error)
	Answer(ctx context.Context, ticketID, answer string) error
}
