package inventory

import (
	"context"
	"log/slog"
)

// Skip reasons reported on an Outcome when the transaction changed nothing.
const (
	SkipMissingFields = "missing item or action"
	SkipUnknownItem   = "unknown item"
	SkipNotLendable   = "item not lendable"
	SkipUnknownAction = "unknown action"
	SkipNoBorrower    = "no borrower"
	SkipNoIssue       = "no actionable issue"
	SkipLocked        = "item locked"
	SkipLoadFailed    = "item load failed"
	SkipSuperseded    = "withdrawal already closed"
)

// EntityError is one failed read or write inside a cascade.
type EntityError struct {
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Change  string `json:"change"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e EntityError) Error() string { return e.Kind + " " + e.ID + " (" + e.Change + "): " + e.Message }
func (e EntityError) Unwrap() error { return e.Err }

// Outcome summarises what one Apply call did. Entity saves are independent,
// so Applied and Errors can both be set after a partial cascade.
type Outcome struct {
	TransactionID string        `json:"transactionId,omitempty"`
	ItemID        string        `json:"itemId,omitempty"`
	Applied       bool          `json:"applied"`
	Skipped       string        `json:"skipped,omitempty"`
	AutoReturnID  string        `json:"autoReturnId,omitempty"`
	ClosedIDs     []string      `json:"closedIds,omitempty"`
	Errors        []EntityError `json:"errors,omitempty"`
}

func (o *Outcome) skip(reason string) { o.Skipped = reason }

// Partial reports whether some entity save failed.
func (o *Outcome) Partial() bool { return len(o.Errors) > 0 }

func (m *Machine) fail(ctx context.Context, out *Outcome, kind, id, change string, err error) {
	m.log.ErrorContext(ctx, "lending cascade step failed",
		slog.String("kind", kind),
		slog.String("id", id),
		slog.String("change", change),
		slog.String("transaction", out.TransactionID),
		slog.Any("err", err))
	out.Errors = append(out.Errors, EntityError{Kind: kind, ID: id, Change: change, Message: err.Error(), Err: err})
}
