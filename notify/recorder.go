package notify

import (
	"context"
	"sync"

	"Gin_postgres_redis_lending/models"

	"github.com/shopspring/decimal"
)

// Sent is one notification captured by a Recorder.
type Sent struct {
	TransactionID string
	Key           string
	Extra         map[string]any
}

// ChargeRequest is one charge captured by a Recorder.
type ChargeRequest struct {
	BorrowerID    string
	Amount        decimal.Decimal
	Description   string
	TransactionID string
	Type          models.ChargeType
}

// Recorder keeps everything it is asked to send. Result, when set, decides
// the outcome of each charge.
type Recorder struct {
	mu      sync.Mutex
	sent    []Sent
	charges []ChargeRequest
	Result  func(ChargeRequest) ChargeResult
}

func (r *Recorder) SendByKey(_ context.Context, tx *models.Transaction, key string, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Sent{Key: key, Extra: extra}
	if tx != nil {
		s.TransactionID = tx.ID
	}
	r.sent = append(r.sent, s)
}

func (r *Recorder) Charge(_ context.Context, borrowerID string, amount decimal.Decimal, desc string, tx *models.Transaction, ct models.ChargeType) ChargeResult {
	req := ChargeRequest{BorrowerID: borrowerID, Amount: amount, Description: desc, Type: ct}
	if tx != nil {
		req.TransactionID = tx.ID
	}
	r.mu.Lock()
	r.charges = append(r.charges, req)
	result := r.Result
	r.mu.Unlock()
	if result != nil {
		return result(req)
	}
	return ChargeResult{Success: true, Status: "recorded"}
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Keys lists the template keys sent so far, in order.
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.sent))
	for i, s := range r.sent {
		keys[i] = s.Key
	}
	return keys
}

func (r *Recorder) Charges() []ChargeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChargeRequest(nil), r.charges...)
}
