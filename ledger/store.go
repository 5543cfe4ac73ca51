package ledger

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/code-payments/unistore/query"
)

var (
	ErrExists   = errors.New("purchase already exists")
	ErrNotFound = errors.New("purchase not found")
)

type State uint8

const (
	StateUnknown State = iota
	StatePending
	StateFulfilled
	StateRefunded
	StateRejected
)

type Purchase struct {
	ID        uuid.UUID
	ReceiptID []byte
	Platform  string
	ProductID string
	Amount    decimal.Decimal
	Currency  string
	State     State
	CreatedAt time.Time
}

type Store interface {
	// CreatePurchase records a purchase, or returns ErrExists if one with the
	// same ID or receipt is already recorded.
	CreatePurchase(ctx context.Context, purchase *Purchase) error

	// UpdateState moves the purchase recorded for a receipt to a new state.
	//
	// ErrNotFound is returned if no purchase exists.
	UpdateState(ctx context.Context, receiptID []byte, state State) error

	// GetPurchase returns the purchase recorded for a receipt.
	//
	// ErrNotFound is returned if no purchase exists.
	GetPurchase(ctx context.Context, receiptID []byte) (*Purchase, error)

	// GetPurchasesByProduct returns all purchases of a product, oldest first.
	GetPurchasesByProduct(ctx context.Context, productID string) ([]*Purchase, error)

	// ListPurchases returns purchases ordered by creation time.
	ListPurchases(ctx context.Context, opts ...query.Option) ([]*Purchase, error)
}

// ReceiptID derives the identifier a receipt is recorded under.
func ReceiptID(receipt string) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(receipt))
	return hasher.Sum(nil)
}

func (p *Purchase) Clone() *Purchase {
	receiptID := make([]byte, len(p.ReceiptID))
	copy(receiptID, p.ReceiptID)

	return &Purchase{
		ID:        p.ID,
		ReceiptID: receiptID,
		Platform:  p.Platform,
		ProductID: p.ProductID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		State:     p.State,
		CreatedAt: p.CreatedAt,
	}
}

func (p *Purchase) Validate() error {
	if p.ID == uuid.Nil {
		return errors.New("purchase id is required")
	}
	if len(p.ReceiptID) == 0 {
		return errors.New("receipt id is required")
	}
	if p.ProductID == "" {
		return errors.New("product id is required")
	}
	if p.State == StateUnknown {
		return errors.New("state is required")
	}
	return nil
}
