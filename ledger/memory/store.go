package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/code-payments/unistore/ledger"
	"github.com/code-payments/unistore/query"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	purchases map[string]*ledger.Purchase
}

func NewInMemory() ledger.Store {
	return &InMemoryStore{
		purchases: map[string]*ledger.Purchase{},
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purchases = make(map[string]*ledger.Purchase)
}

func (s *InMemoryStore) CreatePurchase(_ context.Context, purchase *ledger.Purchase) error {
	if err := purchase.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.purchases[string(purchase.ReceiptID)]
	if ok {
		return ledger.ErrExists
	}

	for _, existing := range s.purchases {
		if existing.ID == purchase.ID {
			return ledger.ErrExists
		}
	}

	s.purchases[string(purchase.ReceiptID)] = purchase.Clone()

	return nil
}

func (s *InMemoryStore) UpdateState(_ context.Context, receiptID []byte, state ledger.State) error {
	if state == ledger.StateUnknown {
		return errors.New("state is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[string(receiptID)]
	if !ok {
		return ledger.ErrNotFound
	}

	purchase.State = state
	return nil
}

func (s *InMemoryStore) GetPurchase(_ context.Context, receiptID []byte) (*ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[string(receiptID)]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return purchase.Clone(), nil
}

func (s *InMemoryStore) GetPurchasesByProduct(_ context.Context, productID string) ([]*ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var purchases []*ledger.Purchase
	for _, purchase := range s.purchases {
		if purchase.ProductID == productID {
			purchases = append(purchases, purchase.Clone())
		}
	}

	sortPurchases(purchases, query.Ascending)
	return purchases, nil
}

func (s *InMemoryStore) ListPurchases(_ context.Context, opts ...query.Option) ([]*ledger.Purchase, error) {
	applied := query.ApplyOptions(opts...)

	s.mu.RLock()
	purchases := make([]*ledger.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		purchases = append(purchases, purchase.Clone())
	}
	s.mu.RUnlock()

	sortPurchases(purchases, applied.Order)
	if len(purchases) > applied.Limit {
		purchases = purchases[:applied.Limit]
	}
	return purchases, nil
}

// sortPurchases orders by creation time, breaking ties with the purchase ID.
func sortPurchases(purchases []*ledger.Purchase, order query.Order) {
	sort.Slice(purchases, func(i, j int) bool {
		a, b := purchases[i], purchases[j]
		if order == query.Descending {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
