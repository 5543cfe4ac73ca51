package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type ProductType uint8

const (
	ProductTypeUnknown ProductType = iota
	ProductTypeConsumable
	ProductTypeNonConsumable
	ProductTypeSubscription
)

func (t ProductType) String() string {
	switch t {
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonConsumable:
		return "non_consumable"
	case ProductTypeSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Owned reports whether a completed purchase of this type is kept by the
// user, as opposed to being consumed.
func (t ProductType) Owned() bool {
	return t == ProductTypeNonConsumable || t == ProductTypeSubscription
}

type Product struct {
	ID    string
	Title string
	Type  ProductType

	// Price is the display price, e.g. "$0.99".
	Price    string
	Amount   decimal.Decimal
	Currency string
}

// PurchaseInfo describes one purchase attempt.
type PurchaseInfo struct {
	ID        uuid.UUID
	ProductID string
	Price     string
	StartedAt time.Time
}

func (i PurchaseInfo) IsZero() bool {
	return i == PurchaseInfo{}
}

func newPurchaseInfo(productID, price string) (PurchaseInfo, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return PurchaseInfo{}, errors.Wrap(err, "failed to generate purchase id")
	}

	return PurchaseInfo{
		ID:        id,
		ProductID: productID,
		Price:     price,
		StartedAt: time.Now(),
	}, nil
}

// catalog is the immutable set of products known to a controller.
type catalog struct {
	ordered []Product
	byID    map[string]Product
}

func newCatalog(products []Product) (*catalog, error) {
	c := &catalog{
		ordered: make([]Product, 0, len(products)),
		byID:    make(map[string]Product, len(products)),
	}

	for _, p := range products {
		if p.ID == "" {
			return nil, errors.Wrap(ErrInvalidProduct, "empty product id")
		}
		if _, ok := c.byID[p.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateProduct, "product %q", p.ID)
		}

		c.ordered = append(c.ordered, p)
		c.byID[p.ID] = p
	}

	return c, nil
}

func (c *catalog) get(id string) (Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return Product{}, errors.Wrapf(ErrProductNotFound, "product %q", id)
	}
	return p, nil
}

func (c *catalog) products() []Product {
	products := make([]Product, len(c.ordered))
	copy(products, c.ordered)
	return products
}
