package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pg "github.com/code-payments/unistore/database/postgres"
	"github.com/code-payments/unistore/ledger"
)

const purchaseTable = "unistore_purchases"

// purchaseModel maps to the unistore_purchases table
type purchaseModel struct {
	ID        string          `db:"id"`
	ReceiptID string          `db:"receiptId"`
	Platform  string          `db:"platform"`
	ProductID string          `db:"productId"`
	Amount    decimal.Decimal `db:"amount"`
	Currency  string          `db:"currency"`
	State     int             `db:"state"`
	CreatedAt time.Time       `db:"createdAt"`
}

func toModel(p *ledger.Purchase) *purchaseModel {
	return &purchaseModel{
		ID:        p.ID.String(),
		ReceiptID: pg.Encode(p.ReceiptID, pg.Base58),
		Platform:  p.Platform,
		ProductID: p.ProductID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		State:     int(p.State),
		CreatedAt: p.CreatedAt.UTC(),
	}
}

func fromModel(m *purchaseModel) (*ledger.Purchase, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}

	receiptID, err := pg.Decode(m.ReceiptID)
	if err != nil {
		return nil, err
	}

	return &ledger.Purchase{
		ID:        id,
		ReceiptID: receiptID,
		Platform:  m.Platform,
		ProductID: m.ProductID,
		Amount:    m.Amount,
		Currency:  m.Currency,
		State:     ledger.State(m.State),
		CreatedAt: m.CreatedAt,
	}, nil
}

func fromModels(models []*purchaseModel) ([]*ledger.Purchase, error) {
	purchases := make([]*ledger.Purchase, 0, len(models))
	for _, m := range models {
		p, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, nil
}
