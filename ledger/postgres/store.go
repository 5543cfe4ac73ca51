package postgres

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	pg "github.com/code-payments/unistore/database/postgres"
	"github.com/code-payments/unistore/ledger"
	"github.com/code-payments/unistore/query"
)

//go:embed schema.sql
var schema string

const allColumns = `"id", "receiptId", "platform", "productId", "amount", "currency", "state", "createdAt"`

type store struct {
	db *sqlx.DB
}

// NewInPostgres returns a ledger over db, which may have been opened with any
// postgres driver ("pgx", "nrpgx").
func NewInPostgres(db *sql.DB) ledger.Store {
	return &store{
		db: sqlx.NewDb(db, "postgres"),
	}
}

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "failed to apply ledger schema")
}

func (s *store) reset() {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM `+purchaseTable)
	if err != nil {
		panic(err)
	}
}

func (s *store) CreatePurchase(ctx context.Context, purchase *ledger.Purchase) error {
	if err := purchase.Validate(); err != nil {
		return err
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO `+purchaseTable+` (`+allColumns+`)
		VALUES (:id, :receiptId, :platform, :productId, :amount, :currency, :state, :createdAt)
	`, toModel(purchase))
	if pg.IsUniqueViolation(err) {
		return ledger.ErrExists
	}
	return err
}

func (s *store) UpdateState(ctx context.Context, receiptID []byte, state ledger.State) error {
	if state == ledger.StateUnknown {
		return errors.New("state is required")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE `+purchaseTable+` SET "state" = $1 WHERE "receiptId" = $2`,
		int(state), pg.Encode(receiptID, pg.Base58),
	)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *store) GetPurchase(ctx context.Context, receiptID []byte) (*ledger.Purchase, error) {
	var m purchaseModel
	err := s.db.GetContext(ctx, &m, `SELECT `+allColumns+` FROM `+purchaseTable+` WHERE "receiptId" = $1`, pg.Encode(receiptID, pg.Base58))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return fromModel(&m)
}

func (s *store) GetPurchasesByProduct(ctx context.Context, productID string) ([]*ledger.Purchase, error) {
	var models []*purchaseModel
	err := s.db.SelectContext(ctx, &models, `
		SELECT `+allColumns+` FROM `+purchaseTable+`
		WHERE "productId" = $1
		ORDER BY "createdAt" ASC, "id" ASC
	`, productID)
	if err != nil {
		return nil, err
	}

	return fromModels(models)
}

func (s *store) ListPurchases(ctx context.Context, opts ...query.Option) ([]*ledger.Purchase, error) {
	applied := query.ApplyOptions(opts...)

	var models []*purchaseModel
	err := s.db.SelectContext(ctx, &models, `
		SELECT `+allColumns+` FROM `+purchaseTable+`
		ORDER BY "createdAt" `+applied.SQL()+`, "id" `+applied.SQL()+`
		LIMIT $1
	`, applied.Limit)
	if err != nil {
		return nil, err
	}

	return fromModels(models)
}
