package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/unistore/ledger"
	"github.com/code-payments/unistore/query"
)

func RunStoreTests(t *testing.T, s ledger.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s ledger.Store){
		testLedgerStore_HappyPath,
		testLedgerStore_DuplicateID,
		testLedgerStore_UpdateState,
		testLedgerStore_InvalidPurchase,
		testLedgerStore_ByProduct,
		testLedgerStore_List,
	} {
		tf(t, s)
		teardown()
	}
}

func newPurchase(productID, receipt string, createdAt time.Time) *ledger.Purchase {
	return &ledger.Purchase{
		ID:        uuid.New(),
		ReceiptID: ledger.ReceiptID(receipt),
		Platform:  "sandbox",
		ProductID: productID,
		Amount:    decimal.RequireFromString("0.99"),
		Currency:  "USD",
		State:     ledger.StateFulfilled,
		CreatedAt: createdAt,
	}
}

func requirePurchaseEqual(t *testing.T, expected, actual *ledger.Purchase) {
	require.Equal(t, expected.ID, actual.ID)
	require.Equal(t, expected.ReceiptID, actual.ReceiptID)
	require.Equal(t, expected.Platform, actual.Platform)
	require.Equal(t, expected.ProductID, actual.ProductID)
	require.True(t, expected.Amount.Equal(actual.Amount), "%s != %s", expected.Amount, actual.Amount)
	require.Equal(t, expected.Currency, actual.Currency)
	require.Equal(t, expected.State, actual.State)
	require.WithinDuration(t, expected.CreatedAt, actual.CreatedAt, time.Millisecond)
}

func testLedgerStore_HappyPath(t *testing.T, store ledger.Store) {
	expected := newPurchase("coin_100", "receipt", time.Now())

	_, err := store.GetPurchase(context.Background(), expected.ReceiptID)
	require.Equal(t, ledger.ErrNotFound, err)

	require.NoError(t, store.CreatePurchase(context.Background(), expected))

	actual, err := store.GetPurchase(context.Background(), expected.ReceiptID)
	require.NoError(t, err)
	requirePurchaseEqual(t, expected, actual)

	require.Equal(t, ledger.ErrExists, store.CreatePurchase(context.Background(), expected))

	// Returned purchases are copies
	actual.ReceiptID[0] ^= 0xff
	again, err := store.GetPurchase(context.Background(), expected.ReceiptID)
	require.NoError(t, err)
	requirePurchaseEqual(t, expected, again)
}

func testLedgerStore_DuplicateID(t *testing.T, store ledger.Store) {
	original := newPurchase("no_ads", "r1", time.Now())
	require.NoError(t, store.CreatePurchase(context.Background(), original))

	duplicate := newPurchase("no_ads", "r2", time.Now())
	duplicate.ID = original.ID
	require.Equal(t, ledger.ErrExists, store.CreatePurchase(context.Background(), duplicate))

	_, err := store.GetPurchase(context.Background(), duplicate.ReceiptID)
	require.Equal(t, ledger.ErrNotFound, err)

	purchases, err := store.ListPurchases(context.Background())
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	requirePurchaseEqual(t, original, purchases[0])
}

func testLedgerStore_UpdateState(t *testing.T, store ledger.Store) {
	expected := newPurchase("no_ads", "receipt", time.Now())
	expected.State = ledger.StatePending

	require.Equal(t, ledger.ErrNotFound, store.UpdateState(context.Background(), expected.ReceiptID, ledger.StateFulfilled))

	require.NoError(t, store.CreatePurchase(context.Background(), expected))
	require.Error(t, store.UpdateState(context.Background(), expected.ReceiptID, ledger.StateUnknown))

	for _, state := range []ledger.State{ledger.StateRejected, ledger.StateFulfilled} {
		require.NoError(t, store.UpdateState(context.Background(), expected.ReceiptID, state))

		actual, err := store.GetPurchase(context.Background(), expected.ReceiptID)
		require.NoError(t, err)
		expected.State = state
		requirePurchaseEqual(t, expected, actual)
	}
}

func testLedgerStore_InvalidPurchase(t *testing.T, store ledger.Store) {
	for _, mutate := range []func(p *ledger.Purchase){
		func(p *ledger.Purchase) { p.ID = uuid.Nil },
		func(p *ledger.Purchase) { p.ReceiptID = nil },
		func(p *ledger.Purchase) { p.ProductID = "" },
		func(p *ledger.Purchase) { p.State = ledger.StateUnknown },
	} {
		purchase := newPurchase("coin_100", "receipt", time.Now())
		mutate(purchase)
		require.Error(t, store.CreatePurchase(context.Background(), purchase))
	}
}

func testLedgerStore_ByProduct(t *testing.T, store ledger.Store) {
	now := time.Now()

	first := newPurchase("no_ads", "r1", now.Add(-time.Minute))
	second := newPurchase("no_ads", "r2", now)
	other := newPurchase("coin_100", "r3", now)

	for _, p := range []*ledger.Purchase{second, other, first} {
		require.NoError(t, store.CreatePurchase(context.Background(), p))
	}

	purchases, err := store.GetPurchasesByProduct(context.Background(), "no_ads")
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	requirePurchaseEqual(t, first, purchases[0])
	requirePurchaseEqual(t, second, purchases[1])

	purchases, err = store.GetPurchasesByProduct(context.Background(), "unknown")
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func testLedgerStore_List(t *testing.T, store ledger.Store) {
	now := time.Now()

	var expected []*ledger.Purchase
	for i, receipt := range []string{"a", "b", "c", "d"} {
		p := newPurchase("coin_100", receipt, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.CreatePurchase(context.Background(), p))
		expected = append(expected, p)
	}

	purchases, err := store.ListPurchases(context.Background())
	require.NoError(t, err)
	require.Len(t, purchases, 4)
	for i := range expected {
		requirePurchaseEqual(t, expected[i], purchases[i])
	}

	purchases, err = store.ListPurchases(context.Background(), query.WithDescending(), query.WithLimit(2))
	require.NoError(t, err)
	require.Len(t, purchases, 2)
	requirePurchaseEqual(t, expected[3], purchases[0])
	requirePurchaseEqual(t, expected[2], purchases[1])
}
