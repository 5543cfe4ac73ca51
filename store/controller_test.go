package store

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/code-payments/unistore/event"
	"github.com/code-payments/unistore/validator"
)

// fakeStorefront records the completer of each purchase so tests can finish
// purchases whenever they like.
type fakeStorefront struct {
	mu        sync.Mutex
	pending   map[string]PurchaseInfo
	completer Completer
	owned     map[string]bool

	buyErr     error
	restoreErr error
	restore    func(done func(bool))
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{
		pending: map[string]PurchaseInfo{},
		owned:   map[string]bool{},
	}
}

func (f *fakeStorefront) IsPurchased(_ context.Context, product Product) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owned[product.ID], nil
}

func (f *fakeStorefront) GetPrice(_ context.Context, product Product) (string, error) {
	return product.Price, nil
}

func (f *fakeStorefront) BuyProcess(_ context.Context, info PurchaseInfo, _ Product, c Completer) error {
	if f.buyErr != nil {
		return f.buyErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[info.ProductID] = info
	f.completer = c
	return nil
}

func (f *fakeStorefront) RestorePurchases(_ context.Context, done func(bool)) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	if f.restore != nil {
		f.restore(done)
		return nil
	}
	done(true)
	return nil
}

func (f *fakeStorefront) CreateNewInstance() Storefront {
	return newFakeStorefront()
}

func (f *fakeStorefront) succeed(t *testing.T, productID, receipt string) bool {
	f.mu.Lock()
	info, ok := f.pending[productID]
	c := f.completer
	f.mu.Unlock()
	require.True(t, ok)

	return c.PurchaseSucceeded(context.Background(), info, receipt)
}

func (f *fakeStorefront) fail(t *testing.T, productID string, reason error) {
	f.mu.Lock()
	info, ok := f.pending[productID]
	c := f.completer
	f.mu.Unlock()
	require.True(t, ok)

	c.PurchaseFailed(info, reason)
}

type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(_ string, e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	var types []EventType
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

var testProducts = []Product{
	{ID: "coin_100", Title: "100 Coins", Price: "$0.99", Type: ProductTypeConsumable},
	{ID: "no_ads", Title: "Remove Ads", Price: "$2.99", Type: ProductTypeNonConsumable},
}

func newTestController(t *testing.T, v validator.Validator) (*Controller, *fakeStorefront, *recorder) {
	storefront := newFakeStorefront()
	c, err := NewController(zap.NewNop(), testProducts, storefront, v)
	require.NoError(t, err)

	rec := &recorder{}
	c.AddHandler(rec)
	return c, storefront, rec
}

func TestController_EmptyProductInfos(t *testing.T) {
	c, _, _ := newTestController(t, nil)

	for _, p := range c.Products() {
		info, ok := c.GetProductInfo(p.ID)
		require.False(t, ok)
		require.True(t, info.IsZero())
	}
}

func TestController_InvalidCatalog(t *testing.T) {
	_, err := NewController(zap.NewNop(), []Product{{ID: "a"}, {ID: "a"}}, newFakeStorefront(), nil)
	require.ErrorIs(t, err, ErrDuplicateProduct)

	_, err = NewController(zap.NewNop(), []Product{{ID: ""}}, newFakeStorefront(), nil)
	require.ErrorIs(t, err, ErrInvalidProduct)

	_, err = NewController(zap.NewNop(), testProducts, nil, nil)
	require.Error(t, err)
}

func TestController_BuyWithoutValidator(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	info, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	require.Equal(t, "coin_100", info.ProductID)
	require.Equal(t, "$0.99", info.Price)

	require.Equal(t, []EventType{EventPurchaseStarted}, rec.types())
	require.Equal(t, info, rec.events[0].Info)

	require.True(t, storefront.succeed(t, "coin_100", "R1"))

	require.Equal(t, []EventType{EventPurchaseStarted, EventPurchaseSucceeded}, rec.types())
	require.Equal(t, info, rec.events[1].Info)
	require.Equal(t, "R1", rec.events[1].Receipt)

	cached, ok := c.GetProductInfo("coin_100")
	require.True(t, ok)
	require.Equal(t, "$0.99", cached.Price)
	require.Equal(t, info, cached)
}

func TestController_BuyWithRejectingValidator(t *testing.T) {
	var validated []string
	v := validator.Func(func(_ context.Context, receipt, productID string) (bool, error) {
		validated = append(validated, productID+"/"+receipt)
		return false, nil
	})

	c, storefront, rec := newTestController(t, v)

	var outcome *bool
	c.Validate(context.Background(), "R1", "coin_100", func(valid bool) {
		outcome = &valid
	})
	require.NotNil(t, outcome)
	require.False(t, *outcome)

	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	require.False(t, storefront.succeed(t, "coin_100", "R1"))

	require.Equal(t, []EventType{EventPurchaseStarted, EventPurchaseFailed}, rec.types())
	require.ErrorIs(t, rec.events[1].Reason, ErrInvalidReceipt)
	require.Equal(t, []string{"coin_100/R1", "coin_100/R1"}, validated)
}

func TestController_ValidateMapsFailuresToFalse(t *testing.T) {
	for name, v := range map[string]validator.Validator{
		"error": validator.Func(func(context.Context, string, string) (bool, error) {
			return true, errors.New("network down")
		}),
		"panic": validator.Func(func(context.Context, string, string) (bool, error) {
			panic("validator bug")
		}),
	} {
		t.Run(name, func(t *testing.T) {
			c, _, _ := newTestController(t, v)

			var calls int
			var result bool
			c.Validate(context.Background(), "R1", "coin_100", func(valid bool) {
				calls++
				result = valid
			})
			require.Equal(t, 1, calls)
			require.False(t, result)
		})
	}
}

func TestController_BuyFailure(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	_, err := c.Buy(context.Background(), "no_ads")
	require.NoError(t, err)

	storefront.fail(t, "no_ads", ErrPurchaseCancelled)
	require.Equal(t, []EventType{EventPurchaseStarted, EventPurchaseFailed}, rec.types())
	require.ErrorIs(t, rec.events[1].Reason, ErrPurchaseCancelled)

	// A late success for the same attempt is dropped
	require.False(t, storefront.succeed(t, "no_ads", "late"))
	require.Len(t, rec.events, 2)

	// The product can be bought again
	_, err = c.Buy(context.Background(), "no_ads")
	require.NoError(t, err)
	require.Len(t, rec.events, 3)
}

func TestController_BuyUnknownProduct(t *testing.T) {
	c, _, rec := newTestController(t, nil)

	_, err := c.Buy(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrProductNotFound)
	require.Empty(t, rec.events)

	_, err = c.GetPrice(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = c.IsPurchased(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrProductNotFound)

	_, ok := c.GetProductInfo("unknown")
	require.False(t, ok)
}

func TestController_BuyInProgress(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)

	_, err = c.Buy(context.Background(), "coin_100")
	require.ErrorIs(t, err, ErrPurchaseInProgress)
	require.Equal(t, []EventType{EventPurchaseStarted}, rec.types())

	// Other products are unaffected
	_, err = c.Buy(context.Background(), "no_ads")
	require.NoError(t, err)

	storefront.succeed(t, "coin_100", "R1")
	_, err = c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
}

func TestController_BuyProcessError(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)
	storefront.buyErr = errors.New("billing unavailable")

	info, err := c.Buy(context.Background(), "coin_100")
	require.Error(t, err)
	require.Equal(t, []EventType{EventPurchaseStarted, EventPurchaseFailed}, rec.types())
	require.Equal(t, info, rec.events[1].Info)

	// The failed attempt no longer blocks new ones
	storefront.buyErr = nil
	_, err = c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
}

func TestController_UnsolicitedPurchase(t *testing.T) {
	c, _, rec := newTestController(t, nil)

	require.True(t, c.PurchaseSucceeded(context.Background(), PurchaseInfo{ProductID: "no_ads"}, "deferred"))

	require.Equal(t, []EventType{EventPurchaseStarted, EventPurchaseSucceeded}, rec.types())
	require.Equal(t, rec.events[0].Info, rec.events[1].Info)
	require.Equal(t, "$2.99", rec.events[1].Info.Price)
	require.Equal(t, "deferred", rec.events[1].Receipt)

	// Unknown products are dropped entirely
	require.False(t, c.PurchaseSucceeded(context.Background(), PurchaseInfo{ProductID: "unknown"}, "deferred"))
	require.Len(t, rec.events, 2)
}

func TestController_UnsolicitedPurchaseCancelsAttemptInFlight(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	attempt, err := c.Buy(context.Background(), "no_ads")
	require.NoError(t, err)

	require.True(t, c.PurchaseSucceeded(context.Background(), PurchaseInfo{ProductID: "no_ads"}, "deferred"))

	require.Equal(t, []EventType{
		EventPurchaseStarted,
		EventPurchaseFailed,
		EventPurchaseStarted,
		EventPurchaseSucceeded,
	}, rec.types())
	require.Equal(t, attempt, rec.events[1].Info)
	require.ErrorIs(t, rec.events[1].Reason, ErrPurchaseCancelled)
	require.NotEqual(t, attempt.ID, rec.events[3].Info.ID)

	// The superseded attempt's own completion is dropped
	require.False(t, storefront.succeed(t, "no_ads", "late"))
	require.Len(t, rec.events, 4)

	// Every started attempt got exactly one terminal event
	terminal := map[string]int{}
	for _, e := range rec.events {
		if e.Type == EventPurchaseSucceeded || e.Type == EventPurchaseFailed {
			terminal[e.Info.ID.String()]++
		}
	}
	require.Equal(t, map[string]int{attempt.ID.String(): 1, rec.events[3].Info.ID.String(): 1}, terminal)
}

func TestController_StartedPrecedesTerminal(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	for i := 0; i < 5; i++ {
		_, err := c.Buy(context.Background(), "coin_100")
		require.NoError(t, err)
		if i%2 == 0 {
			storefront.succeed(t, "coin_100", "R")
		} else {
			storefront.fail(t, "coin_100", ErrPurchaseCancelled)
		}
	}

	started := map[string]int{}
	for _, e := range rec.events {
		id := e.Info.ID.String()
		switch e.Type {
		case EventPurchaseStarted:
			started[id]++
		case EventPurchaseSucceeded, EventPurchaseFailed:
			require.Equal(t, 1, started[id])
			started[id]++
		}
	}
	require.Len(t, started, 5)
}

func TestController_ListenerOrderAndIsolation(t *testing.T) {
	c, storefront, _ := newTestController(t, nil)

	var order []string
	c.OnPurchaseStarted(func(PurchaseInfo) { order = append(order, "first") })
	c.OnPurchaseStarted(func(PurchaseInfo) { panic("listener bug") })
	c.OnPurchaseStarted(func(PurchaseInfo) { order = append(order, "third") })

	var receipts []string
	c.OnPurchaseSuccess(func(_ PurchaseInfo, receipt string) { receipts = append(receipts, receipt) })

	var reasons []error
	c.OnPurchaseFailed(func(_ PurchaseInfo, reason error) { reasons = append(reasons, reason) })

	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "third"}, order)

	storefront.succeed(t, "coin_100", "R1")
	require.Equal(t, []string{"R1"}, receipts)
	require.Empty(t, reasons)
}

func TestController_Restore(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	var restored []bool
	c.OnRestore(func(ok bool) { restored = append(restored, ok) })

	c.RestorePurchases(context.Background())
	require.Equal(t, []bool{true}, restored)
	require.Equal(t, []EventType{EventRestored}, rec.types())

	require.NoError(t, rec.events[0].Reason)

	storefront.restoreErr = errors.New("not supported")
	var results []bool
	c.TryRestorePurchases(context.Background(), func(ok bool) { results = append(results, ok) })
	require.Equal(t, []bool{false}, results)
	require.Equal(t, []bool{true, false}, restored)

	require.Len(t, rec.events, 2)
	require.False(t, rec.events[1].Restored)
	require.ErrorIs(t, rec.events[1].Reason, ErrRestoreFailed)
	require.ErrorIs(t, rec.events[1].Reason, storefront.restoreErr)

	// A storefront reporting failure through the callback still carries the
	// sentinel reason
	storefront.restoreErr = nil
	storefront.restore = func(done func(bool)) { done(false) }
	c.RestorePurchases(context.Background())
	require.Len(t, rec.events, 3)
	require.ErrorIs(t, rec.events[2].Reason, ErrRestoreFailed)
}

func TestController_TryRestoreExactlyOnce(t *testing.T) {
	c, storefront, _ := newTestController(t, nil)

	t.Run("double callback", func(t *testing.T) {
		storefront.restore = func(done func(bool)) {
			done(true)
			done(false)
		}

		var results []bool
		c.TryRestorePurchases(context.Background(), func(ok bool) { results = append(results, ok) })
		require.Equal(t, []bool{true}, results)
	})

	t.Run("panic", func(t *testing.T) {
		storefront.restore = func(func(bool)) {
			panic("sdk crash")
		}

		var reason error
		remove := c.AddHandler(event.HandlerFunc[string, Event](func(_ string, e Event) {
			reason = e.Reason
		}))
		defer remove()

		var results []bool
		c.TryRestorePurchases(context.Background(), func(ok bool) { results = append(results, ok) })
		require.Equal(t, []bool{false}, results)
		require.ErrorIs(t, reason, ErrRestoreFailed)
		require.Contains(t, reason.Error(), "sdk crash")
	})

	t.Run("async", func(t *testing.T) {
		ch := make(chan bool, 1)
		storefront.restore = func(done func(bool)) {
			go done(true)
		}

		c.TryRestorePurchases(context.Background(), func(ok bool) { ch <- ok })
		require.True(t, <-ch)
	})
}

func TestController_CreateNewInstance(t *testing.T) {
	c, storefront, rec := newTestController(t, nil)

	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	storefront.succeed(t, "coin_100", "R1")

	fresh, err := c.CreateNewInstance()
	require.NoError(t, err)
	require.Equal(t, c.Products(), fresh.Products())

	_, ok := fresh.GetProductInfo("coin_100")
	require.False(t, ok)

	// The fresh instance has its own listeners and in-flight state
	events := len(rec.events)
	_, err = fresh.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	require.Len(t, rec.events, events)

	_, ok = c.GetProductInfo("coin_100")
	require.True(t, ok)
}

func TestController_Stream(t *testing.T) {
	c, storefront, _ := newTestController(t, nil)

	stream := c.Stream("test", 4)
	defer stream.Close()

	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	storefront.succeed(t, "coin_100", "R1")

	require.Equal(t, EventPurchaseStarted, (<-stream.Channel()).Type)
	e := <-stream.Channel()
	require.Equal(t, EventPurchaseSucceeded, e.Type)
	require.Equal(t, "R1", e.Receipt)
	require.False(t, e.Timestamp.IsZero())
}

func TestController_ClosedStreamIsUnregistered(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	handlers := c.bus.Len()

	stream := c.Stream("test", 4)
	require.Equal(t, handlers+1, c.bus.Len())

	stream.Close()
	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	require.Equal(t, handlers, c.bus.Len())
}

func TestController_AddHandlerRemove(t *testing.T) {
	c, _, rec := newTestController(t, nil)

	other := &recorder{}
	remove := c.AddHandler(other)

	_, err := c.Buy(context.Background(), "coin_100")
	require.NoError(t, err)
	remove()
	_, err = c.Buy(context.Background(), "no_ads")
	require.NoError(t, err)

	require.Len(t, other.events, 1)
	require.Len(t, rec.events, 2)
}

func TestController_IsPurchased(t *testing.T) {
	c, storefront, _ := newTestController(t, nil)

	owned, err := c.IsPurchased(context.Background(), "no_ads")
	require.NoError(t, err)
	require.False(t, owned)

	storefront.owned["no_ads"] = true
	owned, err = c.IsPurchased(context.Background(), "no_ads")
	require.NoError(t, err)
	require.True(t, owned)

	price, err := c.GetPrice(context.Background(), "no_ads")
	require.NoError(t, err)
	require.Equal(t, "$2.99", price)
}

var _ event.Handler[string, Event] = (*recorder)(nil)
