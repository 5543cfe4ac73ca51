package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/code-payments/unistore/event"
	"github.com/code-payments/unistore/validator"
)

const streamNotifyTimeout = time.Second

// Controller mediates between callers and a Storefront. It owns the product
// catalog and the purchase info cache, and broadcasts lifecycle events.
type Controller struct {
	log        *zap.Logger
	catalog    *catalog
	storefront Storefront
	validator  validator.Validator
	bus        *event.Bus[string, Event]

	mu       sync.Mutex
	infos    map[string]PurchaseInfo
	inFlight map[string]uuid.UUID
}

// NewController creates a controller over the products. A nil validator
// accepts every receipt.
func NewController(
	log *zap.Logger,
	products []Product,
	storefront Storefront,
	v validator.Validator,
) (*Controller, error) {
	if storefront == nil {
		return nil, errors.New("storefront is required")
	}

	catalog, err := newCatalog(products)
	if err != nil {
		return nil, err
	}

	if v == nil {
		v = validator.None
	}

	return &Controller{
		log:        log,
		catalog:    catalog,
		storefront: storefront,
		validator:  v,
		bus:        event.NewBus[string, Event](),
		infos:      map[string]PurchaseInfo{},
		inFlight:   map[string]uuid.UUID{},
	}, nil
}

// CreateNewInstance returns a controller over the same catalog and validator
// with a fresh storefront, an empty purchase info cache and no listeners.
func (c *Controller) CreateNewInstance() (*Controller, error) {
	return NewController(c.log, c.catalog.products(), c.storefront.CreateNewInstance(), c.validator)
}

func (c *Controller) Products() []Product {
	return c.catalog.products()
}

func (c *Controller) IsPurchased(ctx context.Context, productID string) (bool, error) {
	product, err := c.catalog.get(productID)
	if err != nil {
		return false, err
	}

	return c.storefront.IsPurchased(ctx, product)
}

func (c *Controller) GetPrice(ctx context.Context, productID string) (string, error) {
	product, err := c.catalog.get(productID)
	if err != nil {
		return "", err
	}

	return c.storefront.GetPrice(ctx, product)
}

// GetProductInfo returns the most recent purchase attempt for the product.
func (c *Controller) GetProductInfo(productID string) (PurchaseInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.infos[productID]
	return info, ok
}

// Buy starts a purchase of the product. Its outcome is delivered as a
// success or failure event.
func (c *Controller) Buy(ctx context.Context, productID string) (PurchaseInfo, error) {
	log := c.log.With(zap.String("product_id", productID))

	product, err := c.catalog.get(productID)
	if err != nil {
		log.Warn("Rejecting purchase of unknown product")
		return PurchaseInfo{}, err
	}

	price, err := c.storefront.GetPrice(ctx, product)
	if err != nil {
		log.Warn("Failed to get price", zap.Error(err))
		return PurchaseInfo{}, errors.Wrap(err, "failed to get price")
	}

	info, err := newPurchaseInfo(productID, price)
	if err != nil {
		return PurchaseInfo{}, err
	}

	c.mu.Lock()
	if _, ok := c.inFlight[productID]; ok {
		c.mu.Unlock()
		log.Debug("Purchase already in progress")
		return PurchaseInfo{}, errors.Wrapf(ErrPurchaseInProgress, "product %q", productID)
	}
	c.inFlight[productID] = info.ID
	c.infos[productID] = info
	c.mu.Unlock()

	log = log.With(zap.String("purchase_id", info.ID.String()))
	log.Debug("Purchase started")

	c.emit(productID, Event{Type: EventPurchaseStarted, Info: info})

	if err := c.storefront.BuyProcess(ctx, info, product, c); err != nil {
		log.Warn("Failed to start platform purchase", zap.Error(err))
		c.PurchaseFailed(info, err)
		return info, err
	}

	return info, nil
}

// PurchaseSucceeded implements Completer.
func (c *Controller) PurchaseSucceeded(ctx context.Context, info PurchaseInfo, receipt string) bool {
	log := c.log.With(zap.String("product_id", info.ProductID))

	if info.ID == uuid.Nil {
		started, err := c.startUnsolicited(info.ProductID, info.Price)
		if err != nil {
			log.Warn("Dropping unsolicited purchase", zap.Error(err))
			return false
		}
		info = started
	} else if !c.isInFlight(info) {
		log.Warn("Dropping completion for a purchase that is not in progress", zap.String("purchase_id", info.ID.String()))
		return false
	}

	log = log.With(zap.String("purchase_id", info.ID.String()))

	var valid bool
	c.Validate(ctx, receipt, info.ProductID, func(result bool) {
		valid = result
	})

	if !c.complete(info) {
		log.Warn("Purchase completed concurrently, dropping")
		return false
	}

	if !valid {
		log.Warn("Receipt failed validation")
		c.emit(info.ProductID, Event{Type: EventPurchaseFailed, Info: info, Reason: ErrInvalidReceipt})
		return false
	}

	log.Debug("Purchase succeeded")
	c.emit(info.ProductID, Event{Type: EventPurchaseSucceeded, Info: info, Receipt: receipt})
	return true
}

// PurchaseFailed implements Completer.
func (c *Controller) PurchaseFailed(info PurchaseInfo, reason error) {
	log := c.log.With(
		zap.String("product_id", info.ProductID),
		zap.String("purchase_id", info.ID.String()),
	)

	if !c.complete(info) {
		log.Warn("Dropping failure for a purchase that is not in progress", zap.NamedError("reason", reason))
		return
	}

	log.Debug("Purchase failed", zap.NamedError("reason", reason))
	c.emit(info.ProductID, Event{Type: EventPurchaseFailed, Info: info, Reason: reason})
}

// RestorePurchases starts the platform restore flow. The outcome is broadcast
// as a restore event.
func (c *Controller) RestorePurchases(ctx context.Context) {
	c.TryRestorePurchases(ctx, nil)
}

// TryRestorePurchases starts the platform restore flow and calls callback
// exactly once with the outcome, which is also broadcast as a restore event.
func (c *Controller) TryRestorePurchases(ctx context.Context, callback func(ok bool)) {
	var once sync.Once
	finish := func(ok bool, cause error) {
		once.Do(func() {
			c.restored(ok, cause)
			if callback != nil {
				callback(ok)
			}
		})
	}
	done := func(ok bool) {
		finish(ok, nil)
	}

	defer func() {
		if r := recover(); r != nil {
			finish(false, errors.Errorf("restore panicked: %v", r))
		}
	}()

	if err := c.storefront.RestorePurchases(ctx, done); err != nil {
		finish(false, errors.Wrap(err, "failed to start restore"))
	}
}

// Validate passes the receipt to the configured validator and reports its
// verdict through callback exactly once. Validator errors and panics are
// reported as invalid.
func (c *Controller) Validate(ctx context.Context, receipt, productID string, callback func(valid bool)) {
	var valid bool
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("Validator panicked", zap.String("product_id", productID), zap.Any("panic", r))
			valid = false
		}
		callback(valid)
	}()

	result, err := c.validator.Validate(ctx, receipt, productID)
	if err != nil {
		c.log.Warn("Failed to validate receipt", zap.String("product_id", productID), zap.Error(err))
		return
	}
	valid = result
}

// AddHandler registers h for every lifecycle event and returns a function
// that unregisters it.
func (c *Controller) AddHandler(h event.Handler[string, Event]) (remove func()) {
	return c.bus.AddHandler(h)
}

func (c *Controller) OnPurchaseStarted(fn func(info PurchaseInfo)) {
	c.on(EventPurchaseStarted, func(e Event) { fn(e.Info) })
}

func (c *Controller) OnPurchaseSuccess(fn func(info PurchaseInfo, receipt string)) {
	c.on(EventPurchaseSucceeded, func(e Event) { fn(e.Info, e.Receipt) })
}

func (c *Controller) OnPurchaseFailed(fn func(info PurchaseInfo, reason error)) {
	c.on(EventPurchaseFailed, func(e Event) { fn(e.Info, e.Reason) })
}

func (c *Controller) OnRestore(fn func(ok bool)) {
	c.on(EventRestored, func(e Event) { fn(e.Restored) })
}

// Stream returns a buffered stream of all lifecycle events. A consumer that
// falls behind by more than bufferSize events is disconnected.
func (c *Controller) Stream(id string, bufferSize int) *event.ChanStream[Event] {
	stream := event.NewChanStream[Event](id, bufferSize, nil)
	c.bus.AddHandler(&streamHandler{log: c.log, stream: stream})
	return stream
}

// streamHandler feeds a stream until the stream closes, at which point the
// bus drops it.
type streamHandler struct {
	log    *zap.Logger
	stream *event.ChanStream[Event]
}

func (h *streamHandler) OnEvent(_ string, e Event) {
	err := h.stream.Notify(e, streamNotifyTimeout)
	if err != nil && !errors.Is(err, event.ErrStreamClosed) {
		h.log.Warn("Failed to notify stream", zap.String("stream_id", h.stream.ID()), zap.Error(err))
	}
}

func (h *streamHandler) Expired() bool {
	return h.stream.IsClosed()
}

func (c *Controller) on(t EventType, fn func(e Event)) {
	c.bus.AddHandler(event.HandlerFunc[string, Event](func(_ string, e Event) {
		if e.Type == t {
			fn(e)
		}
	}))
}

func (c *Controller) emit(key string, e Event) {
	e.Timestamp = time.Now()
	if err := c.bus.OnEvent(key, e); err != nil {
		c.log.Warn("Event handler failed", zap.String("event", e.Type.String()), zap.Error(err))
	}
}

// restored broadcasts a restore outcome. Failed restores carry
// ErrRestoreFailed, combined with the cause when one is known.
func (c *Controller) restored(ok bool, cause error) {
	var reason error
	if !ok {
		reason = multierr.Append(ErrRestoreFailed, cause)
		c.log.Warn("Restore failed", zap.Error(reason))
	} else {
		c.log.Debug("Restore finished")
	}

	c.emit("", Event{Type: EventRestored, Restored: ok, Reason: reason})
}

func (c *Controller) startUnsolicited(productID, price string) (PurchaseInfo, error) {
	product, err := c.catalog.get(productID)
	if err != nil {
		return PurchaseInfo{}, err
	}
	if price == "" {
		price = product.Price
	}

	info, err := newPurchaseInfo(productID, price)
	if err != nil {
		return PurchaseInfo{}, err
	}

	c.mu.Lock()
	// An unsolicited purchase supersedes whatever attempt was in flight; that
	// attempt is reported cancelled and its own completion will be dropped.
	_, superseded := c.inFlight[productID]
	previous := c.infos[productID]
	c.inFlight[productID] = info.ID
	c.infos[productID] = info
	c.mu.Unlock()

	if superseded {
		c.log.Debug("Cancelling purchase superseded by an unsolicited one",
			zap.String("product_id", productID),
			zap.String("purchase_id", previous.ID.String()),
		)
		c.emit(productID, Event{Type: EventPurchaseFailed, Info: previous, Reason: ErrPurchaseCancelled})
	}

	c.emit(productID, Event{Type: EventPurchaseStarted, Info: info})
	return info, nil
}

func (c *Controller) isInFlight(info PurchaseInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.inFlight[info.ProductID]
	return ok && id == info.ID
}

// complete clears the in-flight attempt, reporting false if info is not it.
func (c *Controller) complete(info PurchaseInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.inFlight[info.ProductID]
	if !ok || id != info.ID {
		return false
	}
	delete(c.inFlight, info.ProductID)
	return true
}
