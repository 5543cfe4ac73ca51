package sandbox

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/code-payments/unistore/ledger"
	ledger_memory "github.com/code-payments/unistore/ledger/memory"
	"github.com/code-payments/unistore/store"
	"github.com/code-payments/unistore/validator/memory"
)

const Platform = "sandbox"

var (
	ErrDeclined = errors.New("payment declined")

	reasonPrinter = message.NewPrinter(language.English)
)

type Options struct {
	// Async completes purchases and restores on a new goroutine.
	Async bool

	// Outcome decides whether a purchase goes through. A non-nil error fails
	// the purchase with that reason.
	Outcome func(ctx context.Context, product store.Product) error

	// RestoreErr, if set, fails every restore.
	RestoreErr error
}

// Storefront completes purchases locally. It issues receipts signed with its
// key, which validator/memory accepts, and records them in a ledger.
type Storefront struct {
	log     *zap.Logger
	signer  ed25519.PrivateKey
	ledger  ledger.Store
	options Options
}

func NewStorefront(log *zap.Logger, signer ed25519.PrivateKey, purchases ledger.Store, options Options) *Storefront {
	return &Storefront{
		log:     log.With(zap.String("platform", Platform)),
		signer:  signer,
		ledger:  purchases,
		options: options,
	}
}

func (s *Storefront) IsPurchased(ctx context.Context, product store.Product) (bool, error) {
	if !product.Type.Owned() {
		return false, nil
	}

	purchases, err := s.ledger.GetPurchasesByProduct(ctx, product.ID)
	if err != nil {
		return false, errors.Wrap(err, "failed to get purchases")
	}

	for _, p := range purchases {
		if p.State == ledger.StateFulfilled {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storefront) GetPrice(_ context.Context, product store.Product) (string, error) {
	if product.Price != "" {
		return product.Price, nil
	}
	return FormatPrice(product), nil
}

func (s *Storefront) BuyProcess(ctx context.Context, info store.PurchaseInfo, product store.Product, c store.Completer) error {
	if s.options.Async {
		go s.buy(context.WithoutCancel(ctx), info, product, c)
		return nil
	}

	s.buy(ctx, info, product, c)
	return nil
}

func (s *Storefront) buy(ctx context.Context, info store.PurchaseInfo, product store.Product, c store.Completer) {
	log := s.log.With(
		zap.String("product_id", product.ID),
		zap.String("purchase_id", info.ID.String()),
	)

	if s.options.Outcome != nil {
		if err := s.options.Outcome(ctx, product); err != nil {
			log.Debug("Purchase declined", zap.Error(err))
			c.PurchaseFailed(info, err)
			return
		}
	}

	nonce, err := uuid.NewRandom()
	if err != nil {
		c.PurchaseFailed(info, errors.Wrap(err, "failed to generate receipt nonce"))
		return
	}
	receipt := memory.GenerateValidReceipt(s.signer, product.ID, nonce.String())
	receiptID := ledger.ReceiptID(receipt)

	// The purchase stays pending until the completer accepts its receipt, so
	// a rejected receipt never grants ownership.
	err = s.ledger.CreatePurchase(ctx, &ledger.Purchase{
		ID:        info.ID,
		ReceiptID: receiptID,
		Platform:  Platform,
		ProductID: product.ID,
		Amount:    product.Amount,
		Currency:  product.Currency,
		State:     ledger.StatePending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Warn("Failed to record purchase", zap.Error(err))
		c.PurchaseFailed(info, errors.Wrap(err, "failed to record purchase"))
		return
	}

	state := ledger.StateRejected
	if c.PurchaseSucceeded(ctx, info, receipt) {
		state = ledger.StateFulfilled
	}

	if err := s.ledger.UpdateState(ctx, receiptID, state); err != nil {
		log.Warn("Failed to finish purchase", zap.Error(err))
		return
	}

	log.Debug("Purchase finished", zap.Bool("accepted", state == ledger.StateFulfilled))
}

func (s *Storefront) RestorePurchases(ctx context.Context, done func(ok bool)) error {
	if s.options.Async {
		go s.restore(context.WithoutCancel(ctx), done)
		return nil
	}

	s.restore(ctx, done)
	return nil
}

func (s *Storefront) restore(ctx context.Context, done func(ok bool)) {
	if s.options.RestoreErr != nil {
		s.log.Debug("Restore failed", zap.Error(s.options.RestoreErr))
		done(false)
		return
	}

	purchases, err := s.ledger.ListPurchases(ctx)
	if err != nil {
		s.log.Warn("Failed to list purchases", zap.Error(err))
		done(false)
		return
	}

	s.log.Debug("Restored purchases", zap.Int("count", len(purchases)))
	done(true)
}

// CreateNewInstance returns a sandbox with the same key and options but an
// empty in-memory ledger.
func (s *Storefront) CreateNewInstance() store.Storefront {
	return &Storefront{
		log:     s.log,
		signer:  s.signer,
		ledger:  ledger_memory.NewInMemory(),
		options: s.options,
	}
}

// Decline returns an Outcome that declines purchases of the given products.
func Decline(productIDs ...string) func(context.Context, store.Product) error {
	declined := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		declined[id] = struct{}{}
	}

	return func(_ context.Context, product store.Product) error {
		if _, ok := declined[product.ID]; !ok {
			return nil
		}
		return errors.Wrap(ErrDeclined, reasonPrinter.Sprintf("charge of %v %s for %s", product.Amount.InexactFloat64(), product.Currency, product.Title))
	}
}

// FormatPrice renders a product's amount and currency for display.
func FormatPrice(product store.Product) string {
	return reasonPrinter.Sprintf("%.2f %s", product.Amount.InexactFloat64(), product.Currency)
}
