package store

import "context"

// Storefront is the platform-specific side of a store: an app store, a
// desktop platform, or a local sandbox.
type Storefront interface {
	// IsPurchased reports whether the user owns the product on the platform.
	IsPurchased(ctx context.Context, product Product) (bool, error)

	// GetPrice returns the platform's display price for the product.
	GetPrice(ctx context.Context, product Product) (string, error)

	// BuyProcess starts the platform purchase for an attempt. The outcome is
	// reported through c, either before BuyProcess returns or later from any
	// goroutine. A returned error means the purchase could not be started and
	// c will not be called.
	BuyProcess(ctx context.Context, info PurchaseInfo, product Product, c Completer) error

	// RestorePurchases starts the platform restore flow and reports its
	// outcome through done. A returned error means the flow could not be
	// started and done will not be called.
	RestorePurchases(ctx context.Context, done func(ok bool)) error

	// CreateNewInstance returns a storefront that shares no mutable state
	// with this one.
	CreateNewInstance() Storefront
}

// Completer receives purchase outcomes from a Storefront.
type Completer interface {
	// PurchaseSucceeded reports a completed platform purchase. A zero info.ID
	// marks a purchase the platform completed without a matching Buy, such as
	// a deferred or store-initiated purchase.
	//
	// It reports whether the purchase was accepted, i.e. its receipt passed
	// validation and a success event was emitted. Storefronts should only
	// finish (acknowledge, grant ownership of) accepted purchases.
	PurchaseSucceeded(ctx context.Context, info PurchaseInfo, receipt string) bool

	PurchaseFailed(info PurchaseInfo, reason error)
}
