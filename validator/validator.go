package validator

import "context"

type Validator interface {

	// Validate determines whether a receipt is a genuine proof of purchase
	// for the product. A receipt that fails validation is reported as
	// (false, nil); errors are reserved for failures to reach a verdict.
	Validate(ctx context.Context, receipt, productID string) (bool, error)
}

// Func is an adapter to allow the use of ordinary functions as Validators.
type Func func(ctx context.Context, receipt, productID string) (bool, error)

// Validate calls f(ctx, receipt, productID).
func (f Func) Validate(ctx context.Context, receipt, productID string) (bool, error) {
	return f(ctx, receipt, productID)
}

// None accepts every receipt. It stands in when no Validator is configured.
var None Validator = Func(func(context.Context, string, string) (bool, error) {
	return true, nil
})
