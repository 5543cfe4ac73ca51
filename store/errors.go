package store

import "github.com/pkg/errors"

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrDuplicateProduct   = errors.New("duplicate product id")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrPurchaseInProgress = errors.New("purchase already in progress")
	ErrInvalidReceipt     = errors.New("receipt failed validation")
	ErrPurchaseCancelled  = errors.New("purchase cancelled")
	ErrRestoreFailed      = errors.New("restore failed")
)
