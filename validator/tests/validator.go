package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/unistore/validator"
)

type ValidReceiptForProduct func(productID string) string

func RunGenericValidatorTests(t *testing.T, v validator.Validator, productID string, validReceiptFunc ValidReceiptForProduct, teardown func()) {
	for _, testFunc := range []func(t *testing.T, v validator.Validator, productID string, validReceiptFunc ValidReceiptForProduct){
		testValidReceipt,
		testInvalidReceipt,
		testReceiptForOtherProduct,
		testDelimitersInProductID,
	} {
		testFunc(t, v, productID, validReceiptFunc)
		teardown()
	}
}

func testValidReceipt(t *testing.T, v validator.Validator, productID string, validReceiptFunc ValidReceiptForProduct) {
	valid, err := v.Validate(context.Background(), validReceiptFunc(productID), productID)
	require.NoError(t, err)
	require.True(t, valid)
}

func testInvalidReceipt(t *testing.T, v validator.Validator, productID string, _ ValidReceiptForProduct) {
	// Just use the word "invalid" as an invalid receipt.
	valid, _ := v.Validate(context.Background(), "invalid", productID)
	require.False(t, valid)
}

func testReceiptForOtherProduct(t *testing.T, v validator.Validator, productID string, validReceiptFunc ValidReceiptForProduct) {
	valid, _ := v.Validate(context.Background(), validReceiptFunc(productID+"_other"), productID)
	require.False(t, valid)
}

func testDelimitersInProductID(t *testing.T, v validator.Validator, _ string, validReceiptFunc ValidReceiptForProduct) {
	for _, productID := range []string{"com.game:gold", "pack|gold", "a:b|c:d"} {
		valid, err := v.Validate(context.Background(), validReceiptFunc(productID), productID)
		require.NoError(t, err)
		require.True(t, valid, productID)
	}

	// A receipt for "pack|gold" does not cover "pack" and vice versa
	valid, _ := v.Validate(context.Background(), validReceiptFunc("pack|gold"), "pack")
	require.False(t, valid)
	valid, _ = v.Validate(context.Background(), validReceiptFunc("com.game"), "com.game:gold")
	require.False(t, valid)
}
