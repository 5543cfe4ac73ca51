package memory

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/code-payments/unistore/validator"
)

// Validator checks an ed25519 signature on the receipt. The receipt carries
// the signed message, which names the product it was issued for.
type Validator struct {
	publicKey ed25519.PublicKey
}

// NewValidator creates a new Validator from a given public key.
func NewValidator(pubKey ed25519.PublicKey) validator.Validator {
	return &Validator{publicKey: pubKey}
}

func (v *Validator) Validate(ctx context.Context, receipt, productID string) (bool, error) {
	// The receipt format is: base64(signature)|productID:nonce

	signature, message, err := ParseReceipt(receipt)
	if err != nil {
		// A malformed receipt is an invalid receipt, not a failure to validate.
		return false, nil
	}

	if !ed25519.Verify(v.publicKey, message, signature) {
		return false, nil
	}

	// Product IDs may contain ':' themselves, the nonce never does.
	sep := strings.LastIndex(string(message), ":")
	if sep < 0 || string(message[:sep]) != productID {
		return false, nil
	}

	return true, nil
}

func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// GenerateValidReceipt signs "productID:nonce" with the owner key. The nonce
// must not contain ':'.
func GenerateValidReceipt(owner ed25519.PrivateKey, productID, nonce string) string {
	message := productID + ":" + nonce
	signature := ed25519.Sign(owner, []byte(message))
	return base64.StdEncoding.EncodeToString(signature) + "|" + message
}

func ParseReceipt(receipt string) (signature []byte, message []byte, err error) {
	// The base64 signature never contains '|', the message may.
	encoded, rest, ok := strings.Cut(receipt, "|")
	if !ok {
		return nil, nil, errors.Errorf("invalid receipt format: %s", receipt)
	}

	signature, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error decoding signature")
	}

	message = []byte(rest)
	return signature, message, nil
}
