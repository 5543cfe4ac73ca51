package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/code-payments/unistore/validator"
)

// Validator remembers verdicts of the wrapped Validator for a TTL. Only
// definitive verdicts are cached; errors always go back to the source.
type Validator struct {
	source validator.Validator
	cache  *ttlcache.Cache
}

func NewInCache(source validator.Validator, ttl time.Duration) *Validator {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return &Validator{
		source: source,
		cache:  cache,
	}
}

func (v *Validator) Validate(ctx context.Context, receipt, productID string) (bool, error) {
	cacheKey := toCacheKey(receipt, productID)

	cached, ok := v.cache.Get(cacheKey)
	if ok {
		return cached.(bool), nil
	}

	valid, err := v.source.Validate(ctx, receipt, productID)
	if err != nil {
		return false, err
	}

	v.cache.Set(cacheKey, valid)
	return valid, nil
}

// Forget drops the cached verdict for a receipt, e.g. after a refund.
func (v *Validator) Forget(receipt, productID string) {
	v.cache.Remove(toCacheKey(receipt, productID))
}

func (v *Validator) Close() {
	v.cache.Close()
}

func toCacheKey(receipt, productID string) string {
	hasher := sha256.New()
	hasher.Write([]byte(productID))
	hasher.Write([]byte{0})
	hasher.Write([]byte(receipt))
	return hex.EncodeToString(hasher.Sum(nil))
}
