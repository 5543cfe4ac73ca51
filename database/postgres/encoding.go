package pg

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var ErrInvalidEncoding = errors.New("invalid encoded value")

// EncodeType names how a binary column value is rendered as text.
type EncodeType string

const (
	Base64            EncodeType = "b64"
	Base58            EncodeType = "b58"
	Hex               EncodeType = "hex"
	DefaultEncodeType            = Base64
)

// Encode renders value as "<type>:<encoded>". The type defaults to Base64.
func Encode(value []byte, encodeType ...EncodeType) string {
	encType := DefaultEncodeType
	if len(encodeType) > 0 {
		encType = encodeType[0]
	}

	switch encType {
	case Base58:
		return string(Base58) + ":" + base58.Encode(value)
	case Hex:
		return string(Hex) + ":" + hex.EncodeToString(value)
	default:
		return string(Base64) + ":" + base64.StdEncoding.EncodeToString(value)
	}
}

// Decode reverses Encode, reading the encoding from the value's prefix.
func Decode(value string) ([]byte, error) {
	prefix, encoded, ok := strings.Cut(value, ":")
	if !ok {
		return nil, errors.Wrap(ErrInvalidEncoding, "missing encoding prefix")
	}

	var decoded []byte
	var err error
	switch EncodeType(prefix) {
	case Base58:
		decoded, err = base58.Decode(encoded)
	case Hex:
		decoded, err = hex.DecodeString(encoded)
	case Base64:
		decoded, err = base64.StdEncoding.DecodeString(encoded)
	default:
		return nil, errors.Wrapf(ErrInvalidEncoding, "unsupported encoding %q", prefix)
	}
	if err != nil {
		// Keep both the sentinel and the decoder's error matchable.
		return nil, multierr.Append(ErrInvalidEncoding, errors.Wrapf(err, "failed to decode %s value", prefix))
	}
	return decoded, nil
}
