package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyOptions(t *testing.T) {
	opts := ApplyOptions()
	require.Equal(t, DefaultOptions(), opts)
	require.Equal(t, "ASC", opts.SQL())

	opts = ApplyOptions(WithLimit(10), WithDescending())
	require.Equal(t, 10, opts.Limit)
	require.Equal(t, "DESC", opts.SQL())

	// Non-positive limits keep the default
	opts = ApplyOptions(WithLimit(0), WithOrder(Descending), WithAscending())
	require.Equal(t, 100, opts.Limit)
	require.Equal(t, Ascending, opts.Order)
}
