package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeItems(t *testing.T) {
	merged := MergeItems([]Item{
		{ProductID: "p-1", Quantity: 6},
		{ProductID: "p-2", Quantity: 1},
		{ProductID: "p-1", Quantity: 6},
	})
	require.Equal(t, []Item{
		{ProductID: "p-1", Quantity: 12},
		{ProductID: "p-2", Quantity: 1},
	}, merged)
}

func TestValidateItems(t *testing.T) {
	require.ErrorIs(t, ValidateItems(nil), ErrInvalidQuantity)
	require.ErrorIs(t, ValidateItems([]Item{{ProductID: "p-1", Quantity: 0}}), ErrInvalidQuantity)
	require.NoError(t, ValidateItems([]Item{{ProductID: "p-1", Quantity: 1}}))
}
