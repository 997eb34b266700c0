package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickets(orders []Order) []int64 {
	out := make([]int64, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Ticket)
	}
	return out
}

func TestMergeOrdersKeepsStoredDuplicates(t *testing.T) {
	stored := []Order{
		{Ticket: 1, Symbol: "EURUSD"},
		{Ticket: 2, Symbol: "GBPUSD"},
		{Ticket: 3, Symbol: "XAUUSD", Profit: 10},
	}
	fetched := []Order{
		{Ticket: 3, Symbol: "XAUUSD", Profit: 999},
		{Ticket: 4, Symbol: "USDJPY"},
		{Ticket: 5, Symbol: "BTCUSD"},
	}

	merged, added := MergeOrders(stored, fetched)

	require.Equal(t, 2, added)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, tickets(merged))
	assert.Equal(t, 10.0, merged[2].Profit)
}

func TestMergeOrdersDropsRepeatsInsideFetch(t *testing.T) {
	merged, added := MergeOrders(nil, []Order{{Ticket: 7}, {Ticket: 7, Profit: 1}, {Ticket: 8}})

	assert.Equal(t, 2, added)
	assert.Equal(t, []int64{7, 8}, tickets(merged))
	assert.Zero(t, merged[0].Profit)
}

func TestDedupOrdersEmpty(t *testing.T) {
	assert.Empty(t, DedupOrders(nil))
}

func TestPlatformValid(t *testing.T) {
	assert.True(t, PlatformMT4.Valid())
	assert.True(t, PlatformMT5.Valid())
	assert.False(t, Platform("MT6").Valid())
	assert.False(t, Platform("").Valid())
}
