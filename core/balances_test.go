package core

import (
	"testing"

	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalancesSettle(t *testing.T) {
	b := NewBalances()
	require.NoError(t, b.Settle([]model.Payout{
		{To: seller, Amount: amount(10), Kind: model.PayoutProceeds},
		{To: buyer, Amount: amount(3), Kind: model.PayoutRefund},
		{To: seller, Amount: amount(5), Kind: model.PayoutProceeds},
	}))
	assert.Equal(t, uint64(15), b.BalanceOf(seller).Uint64())
	assert.Equal(t, uint64(3), b.BalanceOf(buyer).Uint64())
	assert.True(t, b.BalanceOf(owner).IsZero())
}

func TestBalancesSettleIsAllOrNothing(t *testing.T) {
	b := NewBalances()
	err := b.Settle([]model.Payout{
		{To: seller, Amount: amount(10), Kind: model.PayoutProceeds},
		{To: common.Address{}, Amount: amount(3), Kind: model.PayoutRefund},
	})
	assert.ErrorIs(t, err, ErrZeroAddress)
	assert.True(t, b.BalanceOf(seller).IsZero())

	b = RestoreBalances(map[common.Address]*uint256.Int{seller: new(uint256.Int).SetAllOne()})
	err = b.Settle([]model.Payout{
		{To: buyer, Amount: amount(1), Kind: model.PayoutRefund},
		{To: seller, Amount: amount(1), Kind: model.PayoutProceeds},
	})
	assert.Error(t, err)
	assert.True(t, b.BalanceOf(buyer).IsZero())
}

func TestBalancesSnapshot(t *testing.T) {
	b := RestoreBalances(map[common.Address]*uint256.Int{
		seller: amount(7),
		buyer:  amount(0),
	})
	snap := b.Snapshot()
	assert.Len(t, snap, 1)
	snap[seller].SetUint64(1)
	assert.Equal(t, uint64(7), b.BalanceOf(seller).Uint64())
}
