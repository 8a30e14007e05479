package store

import (
	"testing"

	"dutch-auction-engine/core"
	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	seller = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
)

const startAt uint64 = 1_700_000_000

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mirrored returns an engine whose receipts are applied to s.
func mirrored(t *testing.T, s *Store) (*core.Engine, *core.Balances) {
	t.Helper()
	require.NoError(t, s.Init(owner))
	balances := core.NewBalances()
	e := core.NewEngine(owner, balances)
	e.Subscribe(func(r *model.Receipt) {
		require.NoError(t, s.Apply(r))
	})
	return e, balances
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestLoadEmpty(t *testing.T) {
	s := openTestStore(t)
	snapshot, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, snapshot)
}

func TestInitKeepsExistingOwner(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Init(owner))
	require.NoError(t, s.Init(seller))

	snapshot, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, owner, snapshot.Owner)
	assert.True(t, snapshot.Treasury.IsZero())
	assert.Empty(t, snapshot.Auctions)
}

func TestApplyAndRestore(t *testing.T) {
	s := openTestStore(t)
	e, _ := mirrored(t, s)

	call := model.CallContext{Caller: seller, Timestamp: startAt}
	_, err := e.CreateAuction(call, 60, uint256.NewInt(100000), uint256.NewInt(3), "test item")
	require.NoError(t, err)
	_, err = e.CreateAuction(call, 120, uint256.NewInt(5000), uint256.NewInt(1), "second")
	require.NoError(t, err)

	_, err = e.Buy(model.CallContext{Caller: buyer, Timestamp: startAt + 10, Value: uint256.NewInt(100000)}, 0)
	require.NoError(t, err)

	snapshot, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snapshot.Auctions, 2)
	assert.True(t, snapshot.Auctions[0].Stopped)
	assert.Equal(t, uint64(99970), snapshot.Auctions[0].FinalPrice.Uint64())
	assert.False(t, snapshot.Auctions[1].Stopped)
	assert.Equal(t, "second", snapshot.Auctions[1].Item)
	assert.Equal(t, startAt+120, snapshot.Auctions[1].EndAt)
	assert.Equal(t, uint64(4998), snapshot.Treasury.Uint64())
	assert.Equal(t, uint64(94972), snapshot.Balances[seller].Uint64())
	assert.Equal(t, uint64(30), snapshot.Balances[buyer].Uint64())

	balances := core.RestoreBalances(snapshot.Balances)
	restored := core.Restore(snapshot, balances)
	assert.Equal(t, owner, restored.Owner())
	assert.Equal(t, uint64(2), restored.Count())

	amount, err := e.Withdraw(model.CallContext{Caller: owner, Timestamp: startAt + 20})
	require.NoError(t, err)
	assert.Equal(t, uint64(4998), amount.Uint64())

	snapshot, _, err = s.Load()
	require.NoError(t, err)
	assert.True(t, snapshot.Treasury.IsZero())
	assert.Equal(t, uint64(4998), snapshot.Balances[owner].Uint64())
}

func TestApplyWithoutStateRow(t *testing.T) {
	s := openTestStore(t)
	r := &model.Receipt{Operation: model.OperationWithdraw, Caller: owner, Treasury: new(uint256.Int)}
	assert.ErrorIs(t, s.Apply(r), ErrCorrupt)
}

func TestLogs(t *testing.T) {
	s := openTestStore(t)
	e, _ := mirrored(t, s)

	_, err := e.CreateAuction(model.CallContext{Caller: seller, Timestamp: startAt}, 60, uint256.NewInt(100000), uint256.NewInt(3), "test item")
	require.NoError(t, err)
	_, err = e.Buy(model.CallContext{Caller: buyer, Timestamp: startAt + 10, Value: uint256.NewInt(99970)}, 0)
	require.NoError(t, err)

	created, err := s.Logs(model.TopicAuctionCreated)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, seller.Hex(), created[0].Caller)

	ended, err := s.Logs(model.TopicAuctionEnded)
	require.NoError(t, err)
	require.Len(t, ended, 1)
	assert.Equal(t, string(model.OperationBuy), ended[0].Operation)
	assert.Equal(t, startAt+10, ended[0].Timestamp)
}

func TestCheckpoint(t *testing.T) {
	s := openTestStore(t)

	block, inscriptions, err := s.Checkpoint()
	require.NoError(t, err)
	assert.Zero(t, block)
	assert.Zero(t, inscriptions)

	require.NoError(t, s.Init(owner))
	require.NoError(t, s.SaveCheckpoint(1200, 17))
	block, inscriptions, err = s.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), block)
	assert.Equal(t, uint64(17), inscriptions)
}

func TestSaveOp(t *testing.T) {
	s := openTestStore(t)
	from := "0x00000000000000000000000000000000000000a3"

	require.NoError(t, s.SaveOp(&model.AuctionOp{Number: 1, Operation: model.OperationBuy, From: from, Valid: model.ValidCodeInsufficientFunds}))
	require.NoError(t, s.SaveOp(&model.AuctionOp{Number: 0, Operation: model.OperationCreate, From: "0xother", Valid: model.ValidCodeOK}))
	require.NoError(t, s.SaveOp(&model.AuctionOp{Number: 1, Operation: model.OperationBuy, From: from, Valid: model.ValidCodeOK, Price: "99970"}))

	ops, err := s.Ops("")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, uint64(0), ops[0].Number)

	ops, err = s.Ops(from)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.ValidCodeOK, ops[0].Valid)
	assert.Equal(t, "99970", ops[0].Price)
}

func TestAdvanceNonce(t *testing.T) {
	s := openTestStore(t)

	for _, tt := range []struct {
		caller common.Address
		nonce  uint64
		want   bool
	}{
		{buyer, 0, false},
		{buyer, 1, true},
		{buyer, 1, false},
		{buyer, 5, true},
		{buyer, 3, false},
		{seller, 3, true},
		{buyer, 6, true},
	} {
		ok, err := s.AdvanceNonce(tt.caller, tt.nonce)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "%s nonce %d", tt.caller.Hex(), tt.nonce)
	}

	var buyerRow, sellerRow NonceRow
	require.NoError(t, s.db.First(&buyerRow, "address = ?", buyer.Hex()).Error)
	assert.Equal(t, uint64(6), buyerRow.Nonce)
	require.NoError(t, s.db.First(&sellerRow, "address = ?", seller.Hex()).Error)
	assert.Equal(t, uint64(3), sellerRow.Nonce)
}
