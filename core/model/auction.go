package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

type Operation string
type PayoutKind string

const (
	OperationCreate   Operation = "create"
	OperationBuy      Operation = "buy"
	OperationWithdraw Operation = "withdraw"
	OperationReturn   Operation = "return"
	OperationUnknown  Operation = "unknown" // value sent to the engine without an operation

	PayoutProceeds PayoutKind = "proceeds"
	PayoutRefund   PayoutKind = "refund"
	PayoutWithdraw PayoutKind = "withdraw"
)

// Auction is one listing in the ledger. Seller, StartPrice, DiscountRate,
// StartAt, EndAt and Item never change after creation; FinalPrice and
// Stopped are written once, by a successful purchase.
type Auction struct {
	Seller       common.Address
	StartPrice   *uint256.Int
	FinalPrice   *uint256.Int // equals StartPrice until Stopped
	DiscountRate *uint256.Int // per second
	StartAt      uint64
	EndAt        uint64
	Item         string
	Stopped      bool
}

func (a *Auction) Copy() *Auction {
	cp := *a
	cp.StartPrice = a.StartPrice.Clone()
	cp.FinalPrice = a.FinalPrice.Clone()
	cp.DiscountRate = a.DiscountRate.Clone()
	return &cp
}

// Duration is the length of the purchase window in seconds.
func (a *Auction) Duration() uint64 {
	return a.EndAt - a.StartAt
}

// CallContext carries what the host supplies to every operation: the
// verified caller, the current time (unix seconds) and the value attached
// to the call.
type CallContext struct {
	Caller    common.Address
	Timestamp uint64
	Value     *uint256.Int
}

// Attached returns the value sent with the call, zero when absent.
func (c CallContext) Attached() *uint256.Int {
	if c.Value == nil {
		return new(uint256.Int)
	}
	return c.Value
}

type Payout struct {
	To     common.Address
	Amount *uint256.Int
	Kind   PayoutKind
}

// Purchase is the outcome of a successful buy.
type Purchase struct {
	Index      uint64
	FinalPrice *uint256.Int
	Fee        *uint256.Int
	Proceeds   *uint256.Int
	Change     *uint256.Int
}

// Receipt describes one committed operation. Auction is a copy of the
// touched record taken after the commit, nil for operations that do not
// touch the ledger.
type Receipt struct {
	Operation Operation
	Caller    common.Address
	Timestamp uint64
	Index     uint64
	Auction   *Auction
	Treasury  *uint256.Int
	Payouts   []Payout
	Logs      []*types.Log
}

// Snapshot is the persisted state an engine can be rebuilt from.
type Snapshot struct {
	Owner    common.Address
	Treasury *uint256.Int
	Auctions []*Auction
	Balances map[common.Address]*uint256.Int
}
