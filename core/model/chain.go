package model

import (
	"github.com/ethereum/go-ethereum/core/types"
)

type ChainBlock struct {
	Number    uint64
	Txs       []*ChainTransaction
	Receipts  []*ChainReceipt
	Timestamp uint64
}

type ChainTransaction struct {
	Id        string
	From      string
	To        string
	Value     string // wei, decimal
	Block     uint64
	Idx       uint32
	Timestamp uint64
	Input     string
}

type ChainReceipt struct {
	*types.Receipt
	Timestamp uint64
}

// Reverted reports whether the receipt belongs to a failed transaction.
func (r *ChainReceipt) Reverted() bool {
	return r.Receipt != nil && r.Status == types.ReceiptStatusFailed
}
