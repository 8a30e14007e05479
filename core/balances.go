package core

import (
	"errors"
	"fmt"
	"sync"

	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrZeroAddress = errors.New("transfer to zero address")
)

// Bank moves value out of the engine. Settle must apply every payout or
// none of them.
type Bank interface {
	Settle(payouts []model.Payout) error
}

// Balances is an in-memory credit ledger: every payout is credited to the
// recipient's balance.
type Balances struct {
	mu       sync.RWMutex
	accounts map[common.Address]*uint256.Int
}

func NewBalances() *Balances {
	return &Balances{accounts: make(map[common.Address]*uint256.Int)}
}

func RestoreBalances(accounts map[common.Address]*uint256.Int) *Balances {
	b := NewBalances()
	for owner, amount := range accounts {
		b.accounts[owner] = amount.Clone()
	}
	return b
}

func (b *Balances) Settle(payouts []model.Payout) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make(map[common.Address]*uint256.Int, len(payouts))
	for _, p := range payouts {
		if p.To == (common.Address{}) {
			return fmt.Errorf("%s %s: %w", p.Kind, p.Amount.Dec(), ErrZeroAddress)
		}
		balance, ok := staged[p.To]
		if !ok {
			balance = b.balanceOf(p.To)
		}
		next, overflow := new(uint256.Int).AddOverflow(balance, p.Amount)
		if overflow {
			return fmt.Errorf("%s to %s: balance overflow", p.Kind, p.To.Hex())
		}
		staged[p.To] = next
	}

	// save
	for owner, balance := range staged {
		b.accounts[owner] = balance
	}
	return nil
}

func (b *Balances) BalanceOf(owner common.Address) *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balanceOf(owner)
}

func (b *Balances) balanceOf(owner common.Address) *uint256.Int {
	if balance, ok := b.accounts[owner]; ok {
		return balance.Clone()
	}
	return new(uint256.Int)
}

// Snapshot returns a copy of every non-empty balance.
func (b *Balances) Snapshot() map[common.Address]*uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[common.Address]*uint256.Int, len(b.accounts))
	for owner, balance := range b.accounts {
		if !balance.IsZero() {
			out[owner] = balance.Clone()
		}
	}
	return out
}
