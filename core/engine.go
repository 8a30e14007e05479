package core

import (
	"fmt"
	"sync"

	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// DefaultDuration applies when an auction is created with a zero duration.
const DefaultDuration uint64 = 2 * 24 * 60 * 60

type Option func(*Engine)

// WithAddress sets the address stamped on emitted logs.
func WithAddress(address common.Address) Option {
	return func(e *Engine) { e.address = address }
}

func WithDefaultDuration(seconds uint64) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.defaultDuration = seconds
		}
	}
}

// Engine is the auction ledger together with pricing, settlement and the
// fee treasury. Operations run one at a time, each either fully applied or
// rejected without effect.
type Engine struct {
	mu sync.Mutex

	owner           common.Address
	address         common.Address
	defaultDuration uint64

	auctions []*model.Auction
	treasury *uint256.Int
	bank     Bank

	subscribers []func(*model.Receipt)
}

// NewEngine creates an empty engine owned by deployer. Payouts go through bank.
func NewEngine(deployer common.Address, bank Bank, opts ...Option) *Engine {
	e := &Engine{
		owner:           deployer,
		defaultDuration: DefaultDuration,
		treasury:        new(uint256.Int),
		bank:            bank,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore rebuilds an engine from persisted state.
func Restore(snapshot *model.Snapshot, bank Bank, opts ...Option) *Engine {
	e := NewEngine(snapshot.Owner, bank, opts...)
	for _, a := range snapshot.Auctions {
		e.auctions = append(e.auctions, a.Copy())
	}
	if snapshot.Treasury != nil {
		e.treasury = snapshot.Treasury.Clone()
	}
	logrus.Infof("engine restored: owner %s, auctions %d, treasury %s", e.owner.Hex(), len(e.auctions), e.treasury.Dec())
	return e
}

// Subscribe registers fn to receive a receipt for every committed
// operation, in commit order. fn runs while the engine is locked and must
// not call back into it.
func (e *Engine) Subscribe(fn func(*model.Receipt)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

func (e *Engine) Owner() common.Address {
	return e.owner
}

func (e *Engine) Address() common.Address {
	return e.address
}

func (e *Engine) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint64(len(e.auctions))
}

func (e *Engine) Treasury() *uint256.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treasury.Clone()
}

// Auction returns a copy of the record at index.
func (e *Engine) Auction(index uint64) (*model.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.auction(index)
	if err != nil {
		return nil, err
	}
	return a.Copy(), nil
}

func (e *Engine) auction(index uint64) (*model.Auction, error) {
	if index >= uint64(len(e.auctions)) {
		return nil, fmt.Errorf("%w: index %d", ErrAuctionNotFound, index)
	}
	return e.auctions[index], nil
}

// CreateAuction appends a listing owned by the caller and returns its index.
// A zero duration selects the engine's default duration.
func (e *Engine) CreateAuction(call model.CallContext, duration uint64, startPrice, discountRate *uint256.Int, item string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	index, receipt, err := e.createAuction(call, duration, startPrice, discountRate, item)
	if err != nil {
		logrus.Warnf("create auction by %s rejected: %v", call.Caller.Hex(), err)
		return 0, err
	}
	a := receipt.Auction
	logrus.Infof("auction %d created by %s: item %q, start %s, rate %s, ends %d", index, a.Seller.Hex(), a.Item, a.StartPrice.Dec(), a.DiscountRate.Dec(), a.EndAt)
	e.publish(receipt)
	return index, nil
}

func (e *Engine) createAuction(call model.CallContext, duration uint64, startPrice, discountRate *uint256.Int, item string) (uint64, *model.Receipt, error) {
	if !call.Attached().IsZero() {
		return 0, nil, fmt.Errorf("%w: create auction", ErrNotPayable)
	}
	if duration == 0 {
		duration = e.defaultDuration
	}
	if startPrice == nil {
		startPrice = new(uint256.Int)
	}
	if discountRate == nil {
		discountRate = new(uint256.Int)
	}
	if !validStartPrice(startPrice, discountRate, duration) {
		return 0, nil, fmt.Errorf("%w: %s must exceed %s per second over %d seconds", ErrInvalidStartPrice, startPrice.Dec(), discountRate.Dec(), duration)
	}
	endAt := call.Timestamp + duration
	if endAt < call.Timestamp {
		return 0, nil, fmt.Errorf("%w: end time", ErrArithmetic)
	}

	index := uint64(len(e.auctions))
	created := &model.AuctionCreatedEvent{
		Index:      index,
		Item:       item,
		StartPrice: startPrice.Clone(),
		Duration:   duration,
	}
	log, err := created.Log(e.address)
	if err != nil {
		return 0, nil, err
	}

	a := &model.Auction{
		Seller:       call.Caller,
		StartPrice:   startPrice.Clone(),
		FinalPrice:   startPrice.Clone(),
		DiscountRate: discountRate.Clone(),
		StartAt:      call.Timestamp,
		EndAt:        endAt,
		Item:         item,
	}
	e.auctions = append(e.auctions, a)

	return index, e.receipt(model.OperationCreate, call, index, a, nil, log), nil
}

// PriceOf returns the current ask price of the auction at index. It does
// not reject auctions past their end time.
func (e *Engine) PriceOf(index uint64, now uint64) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.auction(index)
	if err != nil {
		return nil, err
	}
	if a.Stopped {
		return nil, fmt.Errorf("%w: index %d", ErrAuctionStopped, index)
	}
	return PriceAt(a, now)
}

// Buy settles the auction at index at its current price. The value attached
// to the call must cover the price; the excess is refunded to the caller.
func (e *Engine) Buy(call model.CallContext, index uint64) (*model.Purchase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	purchase, receipt, err := e.buy(call, index)
	if err != nil {
		logrus.Warnf("buy %d by %s rejected: %v", index, call.Caller.Hex(), err)
		return nil, err
	}
	logrus.Infof("auction %d sold to %s at %s: fee %s, change %s", index, call.Caller.Hex(), purchase.FinalPrice.Dec(), purchase.Fee.Dec(), purchase.Change.Dec())
	e.publish(receipt)
	return purchase, nil
}

func (e *Engine) buy(call model.CallContext, index uint64) (*model.Purchase, *model.Receipt, error) {
	a, err := e.auction(index)
	if err != nil {
		return nil, nil, err
	}
	if call.Caller == a.Seller {
		return nil, nil, fmt.Errorf("%w: index %d", ErrNotYourOwnLot, index)
	}
	if a.Stopped {
		return nil, nil, fmt.Errorf("%w: index %d", ErrAuctionStopped, index)
	}
	if call.Timestamp >= a.EndAt {
		return nil, nil, fmt.Errorf("%w: index %d at %d", ErrAuctionEnded, index, a.EndAt)
	}

	price, err := PriceAt(a, call.Timestamp)
	if err != nil {
		return nil, nil, err
	}
	tendered := call.Attached()
	if tendered.Lt(price) {
		return nil, nil, fmt.Errorf("%w: sent %s, price %s", ErrInsufficientFunds, tendered.Dec(), price.Dec())
	}

	fee, err := Fee(price)
	if err != nil {
		return nil, nil, err
	}
	treasury, overflow := new(uint256.Int).AddOverflow(e.treasury, fee)
	if overflow {
		return nil, nil, fmt.Errorf("%w: treasury", ErrArithmetic)
	}
	purchase := &model.Purchase{
		Index:      index,
		FinalPrice: price,
		Fee:        fee,
		Proceeds:   new(uint256.Int).Sub(price, fee),
		Change:     new(uint256.Int).Sub(tendered, price),
	}
	ended := &model.AuctionEndedEvent{Index: index, FinalPrice: price.Clone(), Winner: call.Caller}
	log, err := ended.Log(e.address)
	if err != nil {
		return nil, nil, err
	}

	payouts := []model.Payout{{To: a.Seller, Amount: purchase.Proceeds.Clone(), Kind: model.PayoutProceeds}}
	if !purchase.Change.IsZero() {
		payouts = append(payouts, model.Payout{To: call.Caller, Amount: purchase.Change.Clone(), Kind: model.PayoutRefund})
	}

	// state first, transfers last
	prevTreasury := e.treasury
	a.Stopped = true
	a.FinalPrice = price.Clone()
	e.treasury = treasury

	if err := e.bank.Settle(payouts); err != nil {
		a.Stopped = false
		a.FinalPrice = a.StartPrice.Clone()
		e.treasury = prevTreasury
		return nil, nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	return purchase, e.receipt(model.OperationBuy, call, index, a, payouts, log), nil
}

// Withdraw pays the whole treasury to the owner and returns the amount.
func (e *Engine) Withdraw(call model.CallContext) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if call.Caller != e.owner {
		err := fmt.Errorf("%w: %s", ErrAccessDenied, call.Caller.Hex())
		logrus.Warnf("withdraw rejected: %v", err)
		return nil, err
	}
	if !call.Attached().IsZero() {
		err := fmt.Errorf("%w: withdraw", ErrNotPayable)
		logrus.Warnf("withdraw rejected: %v", err)
		return nil, err
	}

	amount := e.treasury
	var payouts []model.Payout
	if !amount.IsZero() {
		payouts = append(payouts, model.Payout{To: e.owner, Amount: amount.Clone(), Kind: model.PayoutWithdraw})
	}

	e.treasury = new(uint256.Int)
	if err := e.bank.Settle(payouts); err != nil {
		e.treasury = amount
		err = fmt.Errorf("%w: %v", ErrTransferFailed, err)
		logrus.Warnf("withdraw rejected: %v", err)
		return nil, err
	}

	logrus.Infof("treasury withdrawn by %s: %s", e.owner.Hex(), amount.Dec())
	e.publish(e.receipt(model.OperationWithdraw, call, 0, nil, payouts))
	return amount.Clone(), nil
}

// Return sends the value attached to a rejected call back to its caller.
func (e *Engine) Return(call model.CallContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	value := call.Attached()
	if value.IsZero() {
		return nil
	}
	payouts := []model.Payout{{To: call.Caller, Amount: value.Clone(), Kind: model.PayoutRefund}}
	if err := e.bank.Settle(payouts); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	logrus.Infof("returned %s to %s", value.Dec(), call.Caller.Hex())
	e.publish(e.receipt(model.OperationReturn, call, 0, nil, payouts))
	return nil
}

func (e *Engine) receipt(op model.Operation, call model.CallContext, index uint64, a *model.Auction, payouts []model.Payout, logs ...*types.Log) *model.Receipt {
	r := &model.Receipt{
		Operation: op,
		Caller:    call.Caller,
		Timestamp: call.Timestamp,
		Index:     index,
		Treasury:  e.treasury.Clone(),
		Payouts:   payouts,
		Logs:      logs,
	}
	if a != nil {
		r.Auction = a.Copy()
	}
	return r
}

func (e *Engine) publish(r *model.Receipt) {
	for _, fn := range e.subscribers {
		fn(r)
	}
}
