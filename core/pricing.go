package core

import (
	"fmt"

	"dutch-auction-engine/core/model"

	"github.com/holiman/uint256"
)

const (
	FeeNumerator   = 5
	FeeDenominator = 100
)

// PriceAt returns the ask price of a at unix time now:
// StartPrice - DiscountRate*(now-StartAt). It ignores Stopped and EndAt;
// callers decide whether the auction may be priced at all. A time before
// StartAt or a discount larger than the start price is ErrArithmetic.
func PriceAt(a *model.Auction, now uint64) (*uint256.Int, error) {
	if now < a.StartAt {
		return nil, fmt.Errorf("%w: time %d before start %d", ErrArithmetic, now, a.StartAt)
	}
	elapsed := uint256.NewInt(now - a.StartAt)

	discount, overflow := new(uint256.Int).MulOverflow(a.DiscountRate, elapsed)
	if overflow {
		return nil, fmt.Errorf("%w: discount", ErrArithmetic)
	}
	price, underflow := new(uint256.Int).SubOverflow(a.StartPrice, discount)
	if underflow {
		return nil, fmt.Errorf("%w: discount %s exceeds start price %s", ErrArithmetic, discount.Dec(), a.StartPrice.Dec())
	}
	return price, nil
}

// Fee returns the commission kept on a sale at price: floor(price*5/100).
func Fee(price *uint256.Int) (*uint256.Int, error) {
	fee, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(FeeNumerator))
	if overflow {
		return nil, fmt.Errorf("%w: fee", ErrArithmetic)
	}
	return fee.Div(fee, uint256.NewInt(FeeDenominator)), nil
}

// validStartPrice reports whether startPrice > discountRate*duration.
func validStartPrice(startPrice, discountRate *uint256.Int, duration uint64) bool {
	total, overflow := new(uint256.Int).MulOverflow(discountRate, uint256.NewInt(duration))
	if overflow {
		return false
	}
	return startPrice.Gt(total)
}
