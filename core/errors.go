package core

import (
	"errors"

	"dutch-auction-engine/core/model"
)

var (
	ErrInvalidStartPrice = errors.New("incorrect starting price")
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrNotYourOwnLot     = errors.New("you can't buy your own lot")
	ErrAuctionStopped    = errors.New("auction stopped")
	ErrAuctionEnded      = errors.New("auction ended")
	ErrInsufficientFunds = errors.New("not enough funds")
	ErrAccessDenied      = errors.New("not an owner")

	ErrTransferFailed = errors.New("transfer failed")
	ErrArithmetic     = errors.New("arithmetic overflow")
	ErrNotPayable     = errors.New("operation is not payable")
)

var errorCodes = []struct {
	err  error
	code model.ValidCode
}{
	{ErrInvalidStartPrice, model.ValidCodeInvalidStartPrice},
	{ErrAuctionNotFound, model.ValidCodeAuctionNotFound},
	{ErrNotYourOwnLot, model.ValidCodeNotYourOwnLot},
	{ErrAuctionStopped, model.ValidCodeAuctionStopped},
	{ErrAuctionEnded, model.ValidCodeAuctionEnded},
	{ErrInsufficientFunds, model.ValidCodeInsufficientFunds},
	{ErrAccessDenied, model.ValidCodeAccessDenied},
	{ErrTransferFailed, model.ValidCodeTransferFailed},
	{ErrArithmetic, model.ValidCodeArithmetic},
	{ErrNotPayable, model.ValidCodeNotPayable},
}

// CodeOf maps an engine error to its ValidCode. A nil error is
// ValidCodeOK; errors that did not come from the engine are
// ValidCodeUnknowError.
func CodeOf(err error) model.ValidCode {
	if err == nil {
		return model.ValidCodeOK
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return model.ValidCodeUnknowError
}
