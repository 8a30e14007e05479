package model

type ValidCode int8

const (
	ValidCodeUnknowError ValidCode = 0
	ValidCodeOK          ValidCode = 1

	ValidCodeInvalidStartPrice ValidCode = -1
	ValidCodeAuctionNotFound   ValidCode = -2
	ValidCodeNotYourOwnLot     ValidCode = -3
	ValidCodeAuctionStopped    ValidCode = -4
	ValidCodeAuctionEnded      ValidCode = -5
	ValidCodeInsufficientFunds ValidCode = -6
	ValidCodeAccessDenied      ValidCode = -7

	ValidCodeTransferFailed ValidCode = -11
	ValidCodeArithmetic     ValidCode = -12
	ValidCodeNotPayable     ValidCode = -13

	ValidCodeWrongOperation ValidCode = -21
	ValidCodeWrongArgument  ValidCode = -22
)

var validCodeNames = map[ValidCode]string{
	ValidCodeUnknowError:       "Unknown",
	ValidCodeOK:                "OK",
	ValidCodeInvalidStartPrice: "InvalidStartPrice",
	ValidCodeAuctionNotFound:   "AuctionNotFound",
	ValidCodeNotYourOwnLot:     "NotYourOwnLot",
	ValidCodeAuctionStopped:    "AuctionStopped",
	ValidCodeAuctionEnded:      "AuctionEnded",
	ValidCodeInsufficientFunds: "InsufficientFunds",
	ValidCodeAccessDenied:      "AccessDenied",
	ValidCodeTransferFailed:    "TransferFailed",
	ValidCodeArithmetic:        "Arithmetic",
	ValidCodeNotPayable:        "NotPayable",
	ValidCodeWrongOperation:    "WrongOperation",
	ValidCodeWrongArgument:     "WrongArgument",
}

func (code ValidCode) String() string {
	messages := map[ValidCode]string{
		ValidCodeUnknowError:       "Unknown error",
		ValidCodeOK:                "Operation successful",
		ValidCodeInvalidStartPrice: "Starting price too low for the discount over the duration",
		ValidCodeAuctionNotFound:   "Auction not found",
		ValidCodeNotYourOwnLot:     "Sellers cannot buy their own lot",
		ValidCodeAuctionStopped:    "Auction already sold",
		ValidCodeAuctionEnded:      "Auction has ended",
		ValidCodeInsufficientFunds: "Not enough funds for the current price",
		ValidCodeAccessDenied:      "Caller is not the owner",
		ValidCodeTransferFailed:    "Value transfer failed",
		ValidCodeArithmetic:        "Arithmetic overflow or underflow",
		ValidCodeNotPayable:        "Operation does not accept value",
		ValidCodeWrongOperation:    "Wrong operation",
		ValidCodeWrongArgument:     "Wrong argument",
	}

	msg, ok := messages[code]
	if !ok {
		return "Unrecognized error code"
	}
	return msg
}

// Name is the stable identifier of the code, used in API responses and
// metric labels.
func (code ValidCode) Name() string {
	if name, ok := validCodeNames[code]; ok {
		return name
	}
	return validCodeNames[ValidCodeUnknowError]
}
