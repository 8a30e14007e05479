package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

func Keccak256(data string) string {
	hasher := sha3.NewLegacyKeccak256()

	hasher.Write([]byte(data))

	hash := hasher.Sum(nil)

	return fmt.Sprintf("%x", hash)
}

// Topic returns the log topic of an event signature such as
// "AuctionEnded(uint256,uint256,address)".
func Topic(signature string) common.Hash {
	return common.HexToHash(Keccak256(signature))
}
