package chain

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertBlockToChainBlock(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	engine := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	signer := types.LatestSignerForChainID(big.NewInt(42262))

	payload := []byte(`data:,{"p":"dutch-auction","op":"buy","id":"0"}`)
	buy := types.MustSignNewTx(key, signer, &types.LegacyTx{
		Nonce:    0,
		To:       &engine,
		Value:    big.NewInt(100000),
		Gas:      50000,
		GasPrice: big.NewInt(100),
		Data:     payload,
	})
	deploy := types.MustSignNewTx(key, signer, &types.LegacyTx{
		Nonce:    1,
		Gas:      50000,
		GasPrice: big.NewInt(100),
	})

	header := &types.Header{Number: big.NewInt(1234), Time: 1_700_000_000}
	block := types.NewBlockWithHeader(header).WithBody([]*types.Transaction{buy, deploy}, nil)
	receipts := []*types.Receipt{
		{Status: types.ReceiptStatusSuccessful, TxHash: buy.Hash()},
		{Status: types.ReceiptStatusFailed, TxHash: deploy.Hash()},
	}

	cb := ConvertBlockToChainBlock(block, receipts)
	assert.Equal(t, uint64(1234), cb.Number)
	assert.Equal(t, uint64(1_700_000_000), cb.Timestamp)
	require.Len(t, cb.Txs, 2)

	tx := cb.Txs[0]
	assert.Equal(t, buy.Hash().Hex(), tx.Id)
	assert.Equal(t, sender.Hex(), tx.From)
	assert.Equal(t, engine.Hex(), tx.To)
	assert.Equal(t, "100000", tx.Value)
	assert.Equal(t, uint64(1234), tx.Block)
	assert.Equal(t, uint32(0), tx.Idx)
	assert.Equal(t, "0x"+hex.EncodeToString(payload), tx.Input)

	assert.Empty(t, cb.Txs[1].To)
	assert.Equal(t, "0", cb.Txs[1].Value)
	assert.Equal(t, uint32(1), cb.Txs[1].Idx)

	require.Len(t, cb.Receipts, 2)
	assert.False(t, cb.Receipts[0].Reverted())
	assert.True(t, cb.Receipts[1].Reverted())
	assert.Equal(t, uint64(1_700_000_000), cb.Receipts[1].Timestamp)
}
