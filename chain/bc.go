package chain

import (
	"context"
	"encoding/hex"
	"math/big"

	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

type BlockchainClient struct {
	client *ethclient.Client
}

func NewBlockchainClient(ethURL string) (*BlockchainClient, error) {
	client, err := ethclient.Dial(ethURL)
	if err != nil {
		return nil, err
	}
	return &BlockchainClient{client: client}, nil
}

func (bc *BlockchainClient) Close() {
	bc.client.Close()
}

func (bc *BlockchainClient) GetBlock(ctx context.Context, blockNumber int64) (*types.Block, error) {
	block, err := bc.client.BlockByNumber(ctx, big.NewInt(blockNumber))
	if err != nil {
		return nil, err
	}
	return block, nil
}

func (bc *BlockchainClient) GetBlockReceiptsByAPI(ctx context.Context, blockNumber int64) ([]*types.Receipt, error) {
	receipts, err := bc.client.BlockReceipts(ctx, rpc.BlockNumberOrHashWithNumber(rpc.BlockNumber(blockNumber)))
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// GetBlockReceipts prefers eth_getBlockReceipts and falls back to one
// eth_getTransactionReceipt per transaction on nodes without it.
func (bc *BlockchainClient) GetBlockReceipts(ctx context.Context, block *types.Block) ([]*types.Receipt, error) {
	if receipts, err := bc.GetBlockReceiptsByAPI(ctx, block.Number().Int64()); err == nil {
		return receipts, nil
	} else {
		logrus.Debugf("GetBlockReceiptsByAPI %d err: %v, falling back", block.NumberU64(), err)
	}

	var res []*types.Receipt
	for _, tx := range block.Transactions() {
		if receipt, err := bc.client.TransactionReceipt(ctx, tx.Hash()); err != nil {
			logrus.Errorf("GetBlockReceipts %v err: %v", tx.Hash(), err)
			return nil, err
		} else {
			res = append(res, receipt)
		}
	}
	return res, nil
}

func (bc *BlockchainClient) GetLatestBlockNumber(ctx context.Context) (int64, error) {
	header, err := bc.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return header.Number.Int64(), nil
}

// Now reports the timestamp of the latest block, making the chain head the
// engine's clock.
func (bc *BlockchainClient) Now(ctx context.Context) (uint64, error) {
	header, err := bc.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, err
	}
	return header.Time, nil
}

func ConvertBlockToChainBlock(block *types.Block, receipts []*types.Receipt) *model.ChainBlock {
	chainBlock := &model.ChainBlock{
		Number:    block.Number().Uint64(),
		Timestamp: block.Time(),
	}
	for idx, tx := range block.Transactions() {
		from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			logrus.Warnf("block %d tx %d: failed to get sender: %v", block.NumberU64(), idx, err)
			continue
		}

		var to string
		if tx.To() != nil {
			to = tx.To().Hex()
		}

		chainTx := &model.ChainTransaction{
			Id:        tx.Hash().Hex(),
			From:      from.Hex(),
			To:        to,
			Value:     tx.Value().String(),
			Block:     block.Number().Uint64(),
			Idx:       uint32(idx),
			Timestamp: block.Time(),
			Input:     "0x" + hex.EncodeToString(tx.Data()),
		}
		chainBlock.Txs = append(chainBlock.Txs, chainTx)
	}
	for _, receipt := range receipts {
		chainReceipt := &model.ChainReceipt{
			Receipt:   receipt,
			Timestamp: block.Time(),
		}
		chainBlock.Receipts = append(chainBlock.Receipts, chainReceipt)
	}
	return chainBlock
}
