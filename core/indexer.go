package core

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

var (
	ErrorNoPrefix      = errors.New("no prefix")
	ErrorDecode        = errors.New("decode error")
	ErrorNoContent     = errors.New("no content")
	ErrorNotUTF8       = errors.New("content is not valid utf8 string")
	ErrorNotProtocol   = errors.New("not a dutch-auction operation")
	ErrorBlockMismatch = errors.New("block number not match")
)

// Indexer drives an Engine from chain transactions. A transaction sent to
// the engine address whose input is a "data:," inscription of the
// dutch-auction protocol becomes one engine call, with the sender as
// caller, the block time as clock and the transaction value attached.
// Value sent to the engine address without a valid operation is returned.
type Indexer struct {
	engine  *Engine
	metrics *Metrics

	LatestBlockNumber uint64

	inscriptionNumber uint64
	sinks             []func(*model.AuctionOp)
}

// NewIndexer starts indexing after block latest, numbering inscriptions
// from inscriptions.
func NewIndexer(engine *Engine, latest, inscriptions uint64, metrics *Metrics) *Indexer {
	return &Indexer{engine: engine, metrics: metrics, LatestBlockNumber: latest, inscriptionNumber: inscriptions}
}

// Checkpoint returns the last handled block and the next inscription number.
func (ix *Indexer) Checkpoint() (block, inscriptions uint64) {
	return ix.LatestBlockNumber, ix.inscriptionNumber
}

// OnRecord registers fn to receive every operation record as it is produced.
func (ix *Indexer) OnRecord(fn func(*model.AuctionOp)) {
	ix.sinks = append(ix.sinks, fn)
}

// HandleNewBlock applies every transaction of block sent to the engine
// address. Individual transactions never fail the block, so a block is
// applied exactly once.
func (ix *Indexer) HandleNewBlock(block *model.ChainBlock) error {
	logrus.Infof("handle block %d", block.Number)

	if ix.LatestBlockNumber != block.Number-1 {
		logrus.Warn("block number not match, latest: ", ix.LatestBlockNumber, ", current: ", block.Number)
		return ErrorBlockMismatch
	}

	reverted := make(map[string]bool)
	for _, receipt := range block.Receipts {
		if receipt.Reverted() {
			reverted[strings.ToLower(receipt.TxHash.Hex())] = true
		}
	}

	engineAddress := ix.engine.Address().Hex()
	for _, trx := range block.Txs {
		if reverted[strings.ToLower(trx.Id)] {
			continue
		}
		if !strings.EqualFold(trx.To, engineAddress) {
			continue
		}
		ix.handleTransaction(trx)
	}

	ix.LatestBlockNumber++

	return nil
}

// handleTransaction numbers trx and applies it. Every transaction reaching
// the engine address takes a number, whether or not it carries an operation.
func (ix *Indexer) handleTransaction(trx *model.ChainTransaction) {
	number := ix.inscriptionNumber
	ix.inscriptionNumber++

	inscription, err := decodeInscription(trx)
	if err == nil {
		inscription.Number = number
		err = ix.handleProtocols(inscription)
	}
	if err != nil {
		ix.stray(trx, number, err)
	}
}

func decodeInscription(trx *model.ChainTransaction) (*model.Inscription, error) {
	// data:,
	if !strings.HasPrefix(trx.Input, "0x646174613a") { //data:
		return nil, ErrorNoPrefix
	}
	// trim 0x
	bytes, err := hex.DecodeString(trx.Input[2:])
	if err != nil {
		logrus.Warn("inscribe err", err, " at block ", trx.Block, ":", trx.Idx)
		return nil, ErrorDecode
	}
	input := string(bytes)

	sepIdx := strings.Index(input, ",")
	if sepIdx == -1 || sepIdx == len(input)-1 {
		return nil, ErrorNoContent
	}
	contentType := "text/plain"
	if sepIdx > 5 {
		contentType = input[5:sepIdx]
	}
	content := input[sepIdx+1:]

	if !utf8.ValidString(content) {
		logrus.Infof("content %v is not valid utf8 string", content)
		return nil, ErrorNotUTF8
	}

	return &model.Inscription{
		Hash:        trx.Id,
		From:        trx.From,
		To:          trx.To,
		Value:       trx.Value,
		Block:       trx.Block,
		Idx:         trx.Idx,
		Timestamp:   trx.Timestamp,
		ContentType: contentType,
		Content:     content,
	}, nil
}

// handleProtocols runs the operation carried by inscription. It returns
// ErrorNotProtocol when the content is not a dutch-auction operation;
// every other outcome, rejections included, is recorded.
func (ix *Indexer) handleProtocols(inscription *model.Inscription) error {
	content := strings.TrimSpace(inscription.Content)
	if content == "" || content[0] != '{' {
		return ErrorNotProtocol
	}
	var rawProtoData map[string]interface{}
	if err := json.Unmarshal([]byte(content), &rawProtoData); err != nil {
		logrus.Info("json parse error: ", err, ", at ", inscription.Number)
		return fmt.Errorf("%w: %v", ErrorNotProtocol, err)
	}
	protoData := make(map[string]string)
	for k, v := range rawProtoData {
		if vstr, ok := v.(string); ok {
			protoData[k] = vstr
		}
	}
	if p, ok := protoData["p"]; !ok || strings.ToLower(strings.TrimSpace(p)) != model.AuctionProtocolName {
		return ErrorNotProtocol
	}

	op := &model.AuctionOp{
		Number:    inscription.Number,
		Hash:      inscription.Hash,
		Operation: model.Operation(strings.ToLower(protoData["op"])),
		From:      strings.ToLower(inscription.From),
		Value:     inscription.Value,
		Block:     inscription.Block,
		Timestamp: inscription.Timestamp,
	}
	logrus.Infof("protocol: %v", protoData)

	call := model.CallContext{
		Caller:    common.HexToAddress(inscription.From),
		Timestamp: inscription.Timestamp,
	}
	value, err := parseAmount(inscription.Value)
	if err != nil {
		// the chain reported a value we cannot represent; nothing was attached
		op.Valid = model.ValidCodeWrongArgument
		ix.record(op)
		return nil
	}
	call.Value = value

	switch op.Operation {
	case model.OperationCreate:
		op.Valid, err = ix.createAuction(op, call, protoData)
	case model.OperationBuy:
		op.Valid, err = ix.buy(op, call, protoData)
	case model.OperationWithdraw:
		op.Valid, err = ix.withdraw(call)
	default:
		op.Valid = model.ValidCodeWrongOperation
	}
	if op.Valid != model.ValidCodeOK {
		ix.reject(op, call, err)
	}

	ix.record(op)
	return nil
}

// stray handles a transaction to the engine address that carries no
// dutch-auction operation. Attached value goes back to the sender and the
// transaction is recorded as a wrong operation; value-less ones are ignored.
func (ix *Indexer) stray(trx *model.ChainTransaction, number uint64, reason error) {
	op := &model.AuctionOp{
		Number:    number,
		Hash:      trx.Id,
		Operation: model.OperationUnknown,
		From:      strings.ToLower(trx.From),
		Value:     trx.Value,
		Block:     trx.Block,
		Timestamp: trx.Timestamp,
	}
	value, err := parseAmount(trx.Value)
	if err != nil {
		op.Valid = model.ValidCodeWrongArgument
		ix.record(op)
		return
	}
	if value.IsZero() {
		logrus.Debugf("tx %s to engine ignored: %v", trx.Id, reason)
		return
	}

	op.Valid = model.ValidCodeWrongOperation
	call := model.CallContext{
		Caller:    common.HexToAddress(trx.From),
		Timestamp: trx.Timestamp,
		Value:     value,
	}
	ix.reject(op, call, reason)
	ix.record(op)
}

// reject returns the value attached to a rejected operation. A failed return
// is recorded as TransferFailed and the block carries on.
func (ix *Indexer) reject(op *model.AuctionOp, call model.CallContext, err error) {
	logrus.Warnf("%s inscription %d rejected: %s (%v)", op.Operation, op.Number, op.Valid, err)
	if ix.metrics != nil {
		ix.metrics.ObserveRejected(op.Operation, op.Valid)
	}
	if rerr := ix.engine.Return(call); rerr != nil {
		logrus.Errorf("return %s to %s for inscription %d: %v", call.Attached().Dec(), call.Caller.Hex(), op.Number, rerr)
		op.Valid = model.ValidCodeTransferFailed
	}
}

func (ix *Indexer) createAuction(op *model.AuctionOp, call model.CallContext, params map[string]string) (model.ValidCode, error) {
	duration, err := strconv.ParseUint(strings.TrimSpace(params["duration"]), 10, 64)
	if err != nil {
		return model.ValidCodeWrongArgument, err
	}
	startPrice, err := parseAmount(params["start"])
	if err != nil {
		return model.ValidCodeWrongArgument, err
	}
	discountRate, err := parseAmount(params["rate"])
	if err != nil {
		return model.ValidCodeWrongArgument, err
	}

	index, err := ix.engine.CreateAuction(call, duration, startPrice, discountRate, params["item"])
	if err != nil {
		return CodeOf(err), err
	}
	op.AuctionIndex = index
	op.Price = startPrice.Dec()
	return model.ValidCodeOK, nil
}

func (ix *Indexer) buy(op *model.AuctionOp, call model.CallContext, params map[string]string) (model.ValidCode, error) {
	index, err := strconv.ParseUint(strings.TrimSpace(params["id"]), 10, 64)
	if err != nil {
		return model.ValidCodeWrongArgument, err
	}
	op.AuctionIndex = index

	purchase, err := ix.engine.Buy(call, index)
	if err != nil {
		return CodeOf(err), err
	}
	op.Price = purchase.FinalPrice.Dec()
	return model.ValidCodeOK, nil
}

func (ix *Indexer) withdraw(call model.CallContext) (model.ValidCode, error) {
	if _, err := ix.engine.Withdraw(call); err != nil {
		return CodeOf(err), err
	}
	return model.ValidCodeOK, nil
}

func (ix *Indexer) record(op *model.AuctionOp) {
	for _, fn := range ix.sinks {
		fn(op)
	}
}

func parseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return amount, nil
}
