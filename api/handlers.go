package api

import (
	"net/http"
	"strconv"
	"strings"

	"dutch-auction-engine/core"
	"dutch-auction-engine/core/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

const maxListLimit = 100

type createAuctionRequest struct {
	Duration     uint64 `json:"duration"`
	StartPrice   string `json:"startPrice" binding:"required"`
	DiscountRate string `json:"discountRate"`
	Item         string `json:"item"`
}

type buyRequest struct {
	Value string `json:"value"`
}

type auctionResponse struct {
	Index        uint64 `json:"index"`
	Seller       string `json:"seller"`
	StartPrice   string `json:"startPrice"`
	FinalPrice   string `json:"finalPrice"`
	DiscountRate string `json:"discountRate"`
	StartAt      uint64 `json:"startAt"`
	EndAt        uint64 `json:"endAt"`
	Item         string `json:"item"`
	Stopped      bool   `json:"stopped"`
}

func newAuctionResponse(index uint64, a *model.Auction) auctionResponse {
	return auctionResponse{
		Index:        index,
		Seller:       a.Seller.Hex(),
		StartPrice:   a.StartPrice.Dec(),
		FinalPrice:   a.FinalPrice.Dec(),
		DiscountRate: a.DiscountRate.Dec(),
		StartAt:      a.StartAt,
		EndAt:        a.EndAt,
		Item:         a.Item,
		Stopped:      a.Stopped,
	}
}

var statusByCode = map[model.ValidCode]int{
	model.ValidCodeInvalidStartPrice: http.StatusBadRequest,
	model.ValidCodeAuctionNotFound:   http.StatusNotFound,
	model.ValidCodeNotYourOwnLot:     http.StatusForbidden,
	model.ValidCodeAuctionStopped:    http.StatusConflict,
	model.ValidCodeAuctionEnded:      http.StatusConflict,
	model.ValidCodeInsufficientFunds: http.StatusPaymentRequired,
	model.ValidCodeAccessDenied:      http.StatusForbidden,
	model.ValidCodeTransferFailed:    http.StatusBadGateway,
	model.ValidCodeArithmetic:        http.StatusUnprocessableEntity,
	model.ValidCodeNotPayable:        http.StatusBadRequest,
	model.ValidCodeWrongArgument:     http.StatusBadRequest,
}

func (s *Server) fail(c *gin.Context, op model.Operation, err error) {
	code := core.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
		logrus.Errorf("%s failed: %v", op, err)
	}
	if s.metrics != nil && op != "" {
		s.metrics.ObserveRejected(op, code)
	}
	c.JSON(status, gin.H{"code": code.Name(), "error": code.String(), "detail": err.Error()})
}

func badRequest(c *gin.Context, detail string) {
	code := model.ValidCodeWrongArgument
	c.JSON(http.StatusBadRequest, gin.H{"code": code.Name(), "error": code.String(), "detail": detail})
}

func (s *Server) now(c *gin.Context) (uint64, bool) {
	now, err := s.clock.Now(c.Request.Context())
	if err != nil {
		logrus.Errorf("clock: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "ClockUnavailable", "error": err.Error()})
		return 0, false
	}
	return now, true
}

func indexParam(c *gin.Context) (uint64, bool) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		badRequest(c, "index must be a non-negative integer")
		return 0, false
	}
	return index, true
}

func amountOf(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}

func (s *Server) getOwner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"owner": s.engine.Owner().Hex()})
}

func (s *Server) getTreasury(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"treasury": s.engine.Treasury().Dec()})
}

func (s *Server) getBalance(c *gin.Context) {
	addr := c.Param("address")
	if !common.IsHexAddress(addr) {
		badRequest(c, "address must be hex")
		return
	}
	owner := common.HexToAddress(addr)
	c.JSON(http.StatusOK, gin.H{"address": owner.Hex(), "balance": s.balances.BalanceOf(owner).Dec()})
}

func (s *Server) listAuctions(c *gin.Context) {
	offset, err := strconv.ParseUint(c.DefaultQuery("offset", "0"), 10, 64)
	if err != nil {
		badRequest(c, "offset must be a non-negative integer")
		return
	}
	limit, err := strconv.ParseUint(c.DefaultQuery("limit", strconv.Itoa(maxListLimit)), 10, 64)
	if err != nil || limit > maxListLimit {
		badRequest(c, "limit must be between 0 and 100")
		return
	}

	count := s.engine.Count()
	auctions := make([]auctionResponse, 0)
	for i := offset; i < count && i < offset+limit; i++ {
		a, err := s.engine.Auction(i)
		if err != nil {
			s.fail(c, "", err)
			return
		}
		auctions = append(auctions, newAuctionResponse(i, a))
	}
	c.JSON(http.StatusOK, gin.H{"count": count, "auctions": auctions})
}

func (s *Server) getAuction(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	a, err := s.engine.Auction(index)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, newAuctionResponse(index, a))
}

func (s *Server) getPrice(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	now, ok := s.now(c)
	if !ok {
		return
	}
	price, err := s.engine.PriceOf(index, now)
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "price": price.Dec(), "timestamp": now})
}

func (s *Server) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	startPrice, err := amountOf(req.StartPrice)
	if err != nil {
		badRequest(c, "startPrice: "+err.Error())
		return
	}
	discountRate, err := amountOf(req.DiscountRate)
	if err != nil {
		badRequest(c, "discountRate: "+err.Error())
		return
	}
	now, ok := s.now(c)
	if !ok {
		return
	}

	call := model.CallContext{Caller: callerOf(c), Timestamp: now}
	index, err := s.engine.CreateAuction(call, req.Duration, startPrice, discountRate, req.Item)
	if err != nil {
		s.fail(c, model.OperationCreate, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"index": index})
}

func (s *Server) buy(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	value, err := amountOf(req.Value)
	if err != nil {
		badRequest(c, "value: "+err.Error())
		return
	}
	now, ok := s.now(c)
	if !ok {
		return
	}

	call := model.CallContext{Caller: callerOf(c), Timestamp: now, Value: value}
	purchase, err := s.engine.Buy(call, index)
	if err != nil {
		s.fail(c, model.OperationBuy, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"index":      index,
		"finalPrice": purchase.FinalPrice.Dec(),
		"fee":        purchase.Fee.Dec(),
		"change":     purchase.Change.Dec(),
	})
}

func (s *Server) withdraw(c *gin.Context) {
	now, ok := s.now(c)
	if !ok {
		return
	}
	amount, err := s.engine.Withdraw(model.CallContext{Caller: callerOf(c), Timestamp: now})
	if err != nil {
		s.fail(c, model.OperationWithdraw, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount.Dec()})
}

var eventTopics = map[string]common.Hash{
	model.AuctionCreatedEventName: model.TopicAuctionCreated,
	model.AuctionEndedEventName:   model.TopicAuctionEnded,
}

func internalError(c *gin.Context, what string, err error) {
	logrus.Errorf("%s: %v", what, err)
	c.JSON(http.StatusInternalServerError, gin.H{"code": model.ValidCodeUnknowError.Name(), "error": what})
}

func (s *Server) listEvents(c *gin.Context) {
	name := c.Query("topic")
	topic, ok := eventTopics[name]
	if !ok {
		badRequest(c, "topic must be AuctionCreated or AuctionEnded")
		return
	}
	rows, err := s.history.Logs(topic)
	if err != nil {
		internalError(c, "read logs", err)
		return
	}

	events := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		log := &types.Log{Address: common.HexToAddress(row.Address), Topics: []common.Hash{topic}, Data: row.Data}
		ev, err := decodeEvent(log)
		if err != nil {
			internalError(c, "decode log", err)
			return
		}
		ev["caller"] = row.Caller
		ev["timestamp"] = row.Timestamp
		events = append(events, ev)
	}
	c.JSON(http.StatusOK, gin.H{"topic": name, "events": events})
}

func decodeEvent(log *types.Log) (gin.H, error) {
	if log.Topics[0] == model.TopicAuctionCreated {
		ev, err := model.ParseAuctionCreated(log)
		if err != nil {
			return nil, err
		}
		return gin.H{"index": ev.Index, "item": ev.Item, "startPrice": ev.StartPrice.Dec(), "duration": ev.Duration}, nil
	}
	ev, err := model.ParseAuctionEnded(log)
	if err != nil {
		return nil, err
	}
	return gin.H{"index": ev.Index, "finalPrice": ev.FinalPrice.Dec(), "winner": ev.Winner.Hex()}, nil
}

func (s *Server) listOps(c *gin.Context) {
	from := c.Query("from")
	if from != "" && !common.IsHexAddress(from) {
		badRequest(c, "from must be hex")
		return
	}
	ops, err := s.history.Ops(strings.ToLower(from))
	if err != nil {
		internalError(c, "read ops", err)
		return
	}

	resp := make([]gin.H, 0, len(ops))
	for _, op := range ops {
		resp = append(resp, gin.H{
			"number":       op.Number,
			"hash":         op.Hash,
			"operation":    op.Operation,
			"from":         op.From,
			"auctionIndex": op.AuctionIndex,
			"value":        op.Value,
			"price":        op.Price,
			"block":        op.Block,
			"timestamp":    op.Timestamp,
			"code":         op.Valid.Name(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"ops": resp})
}
