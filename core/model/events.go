package model

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"dutch-auction-engine/utils/generics/must"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

var (
	ErrUnknownTopic = errors.New("unknown event topic")
)

type AuctionCreatedEvent struct {
	Index      uint64
	Item       string
	StartPrice *uint256.Int
	Duration   uint64
}

type AuctionEndedEvent struct {
	Index      uint64
	FinalPrice *uint256.Int
	Winner     common.Address
}

const AuctionEventABIJson = `[
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"index","type":"uint256"},{"indexed":false,"internalType":"string","name":"itemName","type":"string"},{"indexed":false,"internalType":"uint256","name":"startingPrice","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"duration","type":"uint256"}],"name":"AuctionCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"index","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"finalPrice","type":"uint256"},{"indexed":false,"internalType":"address","name":"winner","type":"address"}],"name":"AuctionEnded","type":"event"}
]`

var (
	AuctionEventABI = must.Must(abi.JSON(strings.NewReader(AuctionEventABIJson)))

	AuctionCreatedEventName = "AuctionCreated"
	AuctionEndedEventName   = "AuctionEnded"

	TopicAuctionCreated = Topic("AuctionCreated(uint256,string,uint256,uint256)")
	TopicAuctionEnded   = Topic("AuctionEnded(uint256,uint256,address)")
)

func (ev *AuctionCreatedEvent) Log(address common.Address) (*types.Log, error) {
	data, err := AuctionEventABI.Events[AuctionCreatedEventName].Inputs.NonIndexed().Pack(
		new(big.Int).SetUint64(ev.Index),
		ev.Item,
		ev.StartPrice.ToBig(),
		new(big.Int).SetUint64(ev.Duration),
	)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", AuctionCreatedEventName, err)
	}
	return &types.Log{Address: address, Topics: []common.Hash{TopicAuctionCreated}, Data: data}, nil
}

func (ev *AuctionEndedEvent) Log(address common.Address) (*types.Log, error) {
	data, err := AuctionEventABI.Events[AuctionEndedEventName].Inputs.NonIndexed().Pack(
		new(big.Int).SetUint64(ev.Index),
		ev.FinalPrice.ToBig(),
		ev.Winner,
	)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", AuctionEndedEventName, err)
	}
	return &types.Log{Address: address, Topics: []common.Hash{TopicAuctionEnded}, Data: data}, nil
}

func ParseEventLog(parsedAbi abi.ABI, eventName string, logData *types.Log) (map[string]interface{}, error) {
	event, exists := parsedAbi.Events[eventName]
	if !exists {
		return nil, fmt.Errorf("event '%s' not found", eventName)
	}
	if len(logData.Topics) == 0 || logData.Topics[0] != event.ID {
		return nil, fmt.Errorf("%w for event '%s'", ErrUnknownTopic, eventName)
	}

	eventData := make(map[string]interface{})
	if err := parsedAbi.UnpackIntoMap(eventData, eventName, logData.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}

	indexed := abi.Arguments{}
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	for i, topic := range logData.Topics[1:] {
		if i >= len(indexed) {
			break
		}
		eventData[indexed[i].Name] = topic
	}

	return eventData, nil
}

func ParseAuctionCreated(logData *types.Log) (*AuctionCreatedEvent, error) {
	eventData, err := ParseEventLog(AuctionEventABI, AuctionCreatedEventName, logData)
	if err != nil {
		return nil, err
	}

	ev := &AuctionCreatedEvent{}
	if ev.Index, err = uint64Field(eventData, "index"); err != nil {
		return nil, err
	}
	if ev.Duration, err = uint64Field(eventData, "duration"); err != nil {
		return nil, err
	}
	if ev.StartPrice, err = amountField(eventData, "startingPrice"); err != nil {
		return nil, err
	}
	if item, ok := eventData["itemName"].(string); ok {
		ev.Item = item
	}
	return ev, nil
}

func ParseAuctionEnded(logData *types.Log) (*AuctionEndedEvent, error) {
	eventData, err := ParseEventLog(AuctionEventABI, AuctionEndedEventName, logData)
	if err != nil {
		return nil, err
	}

	ev := &AuctionEndedEvent{}
	if ev.Index, err = uint64Field(eventData, "index"); err != nil {
		return nil, err
	}
	if ev.FinalPrice, err = amountField(eventData, "finalPrice"); err != nil {
		return nil, err
	}
	if winner, ok := eventData["winner"].(common.Address); ok {
		ev.Winner = winner
	}
	return ev, nil
}

func amountField(eventData map[string]interface{}, name string) (*uint256.Int, error) {
	v, ok := eventData[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("field '%s' missing", name)
	}
	amount, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("field '%s' overflows uint256", name)
	}
	return amount, nil
}

func uint64Field(eventData map[string]interface{}, name string) (uint64, error) {
	amount, err := amountField(eventData, name)
	if err != nil {
		return 0, err
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("field '%s' overflows uint64", name)
	}
	return amount.Uint64(), nil
}
