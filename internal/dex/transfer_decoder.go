package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"traderScope/internal/model"
)

// Asset movement events understood by TransferDecoder.
const (
	EventTransfer   = "Transfer"
	EventDeposit    = "Deposit"
	EventWithdrawal = "Withdrawal"
)

// TransferEvent is a decoded asset movement. Deposit has no From,
// Withdrawal has no To.
type TransferEvent struct {
	Name   string
	Token  string
	From   string
	To     string
	Amount *big.Int
}

// TransferDecoder decodes ERC20 Transfer and wrapped-native Deposit/Withdrawal logs.
type TransferDecoder struct {
	events      map[string]abi.Event
	topicToName map[string]string
}

// NewTransferDecoder builds a transfer decoder.
func NewTransferDecoder() (*TransferDecoder, error) {
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, err
	}
	weth, err := WETHABI()
	if err != nil {
		return nil, err
	}

	events := map[string]abi.Event{
		EventTransfer:   erc20.Events["Transfer"],
		EventDeposit:    weth.Events["Deposit"],
		EventWithdrawal: weth.Events["Withdrawal"],
	}
	topicToName := make(map[string]string, len(events))
	for name, event := range events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &TransferDecoder{events: events, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *TransferDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TransferEvent. Logs sharing a signature
// with a different indexed layout (ERC721 Transfer) fail to decode.
func (d *TransferDecoder) Decode(log model.LogRecord) (TransferEvent, error) {
	if len(log.Topics) == 0 {
		return TransferEvent{}, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return TransferEvent{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return TransferEvent{}, fmt.Errorf("invalid token address: %s", log.Address)
	}

	event := d.events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return TransferEvent{}, err
	}
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return TransferEvent{}, err
	}
	if len(values) != 1 {
		return TransferEvent{}, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}
	amount, err := AsBigInt(values[0])
	if err != nil {
		return TransferEvent{}, err
	}

	out := TransferEvent{
		Name:   name,
		Token:  strings.ToLower(log.Address),
		Amount: amount,
	}

	switch name {
	case EventTransfer:
		var indexed struct {
			From common.Address
			To   common.Address
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
			return TransferEvent{}, fmt.Errorf("parse topics: %w", err)
		}
		out.From = lowerHex(indexed.From)
		out.To = lowerHex(indexed.To)
	case EventDeposit:
		var indexed struct {
			Dst common.Address
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
			return TransferEvent{}, fmt.Errorf("parse topics: %w", err)
		}
		out.To = lowerHex(indexed.Dst)
	case EventWithdrawal:
		var indexed struct {
			Src common.Address
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
			return TransferEvent{}, fmt.Errorf("parse topics: %w", err)
		}
		out.From = lowerHex(indexed.Src)
	}

	return out, nil
}
