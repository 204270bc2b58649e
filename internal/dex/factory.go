package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"traderScope/internal/model"
)

// Factory is a DEX factory whose creation events announce new pools.
type Factory struct {
	Name       string
	Kind       model.PoolKind
	Address    common.Address
	StartBlock uint64
}

// CreationEvent returns the pool creation event emitted by factories of kind.
func CreationEvent(kind model.PoolKind) (abi.Event, error) {
	parsed, err := FactoryABI()
	if err != nil {
		return abi.Event{}, err
	}
	switch kind {
	case model.PoolKindConstantProduct:
		return parsed.Events["PairCreated"], nil
	case model.PoolKindConcentrated:
		return parsed.Events["PoolCreated"], nil
	default:
		return abi.Event{}, fmt.Errorf("no creation event for pool kind %s", kind)
	}
}

// PoolCreatedDecoder decodes factory creation logs into pools.
type PoolCreatedDecoder struct {
	factory Factory
	event   abi.Event
	topic0  string
}

// NewPoolCreatedDecoder builds a decoder for one factory.
func NewPoolCreatedDecoder(factory Factory) (*PoolCreatedDecoder, error) {
	event, err := CreationEvent(factory.Kind)
	if err != nil {
		return nil, err
	}
	return &PoolCreatedDecoder{
		factory: factory,
		event:   event,
		topic0:  strings.ToLower(event.ID.Hex()),
	}, nil
}

// Topic0 returns the creation event signature hash.
func (d *PoolCreatedDecoder) Topic0() common.Hash {
	return d.event.ID
}

// CanDecode checks if the topic0 is the factory's creation event.
func (d *PoolCreatedDecoder) CanDecode(topic0 string) bool {
	return strings.ToLower(topic0) == d.topic0
}

// Decode converts a creation log into a Pool with addresses lower-cased.
func (d *PoolCreatedDecoder) Decode(log model.LogRecord) (model.Pool, error) {
	if len(log.Topics) == 0 || !d.CanDecode(log.Topics[0]) {
		return model.Pool{}, fmt.Errorf("unsupported log for %s", d.factory.Name)
	}
	indexedTopics, err := parseIndexedTopics(d.event, log.Topics)
	if err != nil {
		return model.Pool{}, err
	}
	values, err := unpackNonIndexed(d.event, log.Data)
	if err != nil {
		return model.Pool{}, err
	}

	pool := model.Pool{
		DexName:        d.factory.Name,
		Kind:           d.factory.Kind,
		CreatedAtBlock: log.BlockNumber,
		UpdatedAtBlock: log.BlockNumber,
	}

	switch d.factory.Kind {
	case model.PoolKindConstantProduct:
		var indexed struct {
			Token0 common.Address
			Token1 common.Address
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(d.event.Inputs), indexedTopics); err != nil {
			return model.Pool{}, fmt.Errorf("parse topics: %w", err)
		}
		if len(values) != 2 {
			return model.Pool{}, fmt.Errorf("unexpected pair created values: %d", len(values))
		}
		pair, err := asAddress(values[0])
		if err != nil {
			return model.Pool{}, err
		}
		pool.Address = lowerHex(pair)
		pool.Token0 = lowerHex(indexed.Token0)
		pool.Token1 = lowerHex(indexed.Token1)
	case model.PoolKindConcentrated:
		var indexed struct {
			Token0 common.Address
			Token1 common.Address
			Fee    *big.Int
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(d.event.Inputs), indexedTopics); err != nil {
			return model.Pool{}, fmt.Errorf("parse topics: %w", err)
		}
		if len(values) != 2 {
			return model.Pool{}, fmt.Errorf("unexpected pool created values: %d", len(values))
		}
		spacingInt, err := AsBigInt(values[0])
		if err != nil {
			return model.Pool{}, err
		}
		spacing, err := int24FromBig(spacingInt)
		if err != nil {
			return model.Pool{}, fmt.Errorf("tick spacing: %w", err)
		}
		addr, err := asAddress(values[1])
		if err != nil {
			return model.Pool{}, err
		}
		fee := uint32(indexed.Fee.Uint64())
		pool.Address = lowerHex(addr)
		pool.Token0 = lowerHex(indexed.Token0)
		pool.Token1 = lowerHex(indexed.Token1)
		pool.Fee = &fee
		pool.TickSpacing = &spacing
	}

	if pool.Address == lowerHex(common.Address{}) {
		return model.Pool{}, fmt.Errorf("zero pool address")
	}
	return pool, nil
}
