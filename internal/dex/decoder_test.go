package dex

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"traderScope/internal/model"
)

func TestPoolCreatedDecoderConcentrated(t *testing.T) {
	factoryABI, err := FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	factory := Factory{Name: "UNISWAP_V3", Kind: model.PoolKindConcentrated, Address: common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")}
	decoder, err := NewPoolCreatedDecoder(factory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	token0 := common.HexToAddress("0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	token1 := common.HexToAddress("0xBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb")
	pool := common.HexToAddress("0xCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCcCc")

	event := factoryABI.Events["PoolCreated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(-60), pool)
	if err != nil {
		t.Fatalf("pack pool created: %v", err)
	}
	log := buildLogRecord(factory.Address, event.ID, data, []common.Hash{
		topicFromAddress(token0),
		topicFromAddress(token1),
		common.BigToHash(big.NewInt(3000)),
	})

	if !decoder.CanDecode(log.Topics[0]) {
		t.Fatalf("decoder should accept PoolCreated")
	}
	got, err := decoder.Decode(log)
	if err != nil {
		t.Fatalf("decode pool created: %v", err)
	}
	if got.Address != strings.ToLower(pool.Hex()) || got.Token0 != strings.ToLower(token0.Hex()) || got.Token1 != strings.ToLower(token1.Hex()) {
		t.Fatalf("address mismatch: %+v", got)
	}
	if got.Fee == nil || *got.Fee != 3000 || got.TickSpacing == nil || *got.TickSpacing != -60 {
		t.Fatalf("fee/tick spacing mismatch: %+v", got)
	}
	if got.Kind != model.PoolKindConcentrated || got.CreatedAtBlock != 12345 || got.DexName != "UNISWAP_V3" {
		t.Fatalf("pool meta mismatch: %+v", got)
	}
}

func TestPoolCreatedDecoderConstantProduct(t *testing.T) {
	factoryABI, err := FactoryABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	factory := Factory{Name: "UNISWAP_V2", Kind: model.PoolKindConstantProduct}
	decoder, err := NewPoolCreatedDecoder(factory)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	pair := common.HexToAddress("0x3333333333333333333333333333333333333333")

	event := factoryABI.Events["PairCreated"]
	data, err := event.Inputs.NonIndexed().Pack(pair, big.NewInt(7))
	if err != nil {
		t.Fatalf("pack pair created: %v", err)
	}
	got, err := decoder.Decode(buildLogRecord(factory.Address, event.ID, data, []common.Hash{topicFromAddress(token0), topicFromAddress(token1)}))
	if err != nil {
		t.Fatalf("decode pair created: %v", err)
	}
	if got.Address != strings.ToLower(pair.Hex()) || got.Fee != nil || got.TickSpacing != nil {
		t.Fatalf("pair mismatch: %+v", got)
	}
	if decoder.CanDecode(factoryABI.Events["PoolCreated"].ID.Hex()) {
		t.Fatalf("constant-product decoder must not accept PoolCreated")
	}
}

func TestTransferDecoder(t *testing.T) {
	decoder, err := NewTransferDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	erc20, _ := ERC20ABI()
	weth, _ := WETHABI()

	token := common.HexToAddress("0x4444444444444444444444444444444444444444")
	from := common.HexToAddress("0x5555555555555555555555555555555555555555")
	to := common.HexToAddress("0x6666666666666666666666666666666666666666")

	amount, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	data, err := erc20.Events["Transfer"].Inputs.NonIndexed().Pack(amount)
	if err != nil {
		t.Fatalf("pack transfer: %v", err)
	}
	ev, err := decoder.Decode(buildLogRecord(token, erc20.Events["Transfer"].ID, data, []common.Hash{topicFromAddress(from), topicFromAddress(to)}))
	if err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if ev.Name != EventTransfer || ev.Amount.Cmp(amount) != 0 || ev.From != strings.ToLower(from.Hex()) || ev.To != strings.ToLower(to.Hex()) {
		t.Fatalf("transfer mismatch: %+v", ev)
	}
	if ev.Token != strings.ToLower(token.Hex()) {
		t.Fatalf("token mismatch: %s", ev.Token)
	}

	// ERC721 Transfer shares the signature but indexes tokenId.
	nft := buildLogRecord(token, erc20.Events["Transfer"].ID, nil, []common.Hash{topicFromAddress(from), topicFromAddress(to), common.BigToHash(big.NewInt(1))})
	if _, err := decoder.Decode(nft); err == nil {
		t.Fatalf("expected ERC721 transfer to fail decoding")
	}

	wad := big.NewInt(1e18)
	depositData, _ := weth.Events["Deposit"].Inputs.NonIndexed().Pack(wad)
	dep, err := decoder.Decode(buildLogRecord(token, weth.Events["Deposit"].ID, depositData, []common.Hash{topicFromAddress(to)}))
	if err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	if dep.Name != EventDeposit || dep.To != strings.ToLower(to.Hex()) || dep.From != "" || dep.Amount.Cmp(wad) != 0 {
		t.Fatalf("deposit mismatch: %+v", dep)
	}

	withdrawalData, _ := weth.Events["Withdrawal"].Inputs.NonIndexed().Pack(wad)
	wd, err := decoder.Decode(buildLogRecord(token, weth.Events["Withdrawal"].ID, withdrawalData, []common.Hash{topicFromAddress(from)}))
	if err != nil {
		t.Fatalf("decode withdrawal: %v", err)
	}
	if wd.Name != EventWithdrawal || wd.From != strings.ToLower(from.Hex()) || wd.To != "" {
		t.Fatalf("withdrawal mismatch: %+v", wd)
	}

	if decoder.CanDecode("0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1") {
		t.Fatalf("Sync event should not be decodable")
	}
}

func buildLogRecord(address common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		BlockNumber: 12345,
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
