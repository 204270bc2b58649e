package ledger

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"traderScope/internal/dex"
	"traderScope/internal/model"
)

const (
	testAccount = "0x00000000000000000000000000000000000000aa"
	testOther   = "0x00000000000000000000000000000000000000bb"
	testWETH    = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	testUSDC    = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	testJunk    = "0x00000000000000000000000000000000000000cc"
)

func testTracked() map[string]model.Token {
	return map[string]model.Token{
		testUSDC: {Address: testUSDC, Decimals: 6},
		testWETH: {Address: testWETH, Decimals: 18},
	}
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	extractor, err := NewExtractor(testAccount, testWETH, testTracked())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	return extractor
}

func addressTopic(addr string) string {
	return common.BytesToHash(common.HexToAddress(addr).Bytes()).Hex()
}

func amountData(amount *big.Int) string {
	return hexutil.Encode(common.BigToHash(amount).Bytes())
}

func transferLog(t *testing.T, token, from, to string, amount *big.Int) model.LogRecord {
	t.Helper()
	erc20, err := dex.ERC20ABI()
	if err != nil {
		t.Fatalf("ERC20ABI failed: %v", err)
	}
	return model.LogRecord{
		Address: token,
		Topics:  []string{erc20.Events["Transfer"].ID.Hex(), addressTopic(from), addressTopic(to)},
		Data:    amountData(amount),
	}
}

func wethLog(t *testing.T, event, who string, amount *big.Int) model.LogRecord {
	t.Helper()
	weth, err := dex.WETHABI()
	if err != nil {
		t.Fatalf("WETHABI failed: %v", err)
	}
	return model.LogRecord{
		Address: testWETH,
		Topics:  []string{weth.Events[event].ID.Hex(), addressTopic(who)},
		Data:    amountData(amount),
	}
}

func big10(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		panic("bad number " + s)
	}
	return v
}
