package ledger

import (
	"reflect"
	"testing"

	"traderScope/internal/model"
)

func TestExtractFailedTransactionOnlyFee(t *testing.T) {
	extractor := newTestExtractor(t)
	tx := model.Transaction{
		Hash:     "0x01",
		From:     testAccount,
		To:       testOther,
		Value:    "1000",
		GasUsed:  "21000000",
		IsFailed: true,
		Logs:     []model.LogRecord{transferLog(t, testUSDC, testOther, testAccount, big10("5000000"))},
		InternalTxs: []model.InternalTx{
			{From: testOther, To: testAccount, Value: "7"},
		},
	}

	got := extractor.Extract(tx)
	want := []model.Transfer{{Token: model.NativeToken, Amount: "21000000", Type: model.TransferOut, Decimals: 18, IsFee: true}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transfers mismatch: got %+v want %+v", got, want)
	}
}

func TestExtractSuccessfulTransaction(t *testing.T) {
	extractor := newTestExtractor(t)
	tx := model.Transaction{
		Hash:    "0x02",
		From:    testAccount,
		To:      testWETH,
		Value:   "300",
		GasUsed: "10",
		InternalTxs: []model.InternalTx{
			{From: testOther, To: testAccount, Value: "40"},
			{From: testOther, To: testJunk, Value: "50"},
		},
		Logs: []model.LogRecord{
			transferLog(t, testUSDC, testAccount, testOther, big10("2000000")),
			transferLog(t, testJunk, testOther, testAccount, big10("999")),
			wethLog(t, "Deposit", testAccount, big10("300")),
			wethLog(t, "Withdrawal", testOther, big10("1")),
		},
	}

	got := extractor.Extract(tx)
	want := []model.Transfer{
		{Token: model.NativeToken, Amount: "10", Type: model.TransferOut, Decimals: 18, IsFee: true},
		{Token: model.NativeToken, Amount: "300", Type: model.TransferOut, Decimals: 18},
		{Token: model.NativeToken, Amount: "40", Type: model.TransferIn, Decimals: 18},
		{Token: testUSDC, Amount: "2000000", Type: model.TransferOut, Decimals: 6},
		{Token: testWETH, Amount: "300", Type: model.TransferIn, Decimals: 18},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transfers mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestExtractIncomingTransferHasNoFee(t *testing.T) {
	extractor := newTestExtractor(t)
	tx := model.Transaction{
		Hash:    "0x03",
		From:    testOther,
		To:      testAccount,
		Value:   "5",
		GasUsed: "0",
	}
	got := extractor.Extract(tx)
	want := []model.Transfer{{Token: model.NativeToken, Amount: "5", Type: model.TransferIn, Decimals: 18}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("transfers mismatch: got %+v want %+v", got, want)
	}
}
