package dex

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "value", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  }
]`

const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

const wethABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "dst", "type": "address"},
      {"indexed": false, "name": "wad", "type": "uint256"}
    ],
    "name": "Deposit",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "src", "type": "address"},
      {"indexed": false, "name": "wad", "type": "uint256"}
    ],
    "name": "Withdrawal",
    "type": "event"
  }
]`

var (
	erc20ABIString  = &lazyABI{raw: erc20ABIStringJSON}
	erc20ABIBytes32 = &lazyABI{raw: erc20ABIBytes32JSON}
	wethABI         = &lazyABI{raw: wethABIJSON}
)

// ERC20ABI returns the parsed ERC20 ABI with string name/symbol.
func ERC20ABI() (abi.ABI, error) { return erc20ABIString.get() }

// WETHABI returns the wrap/unwrap events of the wrapped native contract.
func WETHABI() (abi.ABI, error) { return wethABI.get() }
