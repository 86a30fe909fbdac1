package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// WalletABI is the interface of the wallet contract (daily limits, approved
// recipients, described transfers).
const WalletABI = `[
	{"type":"function","name":"sendEther","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"description","type":"string"}],
	 "outputs":[]},
	{"type":"function","name":"getBalance","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"dailyLimit","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"dailySpent","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"setDailyLimit","stateMutability":"nonpayable",
	 "inputs":[{"name":"limit","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"approveAddress","stateMutability":"nonpayable",
	 "inputs":[{"name":"account","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
	{"type":"function","name":"approvedAddresses","stateMutability":"view",
	 "inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"getTransactionHistory","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"timestamp","type":"uint256"},
		{"name":"description","type":"string"},
		{"name":"executed","type":"bool"}]}]},
	{"type":"receive","stateMutability":"payable"}
]`

// ERC20ABI is the subset of ERC-20 used for token transfers.
const ERC20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

// Method names of the wallet contract.
const (
	MethodSendEther          = "sendEther"
	MethodGetBalance         = "getBalance"
	MethodDailyLimit         = "dailyLimit"
	MethodDailySpent         = "dailySpent"
	MethodSetDailyLimit      = "setDailyLimit"
	MethodApproveAddress     = "approveAddress"
	MethodApprovedAddresses  = "approvedAddresses"
	MethodTransactionHistory = "getTransactionHistory"
)

var (
	walletABI = mustParse(WalletABI)
	erc20ABI  = mustParse(ERC20ABI)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("contract: invalid ABI: " + err.Error())
	}
	return parsed
}
