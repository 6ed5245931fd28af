package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	erc20TransferABIJSON = `[{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}]`

	erc1155TransferABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"operator","type":"address"},{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"id","type":"uint256"},{"indexed":false,"name":"value","type":"uint256"}],"name":"TransferSingle","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"operator","type":"address"},{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"ids","type":"uint256[]"},{"indexed":false,"name":"values","type":"uint256[]"}],"name":"TransferBatch","type":"event"}]`
)

var (
	erc20ABI   abi.ABI
	erc1155ABI abi.ABI

	// TransferTopic is the ERC-20 Transfer event signature hash.
	TransferTopic common.Hash
	// TransferSingleTopic is the ERC-1155 TransferSingle event signature hash.
	TransferSingleTopic common.Hash
	// TransferBatchTopic is the ERC-1155 TransferBatch event signature hash.
	TransferBatchTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 Transfer ABI: " + err.Error())
	}
	erc20ABI = parsed

	parsed, err = abi.JSON(strings.NewReader(erc1155TransferABIJSON))
	if err != nil {
		panic("failed to parse ERC-1155 transfer ABI: " + err.Error())
	}
	erc1155ABI = parsed

	TransferTopic = erc20ABI.Events["Transfer"].ID
	TransferSingleTopic = erc1155ABI.Events["TransferSingle"].ID
	TransferBatchTopic = erc1155ABI.Events["TransferBatch"].ID
}

// Contracts lists the on-chain addresses the watcher cares about.
type Contracts struct {
	USDC       common.Address
	CTF        common.Address
	NegRisk    common.Address
	ShareToken common.Address
}

// ParseContracts converts hex strings into a Contracts table.
func ParseContracts(usdc, ctf, negRisk, shareToken string) Contracts {
	return Contracts{
		USDC:       common.HexToAddress(usdc),
		CTF:        common.HexToAddress(ctf),
		NegRisk:    common.HexToAddress(negRisk),
		ShareToken: common.HexToAddress(shareToken),
	}
}
