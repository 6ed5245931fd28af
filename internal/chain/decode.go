package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnexpectedEvent indicates a log does not match the expected event shape.
	ErrUnexpectedEvent = errors.New("chain: unexpected event shape")
	// ErrLengthMismatch indicates a batch transfer whose ids and values differ in length.
	ErrLengthMismatch = errors.New("chain: ids/values length mismatch")
)

// TransferEvent is a decoded stablecoin Transfer.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// ShareTransfer is a decoded outcome-share movement. Single transfers carry one id.
type ShareTransfer struct {
	Operator common.Address
	From     common.Address
	To       common.Address
	IDs      []*big.Int
	Values   []*big.Int
	Batch    bool
}

// DecodeTransfer decodes an ERC-20 Transfer log.
func DecodeTransfer(log types.Log) (TransferEvent, error) {
	if len(log.Topics) != 3 || log.Topics[0] != TransferTopic {
		return TransferEvent{}, fmt.Errorf("%w: want Transfer with 3 topics, got %d", ErrUnexpectedEvent, len(log.Topics))
	}

	out, err := erc20ABI.Unpack("Transfer", log.Data)
	if err != nil {
		return TransferEvent{}, fmt.Errorf("unpack Transfer: %w", err)
	}
	if len(out) != 1 {
		return TransferEvent{}, fmt.Errorf("%w: Transfer data has %d fields", ErrUnexpectedEvent, len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return TransferEvent{}, fmt.Errorf("%w: Transfer value is %T", ErrUnexpectedEvent, out[0])
	}

	return TransferEvent{
		From:        common.BytesToAddress(log.Topics[1].Bytes()),
		To:          common.BytesToAddress(log.Topics[2].Bytes()),
		Value:       value,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

// DecodeShareTransfer decodes one ERC-1155 TransferSingle or TransferBatch log.
func DecodeShareTransfer(log types.Log) (ShareTransfer, error) {
	if len(log.Topics) != 4 {
		return ShareTransfer{}, fmt.Errorf("%w: want 4 topics, got %d", ErrUnexpectedEvent, len(log.Topics))
	}

	st := ShareTransfer{
		Operator: common.BytesToAddress(log.Topics[1].Bytes()),
		From:     common.BytesToAddress(log.Topics[2].Bytes()),
		To:       common.BytesToAddress(log.Topics[3].Bytes()),
	}

	switch log.Topics[0] {
	case TransferSingleTopic:
		out, err := erc1155ABI.Unpack("TransferSingle", log.Data)
		if err != nil {
			return ShareTransfer{}, fmt.Errorf("unpack TransferSingle: %w", err)
		}
		if len(out) != 2 {
			return ShareTransfer{}, fmt.Errorf("%w: TransferSingle data has %d fields", ErrUnexpectedEvent, len(out))
		}
		id, idOK := out[0].(*big.Int)
		value, valueOK := out[1].(*big.Int)
		if !idOK || !valueOK {
			return ShareTransfer{}, fmt.Errorf("%w: TransferSingle fields are %T/%T", ErrUnexpectedEvent, out[0], out[1])
		}
		st.IDs = []*big.Int{id}
		st.Values = []*big.Int{value}
	case TransferBatchTopic:
		out, err := erc1155ABI.Unpack("TransferBatch", log.Data)
		if err != nil {
			return ShareTransfer{}, fmt.Errorf("unpack TransferBatch: %w", err)
		}
		if len(out) != 2 {
			return ShareTransfer{}, fmt.Errorf("%w: TransferBatch data has %d fields", ErrUnexpectedEvent, len(out))
		}
		ids, idsOK := out[0].([]*big.Int)
		values, valuesOK := out[1].([]*big.Int)
		if !idsOK || !valuesOK {
			return ShareTransfer{}, fmt.Errorf("%w: TransferBatch fields are %T/%T", ErrUnexpectedEvent, out[0], out[1])
		}
		if len(ids) != len(values) {
			return ShareTransfer{}, fmt.Errorf("%w: %d ids, %d values", ErrLengthMismatch, len(ids), len(values))
		}
		st.IDs = ids
		st.Values = values
		st.Batch = true
	default:
		return ShareTransfer{}, fmt.Errorf("%w: topic %s", ErrUnexpectedEvent, log.Topics[0].Hex())
	}

	return st, nil
}

// IsShareTransfer reports whether log is an ERC-1155 transfer emitted by token.
func IsShareTransfer(log types.Log, token common.Address) bool {
	if log.Address != token || len(log.Topics) == 0 {
		return false
	}
	return log.Topics[0] == TransferSingleTopic || log.Topics[0] == TransferBatchTopic
}
