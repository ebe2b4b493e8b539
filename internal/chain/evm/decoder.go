package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/idhash"
)

// HTLCABI declares the events emitted by the EVM escrow contract.
const HTLCABI = `[
  {"type":"event","name":"OrderCreated","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"maker","type":"address","indexed":true},
    {"name":"makingToken","type":"address","indexed":false},
    {"name":"makingAmount","type":"uint256","indexed":false},
    {"name":"takingToken","type":"string","indexed":false},
    {"name":"takingAmount","type":"uint256","indexed":false},
    {"name":"targetChain","type":"string","indexed":false},
    {"name":"secretHash","type":"bytes32","indexed":false},
    {"name":"timeLock","type":"uint256","indexed":false}]},
  {"type":"event","name":"OrderFilled","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"taker","type":"address","indexed":true}]},
  {"type":"event","name":"SecretRevealed","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"secret","type":"string","indexed":false}]},
  {"type":"event","name":"CrossChainInitiated","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"targetChain","type":"string","indexed":false},
    {"name":"secretHash","type":"bytes32","indexed":false}]},
  {"type":"event","name":"CrossChainConfirmed","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true}]},
  {"type":"event","name":"SwapRefunded","anonymous":false,"inputs":[
    {"name":"orderId","type":"bytes32","indexed":true},
    {"name":"maker","type":"address","indexed":true}]}
]`

// Decoder turns raw contract logs into ChainEvents.
type Decoder struct {
	chainID string
	abi     abi.ABI
}

// NewDecoder parses HTLCABI.
func NewDecoder(chainID string) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(HTLCABI))
	if err != nil {
		return nil, fmt.Errorf("parse htlc abi: %w", err)
	}
	return &Decoder{chainID: chainID, abi: parsed}, nil
}

// ABI returns the parsed contract ABI.
func (d *Decoder) ABI() abi.ABI {
	return d.abi
}

// Decode converts one log. Logs with an unrecognized topic become
// EventUnknown events carrying the topic in Data.Raw.
func (d *Decoder) Decode(l types.Log, timestampMs int64) (*domain.ChainEvent, error) {
	txHash := l.TxHash.Hex()
	ev := &domain.ChainEvent{
		ID:              idhash.ComputeEventID(d.chainID, txHash, uint64(l.Index)),
		ChainID:         d.chainID,
		BlockNumber:     l.BlockNumber,
		TransactionHash: idhash.NormalizeTxHash(txHash),
		LogIndex:        uint64(l.Index),
		Timestamp:       timestampMs,
		ContractAddress: strings.ToLower(l.Address.Hex()),
	}

	if len(l.Topics) == 0 {
		ev.Type = domain.EventUnknown
		return ev, nil
	}

	event, err := d.abi.EventByID(l.Topics[0])
	if err != nil {
		ev.Type = domain.EventUnknown
		ev.Data.Raw = map[string]string{"topic0": l.Topics[0].Hex()}
		return ev, nil
	}

	fields := make(map[string]interface{})
	if err := d.abi.UnpackIntoMap(fields, event.Name, l.Data); err != nil {
		return nil, fmt.Errorf("unpack %s data: %w", event.Name, err)
	}
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}

	ev.Type = domain.EventType(event.Name)
	ev.Data = domain.EventData{
		OrderID:      bytes32(fields["orderId"]),
		Maker:        address(fields["maker"]),
		Taker:        address(fields["taker"]),
		MakingToken:  address(fields["makingToken"]),
		TakingToken:  str(fields["takingToken"]),
		MakingAmount: bigint(fields["makingAmount"]),
		TakingAmount: bigint(fields["takingAmount"]),
		TargetChain:  str(fields["targetChain"]),
		SecretHash:   bytes32(fields["secretHash"]),
		Secret:       str(fields["secret"]),
	}
	if tl, ok := fields["timeLock"].(*big.Int); ok && tl.IsInt64() {
		ev.Data.TimeLock = tl.Int64()
	}
	return ev, nil
}

func bytes32(v interface{}) string {
	if b, ok := v.([32]byte); ok {
		return hexutil.Encode(b[:])
	}
	return ""
}

func address(v interface{}) string {
	if a, ok := v.(common.Address); ok {
		return strings.ToLower(a.Hex())
	}
	return ""
}

func bigint(v interface{}) string {
	if b, ok := v.(*big.Int); ok && b != nil {
		return b.String()
	}
	return ""
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
