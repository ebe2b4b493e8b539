// Package evm reads HTLC contract logs from an EVM chain via go-ethereum.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"htlc-relayer/internal/chain"
	"htlc-relayer/internal/domain"
)

// Default configuration values.
const (
	DefaultBatchSize      = 2000
	DefaultTimestampCache = 4096
)

// LogClient is the subset of ethclient.Client the source uses.
type LogClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ LogClient = (*ethclient.Client)(nil)

// Config configures an EVM Source.
type Config struct {
	ChainID   string
	Contract  string // HTLC contract address
	BatchSize uint64 // max blocks per FilterLogs call
}

// Source implements chain.Source over eth_getLogs.
type Source struct {
	client   LogClient
	chainID  string
	contract common.Address
	batch    uint64
	decoder  *Decoder
	times    *lru.Cache[uint64, int64]
	logger   *zap.Logger
}

var _ chain.Source = (*Source)(nil)

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return client, nil
}

// NewSource creates an EVM source.
func NewSource(client LogClient, cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.ChainID == "" {
		return nil, errors.New("evm chain id is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid htlc contract address %q", cfg.Contract)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	decoder, err := NewDecoder(cfg.ChainID)
	if err != nil {
		return nil, err
	}
	times, err := lru.New[uint64, int64](DefaultTimestampCache)
	if err != nil {
		return nil, err
	}

	return &Source{
		client:   client,
		chainID:  cfg.ChainID,
		contract: common.HexToAddress(cfg.Contract),
		batch:    cfg.BatchSize,
		decoder:  decoder,
		times:    times,
		logger:   logger.Named("evm").With(zap.String("chain", cfg.ChainID)),
	}, nil
}

// Chain implements chain.Source.
func (s *Source) Chain() string { return s.chainID }

// Head implements chain.Source.
func (s *Source) Head(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

// Poll implements chain.Source. The cursor height is the last block whose
// logs were all returned.
func (s *Source) Poll(ctx context.Context, cursor domain.Cursor, safeHead uint64) (*chain.Batch, error) {
	batch := &chain.Batch{Next: cursor}
	from := cursor.Height + 1
	if from > safeHead {
		return batch, nil
	}

	to := safeHead
	if to-from+1 > s.batch {
		to = from + s.batch - 1
		batch.More = true
	}

	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.contract},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d, %d]: %w", from, to, err)
	}

	for _, l := range logs {
		if l.Removed {
			continue
		}
		ts, err := s.blockTime(ctx, l.BlockNumber)
		if err != nil {
			return nil, err
		}
		ev, err := s.decoder.Decode(l, ts)
		if err != nil {
			// Malformed logs never decode on retry.
			s.logger.Warn("undecodable log skipped",
				zap.String("tx_hash", l.TxHash.Hex()),
				zap.Uint("log_index", l.Index),
				zap.Error(err))
			continue
		}
		batch.Events = append(batch.Events, ev)
	}
	chain.SortEvents(batch.Events)

	batch.Next = domain.Cursor{ChainID: s.chainID, Height: to}
	return batch, nil
}

// blockTime returns the block timestamp in Unix ms.
func (s *Source) blockTime(ctx context.Context, number uint64) (int64, error) {
	if ts, ok := s.times.Get(number); ok {
		return ts, nil
	}
	header, err := s.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	ts := int64(header.Time) * 1000
	s.times.Add(number, ts)
	return ts, nil
}
