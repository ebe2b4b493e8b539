package sui

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"htlc-relayer/internal/chain"
	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/idhash"
)

// Default configuration values.
const (
	DefaultPageSize = 50
	DefaultModule   = "cross_chain_auction"
)

// RPC is the subset of HTTPClient the source uses.
type RPC interface {
	QueryEvents(ctx context.Context, filter MoveModuleFilter, cursor *EventID, limit int) (*EventPage, error)
	GetLatestCheckpointSequenceNumber(ctx context.Context) (uint64, error)
	MultiGetTransactionBlocks(ctx context.Context, digests []string) ([]TransactionBlock, error)
}

var _ RPC = (*HTTPClient)(nil)

// Config configures a Sui Source.
type Config struct {
	ChainID  string
	Package  string // HTLC package id
	Module   string // Move module name, default "cross_chain_auction"
	PageSize int
}

// Source implements chain.Source over suix_queryEvents. The cursor's
// EventCursor holds the last consumed event id as "digest:seq" and is the
// only resume point once set. Height is the checkpoint progress: before the
// first event it marks the configured start, afterwards it is informational.
type Source struct {
	rpc      RPC
	chainID  string
	filter   MoveModuleFilter
	pageSize int
	logger   *zap.Logger
	now      func() time.Time
}

var _ chain.Source = (*Source)(nil)

// NewSource creates a Sui source.
func NewSource(rpc RPC, cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.ChainID == "" {
		return nil, errors.New("sui chain id is required")
	}
	if !strings.HasPrefix(cfg.Package, "0x") {
		return nil, fmt.Errorf("invalid htlc package id %q", cfg.Package)
	}
	if cfg.Module == "" {
		cfg.Module = DefaultModule
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Source{
		rpc:      rpc,
		chainID:  cfg.ChainID,
		filter:   MoveModuleFilter{Package: cfg.Package, Module: cfg.Module},
		pageSize: cfg.PageSize,
		logger:   logger.Named("sui").With(zap.String("chain", cfg.ChainID)),
		now:      time.Now,
	}, nil
}

// Chain implements chain.Source.
func (s *Source) Chain() string { return s.chainID }

// Head implements chain.Source.
func (s *Source) Head(ctx context.Context) (uint64, error) {
	return s.rpc.GetLatestCheckpointSequenceNumber(ctx)
}

// Poll implements chain.Source. Events whose checkpoint is beyond safeHead
// are held back and fetched again on a later poll.
func (s *Source) Poll(ctx context.Context, cursor domain.Cursor, safeHead uint64) (*chain.Batch, error) {
	batch := &chain.Batch{Next: cursor}

	var after *EventID
	if cursor.EventCursor != "" {
		id, err := parseEventCursor(cursor.EventCursor)
		if err != nil {
			return nil, err
		}
		after = &id
	}

	page, err := s.rpc.QueryEvents(ctx, s.filter, after, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	if len(page.Data) == 0 {
		// Without an event cursor Height is the start filter; raising it
		// would drop events the node indexes late.
		if after != nil && safeHead > batch.Next.Height {
			batch.Next.Height = safeHead
		}
		return batch, nil
	}

	checkpoints, err := s.checkpoints(ctx, page.Data)
	if err != nil {
		return nil, err
	}

	for _, e := range page.Data {
		cp, ok := checkpoints[e.ID.TxDigest]
		if !ok || cp > safeHead {
			// Not final enough yet; resume here next time.
			return batch, nil
		}

		batch.Next.EventCursor = formatEventCursor(e.ID)
		if cp > batch.Next.Height {
			batch.Next.Height = cp
		}

		// The event cursor already excludes consumed events. Only a fresh
		// cursor filters by the configured start checkpoint.
		if after == nil && cursor.Height > 0 && cp <= cursor.Height {
			continue
		}

		ev, err := s.convert(e, cp)
		if err != nil {
			s.logger.Warn("undecodable event skipped",
				zap.String("tx_hash", e.ID.TxDigest),
				zap.String("event_seq", e.ID.EventSeq),
				zap.Error(err))
			continue
		}
		batch.Events = append(batch.Events, ev)
	}

	batch.More = page.HasNextPage
	return batch, nil
}

// checkpoints resolves the checkpoint of every transaction in events.
func (s *Source) checkpoints(ctx context.Context, events []Event) (map[string]uint64, error) {
	seen := make(map[string]bool, len(events))
	var digests []string
	for _, e := range events {
		if !seen[e.ID.TxDigest] {
			seen[e.ID.TxDigest] = true
			digests = append(digests, e.ID.TxDigest)
		}
	}

	blocks, err := s.rpc.MultiGetTransactionBlocks(ctx, digests)
	if err != nil {
		return nil, fmt.Errorf("get transaction blocks: %w", err)
	}

	out := make(map[string]uint64, len(blocks))
	for _, b := range blocks {
		if b.Checkpoint == "" {
			continue
		}
		cp, err := strconv.ParseUint(b.Checkpoint, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint of %s: %w", b.Digest, err)
		}
		out[b.Digest] = cp
	}
	return out, nil
}

func (s *Source) convert(e Event, checkpoint uint64) (*domain.ChainEvent, error) {
	if err := ValidateDigest(e.ID.TxDigest); err != nil {
		return nil, err
	}
	seq, err := strconv.ParseUint(e.ID.EventSeq, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse event seq %q: %w", e.ID.EventSeq, err)
	}

	ev := &domain.ChainEvent{
		ID:              idhash.ComputeEventID(s.chainID, e.ID.TxDigest, seq),
		Type:            eventType(e.Type),
		ChainID:         s.chainID,
		BlockNumber:     checkpoint,
		TransactionHash: e.ID.TxDigest,
		LogIndex:        seq,
		ContractAddress: e.PackageID,
	}
	if e.TimestampMs != "" {
		if ts, err := strconv.ParseInt(e.TimestampMs, 10, 64); err == nil {
			ev.Timestamp = ts
		}
	}

	p := e.ParsedJSON
	ev.Data = domain.EventData{
		OrderID:      field(p, true, "order_id", "orderId"),
		Maker:        field(p, false, "maker"),
		Taker:        field(p, false, "taker", "resolver"),
		MakingToken:  field(p, false, "making_token", "makingToken"),
		TakingToken:  field(p, false, "taking_token", "takingToken"),
		MakingAmount: field(p, false, "making_amount", "makingAmount", "amount"),
		TakingAmount: field(p, false, "taking_amount", "takingAmount"),
		TargetChain:  field(p, false, "target_chain", "targetChain"),
		SecretHash:   field(p, true, "secret_hash", "secretHash", "hashlock"),
		Secret:       field(p, false, "secret", "preimage"),
	}
	if tl := field(p, false, "time_lock", "timeLock", "timelock"); tl != "" {
		deadline, err := strconv.ParseInt(tl, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse time lock %q: %w", tl, err)
		}
		ev.Data.TimeLock = s.timeLock(deadline, ev.Timestamp)
	}
	if ev.Type == domain.EventUnknown {
		ev.Data.Raw = map[string]string{"type": e.Type}
	}
	return ev, nil
}

// timeLock turns a Move Clock deadline (unix ms) into the seconds left at
// the time of the event. An already passed deadline yields 1.
func (s *Source) timeLock(deadlineMs, eventMs int64) int64 {
	if eventMs <= 0 {
		eventMs = s.now().UnixMilli()
	}
	secs := (deadlineMs - eventMs) / 1000
	if secs < 1 {
		return 1
	}
	return secs
}

// ValidateDigest checks that a transaction digest is base58 of 32 bytes.
func ValidateDigest(digest string) error {
	b, err := base58.Decode(digest)
	if err != nil {
		return fmt.Errorf("invalid transaction digest %q: %w", digest, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid transaction digest %q: %d bytes", digest, len(b))
	}
	return nil
}

// eventType maps "0xpkg::module::Name<T>" to a domain event type.
func eventType(moveType string) domain.EventType {
	name := moveType
	if i := strings.IndexByte(name, '<'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	t := domain.EventType(name)
	if !t.IsKnown() {
		return domain.EventUnknown
	}
	return t
}

// field returns the first present key as a string. vector<u8> values are
// rendered as 0x-hex when asHex is set and as UTF-8 text otherwise.
func field(m map[string]interface{}, asHex bool, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			return x
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(x)
		case []interface{}:
			b := make([]byte, 0, len(x))
			for _, n := range x {
				f, ok := n.(float64)
				if !ok {
					return ""
				}
				b = append(b, byte(f))
			}
			if asHex {
				return "0x" + hex.EncodeToString(b)
			}
			return string(b)
		}
	}
	return ""
}

func formatEventCursor(id EventID) string {
	return id.TxDigest + ":" + id.EventSeq
}

func parseEventCursor(s string) (EventID, error) {
	digest, seq, ok := strings.Cut(s, ":")
	if !ok || digest == "" || seq == "" {
		return EventID{}, fmt.Errorf("malformed sui event cursor %q", s)
	}
	return EventID{TxDigest: digest, EventSeq: seq}, nil
}
