package domain

// EventType is the kind of a normalized on-chain HTLC event.
type EventType string

const (
	EventOrderCreated        EventType = "OrderCreated"
	EventOrderFilled         EventType = "OrderFilled"
	EventSecretRevealed      EventType = "SecretRevealed"
	EventCrossChainInitiated EventType = "CrossChainInitiated"
	EventCrossChainConfirmed EventType = "CrossChainConfirmed"
	EventSwapRefunded        EventType = "SwapRefunded"

	// EventUnknown marks a contract log the watcher could not classify.
	EventUnknown EventType = "Unknown"
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	return string(t)
}

// IsKnown reports whether the type is one the relayer acts on.
func (t EventType) IsKnown() bool {
	switch t {
	case EventOrderCreated, EventOrderFilled, EventSecretRevealed,
		EventCrossChainInitiated, EventCrossChainConfirmed, EventSwapRefunded:
		return true
	}
	return false
}

// ChainEvent is a normalized contract log emitted by a watcher.
// BlockNumber holds the block height on EVM chains and the checkpoint
// sequence number on Sui.
type ChainEvent struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	ChainID         string    `json:"chainId"`
	BlockNumber     uint64    `json:"blockNumber"`
	TransactionHash string    `json:"transactionHash"`
	LogIndex        uint64    `json:"logIndex"`
	Timestamp       int64     `json:"timestamp"` // Unix ms
	ContractAddress string    `json:"contractAddress"`
	Data            EventData `json:"data"`
}

// EventData carries the decoded event fields. Only the fields relevant to
// the event type are populated.
type EventData struct {
	OrderID      string            `json:"orderId"`
	Maker        string            `json:"maker,omitempty"`
	Taker        string            `json:"taker,omitempty"`
	MakingToken  string            `json:"makingToken,omitempty"`
	TakingToken  string            `json:"takingToken,omitempty"`
	MakingAmount string            `json:"makingAmount,omitempty"`
	TakingAmount string            `json:"takingAmount,omitempty"`
	TargetChain  string            `json:"targetChain,omitempty"`
	SecretHash   string            `json:"secretHash,omitempty"`
	Secret       string            `json:"secret,omitempty"`
	TimeLock     int64             `json:"timeLock,omitempty"` // seconds
	Raw          map[string]string `json:"raw,omitempty"`
}

// Cursor is the resumable position of a watcher on one chain.
// Corresponds to chain_cursors table in PostgreSQL.
type Cursor struct {
	ChainID     string `json:"chainId"`
	Height      uint64 `json:"height"`                // last fully processed block/checkpoint
	EventCursor string `json:"eventCursor,omitempty"` // chain-specific paging token
	UpdatedAt   int64  `json:"updatedAt"`             // Unix ms
}

// Processing results recorded in the audit log.
const (
	ResultApplied = "applied"
	ResultSkipped = "skipped"
	ResultIgnored = "ignored"
	ResultFailed  = "failed"
)

// AuditRecord is one processed chain event as stored in the ClickHouse
// chain_event_audit table.
type AuditRecord struct {
	Event       ChainEvent `json:"event"`
	Result      string     `json:"result"`
	Error       string     `json:"error,omitempty"`
	ProcessedAt int64      `json:"processedAt"` // Unix ms
}
