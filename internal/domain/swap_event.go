package domain

// SwapEventType classifies an entry in the per-swap event log.
type SwapEventType string

const (
	SwapEventCreated             SwapEventType = "created"
	SwapEventStatusChanged       SwapEventType = "status_changed"
	SwapEventFilled              SwapEventType = "filled"
	SwapEventCrossChainInitiated SwapEventType = "cross_chain_initiated"
	SwapEventCrossChainConfirmed SwapEventType = "cross_chain_confirmed"
	SwapEventCompleted           SwapEventType = "completed"
	SwapEventRefunded            SwapEventType = "refunded"
	SwapEventFailed              SwapEventType = "failed"
)

// SwapEvent is an append-only log entry recording one applied transition.
// Corresponds to swap_events table in PostgreSQL.
type SwapEvent struct {
	ID         int64             `json:"id"` // BIGSERIAL, assigned by the store
	SwapID     string            `json:"swapId"`
	Type       SwapEventType     `json:"type"`
	FromStatus SwapStatus        `json:"fromStatus,omitempty"`
	ToStatus   SwapStatus        `json:"toStatus"`
	Substatus  string            `json:"substatus,omitempty"`
	ChainID    string            `json:"chainId,omitempty"`
	TxHash     string            `json:"txHash,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  int64             `json:"createdAt"` // Unix ms
}
