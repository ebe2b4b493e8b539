package domain

// SwapStatus is the lifecycle state of a swap.
type SwapStatus string

const (
	SwapStatusPending   SwapStatus = "pending"
	SwapStatusActive    SwapStatus = "active"
	SwapStatusCompleted SwapStatus = "completed"
	SwapStatusFailed    SwapStatus = "failed"
	SwapStatusRefunded  SwapStatus = "refunded"
)

// AllSwapStatuses lists every status in lifecycle order.
var AllSwapStatuses = []SwapStatus{
	SwapStatusPending,
	SwapStatusActive,
	SwapStatusCompleted,
	SwapStatusFailed,
	SwapStatusRefunded,
}

// String returns the string representation of SwapStatus.
func (s SwapStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s SwapStatus) IsValid() bool {
	switch s {
	case SwapStatusPending, SwapStatusActive, SwapStatusCompleted, SwapStatusFailed, SwapStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s SwapStatus) IsTerminal() bool {
	return s == SwapStatusCompleted || s == SwapStatusFailed || s == SwapStatusRefunded
}

// Substatus values. The first four are ordered progress markers inside
// pending/active; the rest describe how a terminal swap settled.
const (
	SubstatusCreated             = "created"
	SubstatusFilled              = "filled"
	SubstatusCrossChainInitiated = "cross_chain_initiated"
	SubstatusCrossChainConfirmed = "cross_chain_confirmed"

	SubstatusRevealedOnSource = "revealed_on_source"
	SubstatusRevealedOnTarget = "revealed_on_target"
	SubstatusRefunded         = "refunded"
	SubstatusFailed           = "failed"
)

// SubstatusRank returns the progress rank of a substatus, or -1 if it is
// not an ordered progress marker.
func SubstatusRank(substatus string) int {
	switch substatus {
	case SubstatusCreated:
		return 0
	case SubstatusFilled:
		return 1
	case SubstatusCrossChainInitiated:
		return 2
	case SubstatusCrossChainConfirmed:
		return 3
	}
	return -1
}
