package domain

import "github.com/shopspring/decimal"

// Swap is the unit of coordination: one logical cross-chain swap built from
// events observed on both legs.
// Corresponds to swaps table in PostgreSQL.
type Swap struct {
	ID      string `json:"id"`      // server-generated UUID
	OrderID string `json:"orderId"` // business key, unique

	Maker string  `json:"maker"`
	Taker *string `json:"taker,omitempty"` // nil until filled

	MakingAmount decimal.Decimal `json:"makingAmount"`
	TakingAmount decimal.Decimal `json:"takingAmount"`
	MakingToken  string          `json:"makingToken"`
	TakingToken  string          `json:"takingToken"`

	SourceChain string `json:"sourceChain"`
	TargetChain string `json:"targetChain"`

	SecretHash string  `json:"secretHash"`       // 0x-prefixed 32-byte commitment
	Secret     *string `json:"secret,omitempty"` // nil until revealed

	TimeLock  int64 `json:"timeLock"`  // seconds
	ExpiresAt int64 `json:"expiresAt"` // CreatedAt + TimeLock*1000 (ms)

	SourceContract        string  `json:"sourceContract,omitempty"`
	TargetContract        string  `json:"targetContract,omitempty"`
	SourceTransactionHash *string `json:"sourceTransactionHash,omitempty"`
	TargetTransactionHash *string `json:"targetTransactionHash,omitempty"`
	RefundTransactionHash *string `json:"refundTransactionHash,omitempty"`

	Status    SwapStatus `json:"status"`
	Substatus string     `json:"substatus"`

	ErrorMessage *string `json:"errorMessage,omitempty"`
	ErrorCode    *string `json:"errorCode,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt int64 `json:"createdAt"` // Unix ms
	UpdatedAt int64 `json:"updatedAt"` // Unix ms
}

// Clone returns a deep copy so stores and callers never share pointers.
func (s *Swap) Clone() *Swap {
	if s == nil {
		return nil
	}
	c := *s
	c.Taker = cloneString(s.Taker)
	c.Secret = cloneString(s.Secret)
	c.SourceTransactionHash = cloneString(s.SourceTransactionHash)
	c.TargetTransactionHash = cloneString(s.TargetTransactionHash)
	c.RefundTransactionHash = cloneString(s.RefundTransactionHash)
	c.ErrorMessage = cloneString(s.ErrorMessage)
	c.ErrorCode = cloneString(s.ErrorCode)
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// IsExpired reports whether the timelock has passed at nowMs.
func (s *Swap) IsExpired(nowMs int64) bool {
	return nowMs >= s.ExpiresAt
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns a pointer to v, or nil for an empty string.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
