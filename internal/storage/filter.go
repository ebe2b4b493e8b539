package storage

import (
	"fmt"

	"htlc-relayer/internal/domain"
)

// Pagination limits for SwapFilter.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Sort columns accepted by SwapFilter.SortBy.
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByExpiresAt = "expires_at"
	SortByStatus    = "status"
)

// SwapFilter selects swaps for List. Zero values mean "no constraint".
type SwapFilter struct {
	Status      domain.SwapStatus
	Maker       string
	Taker       string
	SourceChain string
	TargetChain string
	CreatedFrom int64 // Unix ms, inclusive
	CreatedTo   int64 // Unix ms, inclusive

	// ExpiresBefore selects swaps with expires_at <= ExpiresBefore (Unix ms)
	// that are still pending or active.
	ExpiresBefore int64

	Limit    int
	Offset   int
	SortBy   string
	SortDesc bool
}

// SwapPage is one page of a List result.
type SwapPage struct {
	Swaps  []*domain.Swap `json:"swaps"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// Normalize validates the filter and fills defaults.
// Returns ErrInvalidInput wrapped with the offending field.
func (f SwapFilter) Normalize() (SwapFilter, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return f, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return f, fmt.Errorf("%w: negative limit or offset", ErrInvalidInput)
	}
	if f.CreatedFrom > 0 && f.CreatedTo > 0 && f.CreatedFrom > f.CreatedTo {
		return f, fmt.Errorf("%w: date range start after end", ErrInvalidInput)
	}
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	switch f.SortBy {
	case "":
		f.SortBy = SortByCreatedAt
		f.SortDesc = true
	case SortByCreatedAt, SortByUpdatedAt, SortByExpiresAt, SortByStatus:
	default:
		return f, fmt.Errorf("%w: unknown sort column %q", ErrInvalidInput, f.SortBy)
	}
	return f, nil
}

// Matches reports whether s satisfies the filter's constraints.
// Used by in-memory backends.
func (f SwapFilter) Matches(s *domain.Swap) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.Maker != "" && s.Maker != f.Maker {
		return false
	}
	if f.Taker != "" && (s.Taker == nil || *s.Taker != f.Taker) {
		return false
	}
	if f.SourceChain != "" && s.SourceChain != f.SourceChain {
		return false
	}
	if f.TargetChain != "" && s.TargetChain != f.TargetChain {
		return false
	}
	if f.CreatedFrom > 0 && s.CreatedAt < f.CreatedFrom {
		return false
	}
	if f.CreatedTo > 0 && s.CreatedAt > f.CreatedTo {
		return false
	}
	if f.ExpiresBefore > 0 && (s.Status.IsTerminal() || s.ExpiresAt > f.ExpiresBefore) {
		return false
	}
	return true
}
