package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/storage"
)

// SwapStore implements storage.SwapStore using PostgreSQL.
// Swap rows live in swaps, the log in swap_events; every write runs in one tx.
type SwapStore struct {
	pool *Pool
}

// NewSwapStore creates a new SwapStore.
func NewSwapStore(pool *Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)

const swapColumns = `
	id, order_id, maker, taker,
	making_amount::text, taking_amount::text, making_token, taking_token,
	source_chain, target_chain, secret_hash, secret,
	time_lock, expires_at, source_contract, target_contract,
	source_tx_hash, target_tx_hash, refund_tx_hash,
	status, substatus, error_message, error_code, metadata,
	created_at, updated_at`

// Create inserts a new swap and its creation log entry.
func (s *SwapStore) Create(ctx context.Context, swap *domain.Swap, entry *domain.SwapEvent) error {
	if swap == nil || swap.ID == "" || swap.OrderID == "" {
		return storage.ErrInvalidInput
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		return createSwap(ctx, tx, swap, entry)
	})
}

func createSwap(ctx context.Context, tx pgx.Tx, swap *domain.Swap, entry *domain.SwapEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO swaps (
			id, order_id, maker, taker,
			making_amount, taking_amount, making_token, taking_token,
			source_chain, target_chain, secret_hash, secret,
			time_lock, expires_at, source_contract, target_contract,
			source_tx_hash, target_tx_hash, refund_tx_hash,
			status, substatus, error_message, error_code, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23, $24,
			$25, $26
		)
	`,
		swap.ID, swap.OrderID, swap.Maker, swap.Taker,
		swap.MakingAmount.String(), swap.TakingAmount.String(), swap.MakingToken, swap.TakingToken,
		swap.SourceChain, swap.TargetChain, swap.SecretHash, swap.Secret,
		swap.TimeLock, swap.ExpiresAt, swap.SourceContract, swap.TargetContract,
		swap.SourceTransactionHash, swap.TargetTransactionHash, swap.RefundTransactionHash,
		string(swap.Status), swap.Substatus, swap.ErrorMessage, swap.ErrorCode, swap.Metadata,
		swap.CreatedAt, swap.UpdatedAt,
	)
	if err != nil {
		return storageError("insert swap", err)
	}
	return insertSwapEvent(ctx, tx, swap.ID, entry)
}

// GetByID retrieves a swap by id.
func (s *SwapStore) GetByID(ctx context.Context, id string) (*domain.Swap, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE id = $1`, id)
	swap, err := scanSwap(row)
	if err != nil {
		return nil, storageError("get swap by id", err)
	}
	return swap, nil
}

// GetByOrderID retrieves a swap by order id.
func (s *SwapStore) GetByOrderID(ctx context.Context, orderID string) (*domain.Swap, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE order_id = $1`, orderID)
	swap, err := scanSwap(row)
	if err != nil {
		return nil, storageError("get swap by order id", err)
	}
	return swap, nil
}

// Update replaces the mutable columns of a swap and appends entries.
// Immutable columns (order_id, amounts, secret_hash, time_lock, expires_at,
// created_at) are never written.
func (s *SwapStore) Update(ctx context.Context, swap *domain.Swap, entries ...*domain.SwapEvent) error {
	if swap == nil || swap.ID == "" {
		return storage.ErrInvalidInput
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		return updateSwap(ctx, tx, swap, entries)
	})
}

func updateSwap(ctx context.Context, tx pgx.Tx, swap *domain.Swap, entries []*domain.SwapEvent) error {
	tag, err := tx.Exec(ctx, `
		UPDATE swaps SET
			taker = $2,
			secret = $3,
			source_contract = $4,
			target_contract = $5,
			source_tx_hash = $6,
			target_tx_hash = $7,
			refund_tx_hash = $8,
			status = $9,
			substatus = $10,
			error_message = $11,
			error_code = $12,
			metadata = $13,
			updated_at = $14
		WHERE id = $1
	`,
		swap.ID, swap.Taker, swap.Secret,
		swap.SourceContract, swap.TargetContract,
		swap.SourceTransactionHash, swap.TargetTransactionHash, swap.RefundTransactionHash,
		string(swap.Status), swap.Substatus, swap.ErrorMessage, swap.ErrorCode, swap.Metadata,
		swap.UpdatedAt,
	)
	if err != nil {
		return storageError("update swap", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	for _, entry := range entries {
		if err := insertSwapEvent(ctx, tx, swap.ID, entry); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a swap; swap_events rows cascade.
func (s *SwapStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM swaps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete swap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns one page of swaps matching filter.
func (s *SwapStore) List(ctx context.Context, filter storage.SwapFilter) (*storage.SwapPage, error) {
	f, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	where, args := buildSwapWhere(f)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM swaps`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count swaps: %w", err)
	}

	// SortBy is whitelisted by Normalize.
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM swaps%s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d`,
		swapColumns, where, f.SortBy, dir, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	defer rows.Close()

	swaps, err := scanSwaps(rows)
	if err != nil {
		return nil, err
	}
	if swaps == nil {
		swaps = []*domain.Swap{}
	}

	return &storage.SwapPage{
		Swaps:  swaps,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}, nil
}

// buildSwapWhere renders the filter as a WHERE clause with positional args.
func buildSwapWhere(f storage.SwapFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Maker != "" {
		add("maker = $%d", f.Maker)
	}
	if f.Taker != "" {
		add("taker = $%d", f.Taker)
	}
	if f.SourceChain != "" {
		add("source_chain = $%d", f.SourceChain)
	}
	if f.TargetChain != "" {
		add("target_chain = $%d", f.TargetChain)
	}
	if f.CreatedFrom > 0 {
		add("created_at >= $%d", f.CreatedFrom)
	}
	if f.CreatedTo > 0 {
		add("created_at <= $%d", f.CreatedTo)
	}
	if f.ExpiresBefore > 0 {
		add("expires_at <= $%d AND status IN ('pending', 'active')", f.ExpiresBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CountByStatus returns the number of swaps per status.
func (s *SwapStore) CountByStatus(ctx context.Context) (map[domain.SwapStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM swaps GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count swaps by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SwapStatus]int64, len(domain.AllSwapStatuses))
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.SwapStatus(status)] = n
	}
	return counts, rows.Err()
}

// scanSwap scans a single row into a Swap.
func scanSwap(row pgx.Row) (*domain.Swap, error) {
	var swap domain.Swap
	var makingAmount, takingAmount, status string

	err := row.Scan(
		&swap.ID, &swap.OrderID, &swap.Maker, &swap.Taker,
		&makingAmount, &takingAmount, &swap.MakingToken, &swap.TakingToken,
		&swap.SourceChain, &swap.TargetChain, &swap.SecretHash, &swap.Secret,
		&swap.TimeLock, &swap.ExpiresAt, &swap.SourceContract, &swap.TargetContract,
		&swap.SourceTransactionHash, &swap.TargetTransactionHash, &swap.RefundTransactionHash,
		&status, &swap.Substatus, &swap.ErrorMessage, &swap.ErrorCode, &swap.Metadata,
		&swap.CreatedAt, &swap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	swap.Status = domain.SwapStatus(status)
	if swap.MakingAmount, err = decimal.NewFromString(makingAmount); err != nil {
		return nil, fmt.Errorf("parse making_amount: %w", err)
	}
	if swap.TakingAmount, err = decimal.NewFromString(takingAmount); err != nil {
		return nil, fmt.Errorf("parse taking_amount: %w", err)
	}
	return &swap, nil
}

// scanSwaps scans multiple rows into a slice of Swap.
func scanSwaps(rows pgx.Rows) ([]*domain.Swap, error) {
	var swaps []*domain.Swap
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap: %w", err)
		}
		swaps = append(swaps, swap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swaps: %w", err)
	}
	return swaps, nil
}
