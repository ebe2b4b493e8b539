// Package swap implements the swap coordinator: the only writer of swap
// state. It validates input, serializes work per order id, drives the
// lifecycle state machine and emits lifecycle notifications.
package swap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/keylock"
	"htlc-relayer/internal/notify"
	"htlc-relayer/internal/observability"
	"htlc-relayer/internal/storage"
)

// MaxTimeLock is the longest accepted time lock in seconds (ten years).
const MaxTimeLock = 10 * 365 * 24 * 60 * 60

// Coordinator owns the swap lifecycle.
type Coordinator struct {
	store    storage.SwapStore
	notifier notify.Notifier
	hash     HashAlgorithm
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
	locks    *keylock.Map
}

// Options contains configuration for creating a Coordinator.
type Options struct {
	Store    storage.SwapStore
	Notifier notify.Notifier
	Hash     HashAlgorithm
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

// New creates a Coordinator. Store is required.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("swap store is required")
	}

	hash := opts.Hash
	if hash == "" {
		hash = HashSHA3
	}
	if _, err := ParseHashAlgorithm(string(hash)); err != nil {
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	return &Coordinator{
		store:    opts.Store,
		notifier: notifier,
		hash:     hash,
		logger:   logger.Named("coordinator"),
		now:      now,
		newID:    newID,
		locks:    keylock.New(),
	}, nil
}

// Hash returns the configured commitment hash.
func (c *Coordinator) Hash() HashAlgorithm {
	return c.hash
}

// CreateParams describes a new swap.
type CreateParams struct {
	ID                    string // optional, generated when empty
	OrderID               string
	Maker                 string
	Taker                 string
	MakingAmount          string
	TakingAmount          string
	MakingToken           string
	TakingToken           string
	SourceChain           string
	TargetChain           string
	SecretHash            string
	TimeLock              int64 // seconds
	SourceContract        string
	TargetContract        string
	SourceTransactionHash string
	Metadata              map[string]string

	// ChainID and TxHash identify the creating event in the log.
	ChainID string
	TxHash  string
}

// StatusUpdate is a forward-only status change with the fields it sets.
// Empty fields leave the stored value unchanged.
type StatusUpdate struct {
	Status                domain.SwapStatus
	Substatus             string
	Taker                 string
	SourceTransactionHash string
	TargetTransactionHash string
	Secret                string
	RefundTransactionHash string
	ErrorMessage          string
	ErrorCode             string
	Metadata              map[string]string

	ChainID string
	TxHash  string
}

// Reveal is an observed secret disclosure.
type Reveal struct {
	OrderID string
	Secret  string
	TxHash  string
	ChainID string
}

// CrossChainStep is an observed lock or confirmation on the counter chain.
type CrossChainStep struct {
	OrderID     string
	TargetChain string // optional, checked against the swap when set
	SecretHash  string // optional, checked against the swap when set
	TxHash      string
	ChainID     string
}

// Stats holds per-status counts.
type Stats struct {
	Total    int64                       `json:"total"`
	ByStatus map[domain.SwapStatus]int64 `json:"byStatus"`
}

// CreateSwap validates params and persists a pending swap.
func (c *Coordinator) CreateSwap(ctx context.Context, p CreateParams) (_ *domain.Swap, err error) {
	defer c.track("create", p.OrderID, &err)

	making, taking, secretHash, err := c.validateCreate(p)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(p.OrderID)
	defer unlock()

	nowMs := c.now().UnixMilli()
	id := p.ID
	if id == "" {
		id = c.newID()
	}

	s := &domain.Swap{
		ID:                    id,
		OrderID:               p.OrderID,
		Maker:                 p.Maker,
		Taker:                 domain.StringPtr(p.Taker),
		MakingAmount:          making,
		TakingAmount:          taking,
		MakingToken:           p.MakingToken,
		TakingToken:           p.TakingToken,
		SourceChain:           p.SourceChain,
		TargetChain:           p.TargetChain,
		SecretHash:            secretHash,
		TimeLock:              p.TimeLock,
		ExpiresAt:             nowMs + p.TimeLock*1000,
		SourceContract:        p.SourceContract,
		TargetContract:        p.TargetContract,
		SourceTransactionHash: domain.StringPtr(p.SourceTransactionHash),
		Status:                domain.SwapStatusPending,
		Substatus:             domain.SubstatusCreated,
		Metadata:              copyMetadata(p.Metadata),
		CreatedAt:             nowMs,
		UpdatedAt:             nowMs,
	}

	entry := &domain.SwapEvent{
		SwapID:    id,
		Type:      domain.SwapEventCreated,
		ToStatus:  domain.SwapStatusPending,
		Substatus: domain.SubstatusCreated,
		ChainID:   p.ChainID,
		TxHash:    p.TxHash,
		CreatedAt: nowMs,
	}

	start := time.Now()
	err = c.store.Create(ctx, s, entry)
	observability.RecordDBQuery("swaps", "create", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, c.storeErr("create", p.OrderID, err)
	}

	observability.RecordTransition("none", string(domain.SwapStatusPending))
	c.logger.Info("swap created",
		zap.String("order_id", s.OrderID),
		zap.String("swap_id", s.ID),
		zap.String("source_chain", s.SourceChain),
		zap.String("target_chain", s.TargetChain))
	c.emit(ctx, notify.KindSwapCreated, s)

	return s.Clone(), nil
}

func (c *Coordinator) validateCreate(p CreateParams) (decimal.Decimal, decimal.Decimal, string, error) {
	var zero decimal.Decimal

	required := []struct{ field, value string }{
		{"orderId", p.OrderID},
		{"maker", p.Maker},
		{"makingAmount", p.MakingAmount},
		{"takingAmount", p.TakingAmount},
		{"makingToken", p.MakingToken},
		{"takingToken", p.TakingToken},
		{"sourceChain", p.SourceChain},
		{"targetChain", p.TargetChain},
		{"secretHash", p.SecretHash},
	}
	for _, r := range required {
		if r.value == "" {
			return zero, zero, "", invalid(r.field, "required")
		}
	}

	making, err := parseAmount("makingAmount", p.MakingAmount)
	if err != nil {
		return zero, zero, "", err
	}
	taking, err := parseAmount("takingAmount", p.TakingAmount)
	if err != nil {
		return zero, zero, "", err
	}

	if p.SourceChain == p.TargetChain {
		return zero, zero, "", invalid("targetChain", "must differ from sourceChain")
	}
	if p.TimeLock <= 0 {
		return zero, zero, "", invalid("timeLock", "must be positive")
	}
	if p.TimeLock > MaxTimeLock {
		return zero, zero, "", invalid("timeLock", fmt.Sprintf("must not exceed %d seconds", int64(MaxTimeLock)))
	}

	secretHash, err := NormalizeSecretHash(p.SecretHash)
	if err != nil {
		return zero, zero, "", invalid("secretHash", err.Error())
	}

	return making, taking, secretHash, nil
}

func parseAmount(field, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, invalid(field, "not a decimal number")
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, invalid(field, "must be positive")
	}
	return d, nil
}

// UpdateSwapStatus applies a forward-only status change.
// Completed and refunded delegate to CompleteSwap and RefundSwap so the
// secret check and refund bookkeeping cannot be bypassed.
func (c *Coordinator) UpdateSwapStatus(ctx context.Context, orderID string, u StatusUpdate) (_ *domain.Swap, err error) {
	if orderID == "" {
		return nil, c.reject("update", orderID, invalid("orderId", "required"))
	}
	if !u.Status.IsValid() {
		return nil, c.reject("update", orderID, invalid("status", fmt.Sprintf("unknown status %q", u.Status)))
	}
	if u.Substatus != "" && domain.SubstatusRank(u.Substatus) < 0 {
		return nil, c.reject("update", orderID, invalid("substatus", fmt.Sprintf("unknown progress marker %q", u.Substatus)))
	}

	switch u.Status {
	case domain.SwapStatusCompleted:
		if u.Secret == "" {
			return nil, c.reject("update", orderID, invalid("secret", "required to complete a swap"))
		}
		txHash := u.TargetTransactionHash
		if txHash == "" {
			txHash = u.TxHash
		}
		return c.CompleteSwap(ctx, Reveal{OrderID: orderID, Secret: u.Secret, TxHash: txHash, ChainID: u.ChainID})
	case domain.SwapStatusRefunded:
		txHash := u.RefundTransactionHash
		if txHash == "" {
			txHash = u.TxHash
		}
		return c.RefundSwap(ctx, orderID, txHash, u.ChainID)
	}

	defer c.track("update", orderID, &err)

	unlock := c.locks.Lock(orderID)
	defer unlock()

	cur, err := c.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if cur.Status.IsTerminal() {
		return nil, &TransitionError{OrderID: orderID, From: cur.Status, To: u.Status}
	}

	next := cur.Clone()
	mergeUpdate(next, u)

	entry := &domain.SwapEvent{
		Type:       domain.SwapEventStatusChanged,
		FromStatus: cur.Status,
		ToStatus:   u.Status,
		ChainID:    u.ChainID,
		TxHash:     u.TxHash,
	}

	var kind notify.Kind
	switch u.Status {
	case domain.SwapStatusPending:
		if cur.Status != domain.SwapStatusPending {
			return nil, &TransitionError{OrderID: orderID, From: cur.Status, To: u.Status}
		}
		next.Substatus = maxSubstatus(cur.Substatus, u.Substatus)
	case domain.SwapStatusActive:
		target := u.Substatus
		if target == "" {
			target = domain.SubstatusFilled
		}
		next.Status = domain.SwapStatusActive
		next.Substatus = maxSubstatus(cur.Substatus, target)
		if cur.Status == domain.SwapStatusPending {
			entry.Type = domain.SwapEventFilled
		}
	case domain.SwapStatusFailed:
		next.Status = domain.SwapStatusFailed
		next.Substatus = domain.SubstatusFailed
		next.ErrorMessage = domain.StringPtr(u.ErrorMessage)
		next.ErrorCode = domain.StringPtr(u.ErrorCode)
		entry.Type = domain.SwapEventFailed
		if u.ErrorCode != "" {
			entry.Data = map[string]string{"errorCode": u.ErrorCode}
		}
		kind = notify.KindSwapFailed
	}
	entry.Substatus = next.Substatus

	if reflect.DeepEqual(cur, next) {
		return cur, nil
	}

	if err := c.commit(ctx, "update", next, entry); err != nil {
		return nil, err
	}

	c.logTransition(cur, next, u.TxHash)
	if kind != "" {
		c.emit(ctx, kind, next)
	}
	return next.Clone(), nil
}

// FailSwap marks a non-terminal swap failed.
func (c *Coordinator) FailSwap(ctx context.Context, orderID, code, message string) (*domain.Swap, error) {
	return c.UpdateSwapStatus(ctx, orderID, StatusUpdate{
		Status:       domain.SwapStatusFailed,
		ErrorCode:    code,
		ErrorMessage: message,
	})
}

// CompleteSwap verifies the revealed secret and completes the swap.
// A mismatching secret returns ErrInvalidSecret and writes nothing.
// Completing a pending swap records the pass through active.
func (c *Coordinator) CompleteSwap(ctx context.Context, r Reveal) (_ *domain.Swap, err error) {
	defer c.track("complete", r.OrderID, &err)

	if r.OrderID == "" {
		return nil, invalid("orderId", "required")
	}
	if r.Secret == "" {
		return nil, invalid("secret", "required")
	}

	unlock := c.locks.Lock(r.OrderID)
	defer unlock()

	cur, err := c.load(ctx, r.OrderID)
	if err != nil {
		return nil, err
	}

	if cur.Status == domain.SwapStatusCompleted && cur.Secret != nil && bytes.Equal(SecretBytes(*cur.Secret), SecretBytes(r.Secret)) {
		return cur, nil
	}
	if cur.Status.IsTerminal() {
		return nil, &TransitionError{OrderID: r.OrderID, From: cur.Status, To: domain.SwapStatusCompleted}
	}
	if !c.hash.Verify(r.Secret, cur.SecretHash) {
		return nil, fmt.Errorf("%w: order %s", ErrInvalidSecret, r.OrderID)
	}

	next := cur.Clone()
	next.Secret = &r.Secret
	next.Status = domain.SwapStatusCompleted
	if r.ChainID != "" && r.ChainID == cur.SourceChain {
		next.Substatus = domain.SubstatusRevealedOnSource
	} else {
		next.Substatus = domain.SubstatusRevealedOnTarget
	}
	if next.TargetTransactionHash == nil {
		next.TargetTransactionHash = domain.StringPtr(r.TxHash)
	}
	if r.TxHash != "" || r.ChainID != "" {
		if next.Metadata == nil {
			next.Metadata = make(map[string]string, 2)
		}
		if r.TxHash != "" {
			next.Metadata["revealTransactionHash"] = r.TxHash
		}
		if r.ChainID != "" {
			next.Metadata["revealChain"] = r.ChainID
		}
	}

	var entries []*domain.SwapEvent
	from := cur.Status
	if from == domain.SwapStatusPending {
		entries = append(entries, &domain.SwapEvent{
			Type:       domain.SwapEventStatusChanged,
			FromStatus: domain.SwapStatusPending,
			ToStatus:   domain.SwapStatusActive,
			Substatus:  maxSubstatus(cur.Substatus, domain.SubstatusFilled),
			ChainID:    r.ChainID,
			TxHash:     r.TxHash,
		})
		from = domain.SwapStatusActive
	}
	entries = append(entries, &domain.SwapEvent{
		Type:       domain.SwapEventCompleted,
		FromStatus: from,
		ToStatus:   domain.SwapStatusCompleted,
		Substatus:  next.Substatus,
		ChainID:    r.ChainID,
		TxHash:     r.TxHash,
	})

	if err := c.commit(ctx, "complete", next, entries...); err != nil {
		return nil, err
	}

	c.logTransition(cur, next, r.TxHash)
	c.emit(ctx, notify.KindSwapCompleted, next)
	return next.Clone(), nil
}

// InitiateCrossChainSwap records that the counter-chain leg was locked.
func (c *Coordinator) InitiateCrossChainSwap(ctx context.Context, step CrossChainStep) (*domain.Swap, error) {
	return c.advance(ctx, "initiate", step, domain.SubstatusCrossChainInitiated, domain.SwapEventCrossChainInitiated)
}

// ConfirmCrossChainSwap records that the counter-chain lock was confirmed.
func (c *Coordinator) ConfirmCrossChainSwap(ctx context.Context, step CrossChainStep) (*domain.Swap, error) {
	return c.advance(ctx, "confirm", step, domain.SubstatusCrossChainConfirmed, domain.SwapEventCrossChainConfirmed)
}

// advance moves the substatus of a live swap forward to target. It is a
// no-op on terminal swaps and on swaps already at or past target.
func (c *Coordinator) advance(ctx context.Context, op string, step CrossChainStep, target string, typ domain.SwapEventType) (_ *domain.Swap, err error) {
	defer c.track(op, step.OrderID, &err)

	if step.OrderID == "" {
		return nil, invalid("orderId", "required")
	}

	unlock := c.locks.Lock(step.OrderID)
	defer unlock()

	cur, err := c.load(ctx, step.OrderID)
	if err != nil {
		return nil, err
	}
	if cur.Status.IsTerminal() || domain.SubstatusRank(cur.Substatus) >= domain.SubstatusRank(target) {
		return cur, nil
	}

	if step.SecretHash != "" {
		h, err := NormalizeSecretHash(step.SecretHash)
		if err != nil {
			return nil, invalid("secretHash", err.Error())
		}
		if h != cur.SecretHash {
			return nil, invalid("secretHash", "does not match swap commitment")
		}
	}
	if step.TargetChain != "" && step.TargetChain != cur.TargetChain {
		return nil, invalid("targetChain", fmt.Sprintf("swap targets %s", cur.TargetChain))
	}

	next := cur.Clone()
	next.Status = domain.SwapStatusActive
	next.Substatus = target
	if typ == domain.SwapEventCrossChainConfirmed && next.TargetTransactionHash == nil {
		next.TargetTransactionHash = domain.StringPtr(step.TxHash)
	}

	entry := &domain.SwapEvent{
		Type:       typ,
		FromStatus: cur.Status,
		ToStatus:   domain.SwapStatusActive,
		Substatus:  target,
		ChainID:    step.ChainID,
		TxHash:     step.TxHash,
	}
	if err := c.commit(ctx, op, next, entry); err != nil {
		return nil, err
	}

	c.logTransition(cur, next, step.TxHash)
	return next.Clone(), nil
}

// RefundSwap marks a live swap refunded. The refund event is the proof of
// expiry; wall-clock time is not consulted.
func (c *Coordinator) RefundSwap(ctx context.Context, orderID, txHash, chainID string) (_ *domain.Swap, err error) {
	defer c.track("refund", orderID, &err)

	if orderID == "" {
		return nil, invalid("orderId", "required")
	}
	if txHash == "" {
		return nil, invalid("refundTransactionHash", "required")
	}

	unlock := c.locks.Lock(orderID)
	defer unlock()

	cur, err := c.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if cur.Status == domain.SwapStatusRefunded && cur.RefundTransactionHash != nil && *cur.RefundTransactionHash == txHash {
		return cur, nil
	}
	if cur.Status.IsTerminal() {
		return nil, &TransitionError{OrderID: orderID, From: cur.Status, To: domain.SwapStatusRefunded}
	}

	next := cur.Clone()
	next.Status = domain.SwapStatusRefunded
	next.Substatus = domain.SubstatusRefunded
	next.RefundTransactionHash = &txHash

	entry := &domain.SwapEvent{
		Type:       domain.SwapEventRefunded,
		FromStatus: cur.Status,
		ToStatus:   domain.SwapStatusRefunded,
		Substatus:  domain.SubstatusRefunded,
		ChainID:    chainID,
		TxHash:     txHash,
	}
	if err := c.commit(ctx, "refund", next, entry); err != nil {
		return nil, err
	}

	c.logTransition(cur, next, txHash)
	c.emit(ctx, notify.KindSwapRefunded, next)
	return next.Clone(), nil
}

// GetSwap returns a swap by id.
func (c *Coordinator) GetSwap(ctx context.Context, id string) (*domain.Swap, error) {
	s, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, c.storeErr("get", id, err)
	}
	return s, nil
}

// GetSwapByOrderID returns a swap by order id.
func (c *Coordinator) GetSwapByOrderID(ctx context.Context, orderID string) (*domain.Swap, error) {
	return c.load(ctx, orderID)
}

// ListSwaps returns one page of swaps matching filter.
func (c *Coordinator) ListSwaps(ctx context.Context, filter storage.SwapFilter) (*storage.SwapPage, error) {
	f, err := filter.Normalize()
	if err != nil {
		return nil, invalid("filter", err.Error())
	}

	start := time.Now()
	page, err := c.store.List(ctx, f)
	observability.RecordDBQuery("swaps", "list", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, c.storeErr("list", "", err)
	}
	return page, nil
}

// SwapEvents returns the event log of a swap.
func (c *Coordinator) SwapEvents(ctx context.Context, id string) ([]*domain.SwapEvent, error) {
	events, err := c.store.ListEvents(ctx, id)
	if err != nil {
		return nil, c.storeErr("events", id, err)
	}
	return events, nil
}

// DeleteSwap removes a swap and its log. Administrative only.
func (c *Coordinator) DeleteSwap(ctx context.Context, id string) error {
	s, err := c.GetSwap(ctx, id)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(s.OrderID)
	defer unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		return c.storeErr("delete", id, err)
	}
	c.logger.Warn("swap deleted", zap.String("order_id", s.OrderID), zap.String("swap_id", id))
	return nil
}

// GetStats returns per-status counts. Every status is present.
func (c *Coordinator) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, c.storeErr("stats", "", err)
	}

	stats := &Stats{ByStatus: make(map[domain.SwapStatus]int64, len(domain.AllSwapStatuses))}
	for _, st := range domain.AllSwapStatuses {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}
	return stats, nil
}

// ExpiredSwaps lists pending or active swaps whose timelock passed at now,
// oldest expiry first. They are reported, never refunded automatically.
func (c *Coordinator) ExpiredSwaps(ctx context.Context, now time.Time, limit int) (*storage.SwapPage, error) {
	return c.ListSwaps(ctx, storage.SwapFilter{
		ExpiresBefore: now.UnixMilli(),
		Limit:         limit,
		SortBy:        storage.SortByExpiresAt,
	})
}

func (c *Coordinator) load(ctx context.Context, orderID string) (*domain.Swap, error) {
	start := time.Now()
	s, err := c.store.GetByOrderID(ctx, orderID)
	if !errors.Is(err, storage.ErrNotFound) {
		observability.RecordDBQuery("swaps", "get", time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, c.storeErr("get", orderID, err)
	}
	return s, nil
}

func (c *Coordinator) commit(ctx context.Context, op string, next *domain.Swap, entries ...*domain.SwapEvent) error {
	nowMs := c.now().UnixMilli()
	next.UpdatedAt = nowMs
	for _, e := range entries {
		e.SwapID = next.ID
		e.CreatedAt = nowMs
	}

	start := time.Now()
	err := c.store.Update(ctx, next, entries...)
	observability.RecordDBQuery("swaps", op, time.Since(start).Seconds(), err)
	if err != nil {
		return c.storeErr(op, next.OrderID, err)
	}

	for _, e := range entries {
		if e.FromStatus != e.ToStatus {
			observability.RecordTransition(string(e.FromStatus), string(e.ToStatus))
		}
	}
	return nil
}

func (c *Coordinator) storeErr(op, key string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case errors.Is(err, storage.ErrDuplicateKey):
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, key)
	case errors.Is(err, storage.ErrInvalidInput):
		return invalid("filter", err.Error())
	default:
		return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
	}
}

// track records a rejected operation. Used with a named error result.
func (c *Coordinator) track(op, orderID string, errp *error) {
	if *errp != nil {
		c.reject(op, orderID, *errp)
	}
}

func (c *Coordinator) reject(op, orderID string, err error) error {
	observability.RecordRejection(op, reason(err))
	if errors.Is(err, ErrStore) {
		c.logger.Error("swap operation failed", zap.String("op", op), zap.String("order_id", orderID), zap.Error(err))
	} else {
		c.logger.Debug("swap operation rejected", zap.String("op", op), zap.String("order_id", orderID), zap.Error(err))
	}
	return err
}

func (c *Coordinator) logTransition(cur, next *domain.Swap, txHash string) {
	c.logger.Info("swap updated",
		zap.String("order_id", next.OrderID),
		zap.String("from", string(cur.Status)),
		zap.String("status", string(next.Status)),
		zap.String("substatus", next.Substatus),
		zap.String("tx_hash", txHash))
}

func (c *Coordinator) emit(ctx context.Context, kind notify.Kind, s *domain.Swap) {
	c.notifier.Notify(ctx, notify.Notification{
		Kind:      kind,
		Swap:      s.Clone(),
		Timestamp: c.now().UnixMilli(),
	})
}

func mergeUpdate(s *domain.Swap, u StatusUpdate) {
	if u.Taker != "" {
		s.Taker = &u.Taker
	}
	if u.SourceTransactionHash != "" {
		s.SourceTransactionHash = &u.SourceTransactionHash
	}
	if u.TargetTransactionHash != "" {
		s.TargetTransactionHash = &u.TargetTransactionHash
	}
	if len(u.Metadata) > 0 {
		if s.Metadata == nil {
			s.Metadata = make(map[string]string, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			s.Metadata[k] = v
		}
	}
}

// maxSubstatus returns whichever progress marker ranks higher.
func maxSubstatus(cur, want string) string {
	if want == "" || domain.SubstatusRank(want) <= domain.SubstatusRank(cur) {
		return cur
	}
	return want
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
