package inventory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Committer turns approved plans into durable stock decrements.
// Every commit call is one ledger transaction of conditional writes.
// 承認済みの計画を確定する（1回の呼び出しが1トランザクション）
type Committer struct {
	ledger    TxBeginner
	publisher EventPublisher
	metrics   *Metrics
	logger    *zap.Logger
}

// NewCommitter creates a new reservation committer
// 新しい予約確定処理を作成
func NewCommitter(ledger TxBeginner, publisher EventPublisher, metrics *Metrics, logger *zap.Logger) *Committer {
	return &Committer{
		ledger:    ledger,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Commit decrements tier stock for every reservation or for none of them.
// A reservation whose batch no longer holds enough stock aborts the whole call
// with a ConcurrencyConflictError; the caller must re-plan.
// すべての予約を確定するか、何も確定しない（競合時は再計画が必要）
func (c *Committer) Commit(ctx context.Context, reservations []Reservation, tier Tier) error {
	if err := ValidateSellableTier(tier); err != nil {
		return err
	}
	if err := ValidateReservations(reservations, tier); err != nil {
		return err
	}

	normalized := make([]Reservation, len(reservations))
	for i, r := range reservations {
		r.Tier = tier
		normalized[i] = r
	}

	return c.commit(ctx, normalized)
}

// CommitPick commits both tiers of a smart pick in a single transaction
// スマート予約の両階層を1トランザクションで確定
func (c *Committer) CommitPick(ctx context.Context, pick *SmartPick) error {
	if pick == nil {
		return NewValidationError("pick", "予約結果が指定されていません", "nil")
	}

	var all []Reservation
	for _, tier := range []Tier{TierStore, TierShelf} {
		list := pick.ByTier(tier)
		if len(list) == 0 {
			continue
		}
		if err := ValidateReservations(list, tier); err != nil {
			return err
		}
		for _, r := range list {
			r.Tier = tier
			all = append(all, r)
		}
	}
	if len(all) == 0 {
		return NewValidationError("reservations", "予約が空です", "0")
	}

	return c.commit(ctx, all)
}

func (c *Committer) commit(ctx context.Context, reservations []Reservation) (err error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.observeCommit(outcome, time.Since(start))
	}()

	reference := NewReference("COMMIT")
	user := userFromContext(ctx)

	tx, err := c.ledger.Begin(ctx)
	if err != nil {
		return NewStorageError("begin", "トランザクション開始に失敗しました", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, ErrTxDone) {
			c.logger.Error("ロールバックに失敗しました", zap.String("reference", reference), zap.Error(rbErr))
		}
	}()

	for _, r := range reservations {
		ok, decErr := tx.ConditionalDecrement(ctx, r.ItemCode, r.BatchID, r.Tier, r.Quantity)
		if decErr != nil {
			return NewStorageError("conditional_decrement", "在庫減算に失敗しました", decErr)
		}
		if !ok {
			outcome = "conflict"
			c.logger.Warn("予約確定で競合が発生しました",
				zap.String("item_code", r.ItemCode),
				zap.Int64("batch_id", r.BatchID),
				zap.String("tier", string(r.Tier)),
				zap.Int64("quantity", r.Quantity),
			)
			return NewConcurrencyConflictError(r.BatchID, r.Tier)
		}

		if err = tx.RecordMovement(ctx, newCommitMovement(r, reference, user)); err != nil {
			return NewStorageError("record_movement", "在庫変動記録に失敗しました", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return NewStorageError("commit", "トランザクションコミットに失敗しました", err)
	}
	outcome = "committed"

	if c.publisher != nil {
		event := ReservationCommittedEvent{
			ItemCodes:    itemCodes(reservations),
			Reservations: reservations,
			Reference:    reference,
			Timestamp:    time.Now(),
			UserID:       user,
		}
		if pubErr := c.publisher.PublishReservationCommitted(ctx, event); pubErr != nil {
			c.logger.Error("予約確定イベント発行に失敗しました", zap.Error(pubErr))
		}
	}

	c.logger.Info("予約確定完了",
		zap.String("reference", reference),
		zap.Int("reservations", len(reservations)),
		zap.Strings("item_codes", itemCodes(reservations)),
	)

	return nil
}

func itemCodes(reservations []Reservation) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, r := range reservations {
		if !seen[r.ItemCode] {
			seen[r.ItemCode] = true
			codes = append(codes, r.ItemCode)
		}
	}
	return codes
}
