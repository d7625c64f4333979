package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// reservation states
const (
	statePlanPrimary       = "PLAN_PRIMARY"
	stateEscalateSecondary = "ESCALATE_SECONDARY"
	stateBackfillMain      = "BACKFILL_MAIN"
	stateDone              = "DONE"
	stateFailed            = "FAILED"
)

// Coordinator performs channel-aware reservations across tiers.
// Escalation to the secondary tier and backfill from MAIN are gated by approvals.
// チャネルに応じた階層横断の予約を行う（二次階層・倉庫補填は承認制）
type Coordinator struct {
	selector            *Selector
	mover               StockMover
	publisher           EventPublisher
	metrics             *Metrics
	logger              *zap.Logger
	defaultRestockLevel int64
}

// NewCoordinator creates a new smart reservation coordinator
// 新しいスマート予約コーディネーターを作成
func NewCoordinator(selector *Selector, mover StockMover, publisher EventPublisher, metrics *Metrics, logger *zap.Logger, config *Config) *Coordinator {
	config = config.withDefaults()
	return &Coordinator{
		selector:            selector,
		mover:               mover,
		publisher:           publisher,
		metrics:             metrics,
		logger:              logger,
		defaultRestockLevel: config.DefaultRestockLevel,
	}
}

// Reserve plans req across the channel's tiers and returns the resulting pick.
// Only a completed MAIN backfill transfer mutates the ledger.
// 要求をチャネルの階層で計画し結果を返す（台帳を変更するのは倉庫補填のみ）
func (c *Coordinator) Reserve(ctx context.Context, req SmartRequest) (pick *SmartPick, err error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.observeReservation(req.Channel, outcome, time.Since(start))
	}()

	if req.Quantity <= 0 {
		return nil, NewValidationError("quantity", "数量は正の値である必要があります", fmt.Sprintf("%d", req.Quantity))
	}
	primary, secondary, err := req.Channel.Tiers()
	if err != nil {
		return nil, err
	}

	item, err := c.selector.resolveItem(ctx, req.ItemCode)
	if err != nil {
		return nil, err
	}
	code := item.Code
	restockLevel := item.RestockLevelOr(c.defaultRestockLevel)

	log := c.logger.With(
		zap.String("item_code", code),
		zap.String("channel", string(req.Channel)),
		zap.Int64("requested", req.Quantity),
	)
	state := statePlanPrimary
	defer func() {
		if err != nil {
			log.Debug("スマート予約に失敗しました",
				zap.String("from", state),
				zap.String("state", stateFailed),
				zap.Error(err),
			)
			if errors.Is(err, ErrApprovalRequired) {
				outcome = "approval_required"
			} else if errors.Is(err, ErrInsufficientStock) {
				outcome = "insufficient"
			}
		}
	}()

	// PLAN_PRIMARY
	primarySnap, err := c.selector.snapshot(ctx, code, primary)
	if err != nil {
		return nil, err
	}
	primaryAvailable := TotalAvailable(primarySnap)

	pick = &SmartPick{
		ItemCode:              code,
		RestockLevel:          restockLevel,
		ShowOutOfStockMessage: primaryAvailable == req.Quantity,
	}

	primaryPlan, err := AllocateFEFO(code, req.Quantity, primary, primarySnap)
	if err == nil {
		pick.add(primaryPlan)
		outcome = "primary"
		log.Debug("一次階層で予約を計画しました", zap.String("state", stateDone), zap.String("tier", string(primary)))
		return pick, nil
	}
	if !errors.Is(err, ErrInsufficientStock) {
		return nil, err
	}

	shortfall := req.Quantity - primaryAvailable
	if !req.ApproveSecondaryTier {
		return nil, NewApprovalRequiredError(secondary)
	}

	// ESCALATE_SECONDARY
	state = stateEscalateSecondary
	log.Debug("二次階層へエスカレーションします",
		zap.String("state", state),
		zap.Int64("primary_available", primaryAvailable),
		zap.Int64("shortfall", shortfall),
	)

	if primaryAvailable > 0 {
		primaryPlan, err = AllocateFEFO(code, primaryAvailable, primary, primarySnap)
		if err != nil {
			return nil, err
		}
		pick.add(primaryPlan)
	}

	secondarySnap, err := c.selector.snapshot(ctx, code, secondary)
	if err != nil {
		return nil, err
	}
	secondaryPlan, err := AllocateFEFO(code, shortfall, secondary, secondarySnap)
	if err == nil {
		pick.add(secondaryPlan)
		outcome = "secondary"
		log.Debug("二次階層で不足分を計画しました", zap.String("state", stateDone))
		return pick, nil
	}
	if !errors.Is(err, ErrInsufficientStock) {
		return nil, err
	}

	if !req.ApproveMainBackfill {
		return nil, NewApprovalRequiredError(TierMain)
	}

	// BACKFILL_MAIN
	state = stateBackfillMain
	secondaryAvailable := TotalAvailable(secondarySnap)
	secondaryShortfall := shortfall - secondaryAvailable

	mainQty, err := c.selector.available(ctx, code, TierMain)
	if err != nil {
		return nil, err
	}
	if mainQty < secondaryShortfall {
		return nil, NewInsufficientStockError(TierMain, secondaryShortfall, mainQty)
	}

	toMove := BackfillQuantity(secondaryShortfall, mainQty, restockLevel, secondaryAvailable)
	moved, err := c.backfill(ctx, code, secondary, toMove)
	if err != nil {
		return nil, err
	}
	if moved < secondaryShortfall {
		return nil, NewTransferError(
			fmt.Sprintf("倉庫から %s へ %d 個の移動が必要ですが %d 個しか移動できませんでした", secondary, secondaryShortfall, moved),
			nil,
		)
	}

	pick.UsedMainToFulfill = true
	pick.BackfilledSecondaryToRestockLevel = secondaryAvailable+moved >= restockLevel

	// The transfer is already committed; a failed re-plan leaves it in place.
	secondarySnap, err = c.selector.snapshot(ctx, code, secondary)
	if err != nil {
		return nil, err
	}
	secondaryPlan, err = AllocateFEFO(code, shortfall, secondary, secondarySnap)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			log.Warn("補填後の再計画に失敗しました。補填済み在庫はそのまま残ります",
				zap.String("tier", string(secondary)),
				zap.Int64("moved", moved),
			)
			return nil, NewInsufficientStockError(secondary, shortfall, TotalAvailable(secondarySnap))
		}
		return nil, err
	}
	pick.add(secondaryPlan)

	outcome = "backfill"
	log.Info("倉庫補填により予約を計画しました",
		zap.String("tier", string(secondary)),
		zap.Int64("moved", moved),
		zap.Bool("to_restock_level", pick.BackfilledSecondaryToRestockLevel),
	)

	return pick, nil
}

// BackfillQuantity returns how many units to move from MAIN into the secondary tier:
// at least the shortfall, and up to the restock level when the warehouse allows.
// 倉庫から移動する数量（最低でも不足分、可能なら補充レベルまで）
func BackfillQuantity(secondaryShortfall, mainQty, restockLevel, secondaryQty int64) int64 {
	topUp := min(mainQty, restockLevel-secondaryQty)
	return max(secondaryShortfall, topUp)
}

// backfill moves units from MAIN into tier as its own committed transfer
func (c *Coordinator) backfill(ctx context.Context, itemCode string, tier Tier, quantity int64) (int64, error) {
	req := TransferRequest{
		ItemCode:     itemCode,
		From:         TierMain,
		To:           tier,
		Quantity:     quantity,
		Reference:    NewReference("BACKFILL"),
		Type:         MovementTypeTransfer,
		CreatedBy:    userFromContext(ctx),
		ExpiryCutoff: c.selector.expiryCutoff(),
	}

	moved, err := c.mover.Transfer(ctx, req)
	if err != nil {
		return 0, NewTransferError("倉庫からの補填に失敗しました", err)
	}
	c.metrics.observeTransfer(MovementTypeTransfer, moved)

	if c.publisher != nil {
		event := StockTransferredEvent{
			ItemCode:  itemCode,
			From:      TierMain,
			To:        tier,
			Requested: quantity,
			Moved:     moved,
			Type:      MovementTypeTransfer,
			Reference: req.Reference,
			Timestamp: time.Now(),
			UserID:    req.CreatedBy,
		}
		if err := c.publisher.PublishStockTransferred(ctx, event); err != nil {
			c.logger.Error("移動イベント発行に失敗しました", zap.Error(err))
		}
	}

	return moved, nil
}
