package inventory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NeedsRestock reports whether the shelf is below its threshold
// 棚の補充が必要か判定
func NeedsRestock(shelfQty, threshold int64) bool {
	return shelfQty < threshold
}

// QuantityToMove returns how much store stock can be moved to the shelf
// バックルームから棚へ移動できる数量を返す
func QuantityToMove(storeQty, fixedQty int64) int64 {
	return max(0, min(storeQty, fixedQty))
}

// Restocker tops shelves up from the backroom store.
// It runs independently of request-time smart reservations.
// バックルームから棚へ補充する（予約処理とは独立して動作）
type Restocker struct {
	items               ItemReader
	selector            *Selector
	mover               StockMover
	publisher           EventPublisher
	metrics             *Metrics
	logger              *zap.Logger
	defaultRestockLevel int64
	fixedQuantity       int64
	concurrency         int
}

// NewRestocker creates a new shelf restocker
// 新しい棚補充処理を作成
func NewRestocker(items ItemReader, batches BatchReader, mover StockMover, publisher EventPublisher, metrics *Metrics, logger *zap.Logger, config *Config) *Restocker {
	config = config.withDefaults()
	return &Restocker{
		items:               items,
		selector:            NewSelector(items, batches, logger, config),
		mover:               mover,
		publisher:           publisher,
		metrics:             metrics,
		logger:              logger,
		defaultRestockLevel: config.DefaultRestockLevel,
		fixedQuantity:       config.RestockQuantity,
		concurrency:         config.RestockConcurrency,
	}
}

// RunOnce checks every catalog item once and moves store stock to low shelves
// 全商品をチェックし、低在庫の棚へバックルームから補充
func (r *Restocker) RunOnce(ctx context.Context) (*RestockResult, error) {
	items, err := r.items.ListItems(ctx)
	if err != nil {
		return nil, NewStorageError("list_items", "商品一覧取得に失敗しました", err)
	}

	result := &RestockResult{Checked: len(items)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			moved, alert, err := r.restockItem(gctx, &item)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if moved != nil {
				result.Restocked = append(result.Restocked, *moved)
			}
			if alert != nil {
				result.Alerts = append(result.Alerts, *alert)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	r.logger.Info("棚補充完了",
		zap.Int("checked", result.Checked),
		zap.Int("restocked", len(result.Restocked)),
		zap.Int("alerts", len(result.Alerts)),
	)

	return result, nil
}

func (r *Restocker) restockItem(ctx context.Context, item *Item) (*RestockMovement, *LowStockAlertEvent, error) {
	threshold := item.RestockLevelOr(r.defaultRestockLevel)

	shelfQty, err := r.selector.available(ctx, item.Code, TierShelf)
	if err != nil {
		return nil, nil, err
	}
	if !NeedsRestock(shelfQty, threshold) {
		return nil, nil, nil
	}

	storeQty, err := r.selector.available(ctx, item.Code, TierStore)
	if err != nil {
		return nil, nil, err
	}

	fixed := r.fixedQuantity
	if fixed <= 0 {
		fixed = threshold - shelfQty
	}
	toMove := QuantityToMove(storeQty, fixed)
	if toMove == 0 {
		alert := r.alert(ctx, item.Code, shelfQty, threshold)
		return nil, alert, nil
	}

	req := TransferRequest{
		ItemCode:     item.Code,
		From:         TierStore,
		To:           TierShelf,
		Quantity:     toMove,
		Reference:    NewReference("RESTOCK"),
		Type:         MovementTypeRestock,
		CreatedBy:    userFromContext(ctx),
		ExpiryCutoff: r.selector.expiryCutoff(),
	}
	moved, err := r.mover.Transfer(ctx, req)
	if err != nil {
		// 他の呼び出しとの競合は次回の実行で解消される
		r.logger.Warn("棚補充の移動に失敗しました", zap.String("item_code", item.Code), zap.Error(err))
		return nil, nil, nil
	}
	r.metrics.observeTransfer(MovementTypeRestock, moved)

	if r.publisher != nil && moved > 0 {
		event := StockTransferredEvent{
			ItemCode:  item.Code,
			From:      TierStore,
			To:        TierShelf,
			Requested: toMove,
			Moved:     moved,
			Type:      MovementTypeRestock,
			Reference: req.Reference,
			Timestamp: time.Now(),
			UserID:    req.CreatedBy,
		}
		if err := r.publisher.PublishStockTransferred(ctx, event); err != nil {
			r.logger.Error("補充イベント発行に失敗しました", zap.Error(err))
		}
	}

	var alert *LowStockAlertEvent
	if shelfQty+moved < threshold {
		alert = r.alert(ctx, item.Code, shelfQty+moved, threshold)
	}

	return &RestockMovement{ItemCode: item.Code, Moved: moved, ShelfQty: shelfQty + moved}, alert, nil
}

func (r *Restocker) alert(ctx context.Context, itemCode string, current, threshold int64) *LowStockAlertEvent {
	event := LowStockAlertEvent{
		ItemCode:   itemCode,
		Tier:       TierShelf,
		CurrentQty: current,
		Threshold:  threshold,
		Timestamp:  time.Now(),
	}
	if r.publisher != nil {
		if err := r.publisher.PublishLowStockAlert(ctx, event); err != nil {
			r.logger.Error("低在庫アラートイベント発行に失敗しました", zap.Error(err))
		}
	}
	return &event
}

// Start runs RunOnce every interval until ctx is done
// 指定間隔で棚補充を繰り返し実行（ctx終了まで）
func (r *Restocker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("棚補充ワーカーを停止しました")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("棚補充に失敗しました", zap.Error(err))
			}
		}
	}
}
