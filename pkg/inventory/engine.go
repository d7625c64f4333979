package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Engine implements the ReservationEngine interface on top of a Ledger
// ReservationEngineインターフェースの実装
type Engine struct {
	ledger      Ledger
	selector    *Selector
	coordinator *Coordinator
	committer   *Committer
	restocker   *Restocker
	tracker     *MovementTracker
	logger      *zap.Logger
	config      *Config
}

var _ ReservationEngine = (*Engine)(nil)

// Config holds configuration for the reservation engine
// 予約エンジンの設定を保持
type Config struct {
	DefaultRestockLevel int64         `yaml:"default_restock_level"` // 補充レベルの既定値
	ExcludeExpired      bool          `yaml:"exclude_expired"`       // 期限切れバッチを計画から除外
	RestockQuantity     int64         `yaml:"restock_quantity"`      // 棚補充の固定数量（0は補充レベルまで）
	RestockConcurrency  int           `yaml:"restock_concurrency"`   // 棚補充の並列数
	RestockInterval     time.Duration `yaml:"restock_interval"`      // 棚補充の間隔（0は無効）
	HistoryLimit        int           `yaml:"history_limit"`         // 変動履歴の既定取得件数
}

// DefaultConfig returns the engine defaults
// 既定の設定を返す
func DefaultConfig() *Config {
	return &Config{
		DefaultRestockLevel: DefaultRestockLevel,
		ExcludeExpired:      false,
		RestockQuantity:     0,
		RestockConcurrency:  4,
		RestockInterval:     0,
		HistoryLimit:        100,
	}
}

// withDefaults fills unset fields; a nil config yields DefaultConfig
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.DefaultRestockLevel <= 0 {
		out.DefaultRestockLevel = d.DefaultRestockLevel
	}
	if out.RestockConcurrency <= 0 {
		out.RestockConcurrency = d.RestockConcurrency
	}
	if out.HistoryLimit <= 0 {
		out.HistoryLimit = d.HistoryLimit
	}
	if out.RestockQuantity < 0 {
		out.RestockQuantity = 0
	}
	return &out
}

// NewEngine creates a new reservation engine.
// publisher and metrics may be nil.
// 新しい予約エンジンを作成
func NewEngine(ledger Ledger, publisher EventPublisher, metrics *Metrics, logger *zap.Logger, config *Config) *Engine {
	config = config.withDefaults()
	selector := NewSelector(ledger, ledger, logger, config)

	return &Engine{
		ledger:      ledger,
		selector:    selector,
		coordinator: NewCoordinator(selector, ledger, publisher, metrics, logger, config),
		committer:   NewCommitter(ledger, publisher, metrics, logger),
		restocker:   NewRestocker(ledger, ledger, ledger, publisher, metrics, logger, config),
		tracker:     NewMovementTracker(ledger, logger, config),
		logger:      logger,
		config:      config,
	}
}

// Config returns the effective engine configuration
func (e *Engine) Config() Config {
	return *e.config
}

// Restocker returns the background shelf restocker
func (e *Engine) Restocker() *Restocker {
	return e.restocker
}

// PlanReservation plans quantity units from the primary tier of channel.
// Nothing is persisted.
// チャネルの一次階層から割当を計画（永続化しない）
func (e *Engine) PlanReservation(ctx context.Context, itemCode string, quantity int64, channel Channel) (*Plan, error) {
	primary, _, err := channel.Tiers()
	if err != nil {
		return nil, err
	}

	plan, err := e.selector.SelectFor(ctx, itemCode, quantity, primary)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("予約計画完了",
		zap.String("item_code", plan.ItemCode),
		zap.String("channel", string(channel)),
		zap.String("tier", string(plan.Tier)),
		zap.Int64("quantity", quantity),
		zap.Int("batches", len(plan.Reservations)),
	)

	return plan, nil
}

// ReserveSmart runs the channel-aware reservation across tiers
// チャネルに応じた階層横断の予約を実行
func (e *Engine) ReserveSmart(ctx context.Context, req SmartRequest) (*SmartPick, error) {
	return e.coordinator.Reserve(ctx, req)
}

// Commit commits reservations of a single tier atomically
// 単一階層の予約を原子的に確定
func (e *Engine) Commit(ctx context.Context, reservations []Reservation, tier Tier) error {
	return e.committer.Commit(ctx, reservations, tier)
}

// CommitPick commits every reservation of a smart pick atomically
// スマート予約の全予約を原子的に確定
func (e *Engine) CommitPick(ctx context.Context, pick *SmartPick) error {
	return e.committer.CommitPick(ctx, pick)
}

// StockLevels returns per-tier totals and the restock level of an item
// 商品の階層別合計と補充レベルを取得
func (e *Engine) StockLevels(ctx context.Context, itemCode string) (*StockLevels, error) {
	item, err := e.selector.resolveItem(ctx, itemCode)
	if err != nil {
		return nil, err
	}

	levels := &StockLevels{
		ItemCode:     item.Code,
		RestockLevel: item.RestockLevelOr(e.config.DefaultRestockLevel),
	}
	for _, tier := range []Tier{TierShelf, TierStore, TierMain} {
		qty, err := e.ledger.TierQuantity(ctx, item.Code, tier)
		if err != nil {
			return nil, NewStorageError("tier_quantity", "階層数量取得に失敗しました", err)
		}
		switch tier {
		case TierShelf:
			levels.Shelf = qty
		case TierStore:
			levels.Store = qty
		case TierMain:
			levels.Main = qty
		}
	}

	return levels, nil
}

// Batches returns the FEFO-ordered snapshot of one tier
// 指定階層のFEFO順スナップショットを取得
func (e *Engine) Batches(ctx context.Context, itemCode string, tier Tier) ([]BatchSnapshot, error) {
	if err := ValidateTier(tier); err != nil {
		return nil, err
	}
	item, err := e.selector.resolveItem(ctx, itemCode)
	if err != nil {
		return nil, err
	}
	return e.selector.snapshot(ctx, item.Code, tier)
}

// History returns the movement audit trail of an item
// 商品の在庫変動履歴を取得
func (e *Engine) History(ctx context.Context, itemCode string, limit int) ([]Movement, error) {
	if _, err := e.selector.resolveItem(ctx, itemCode); err != nil {
		return nil, err
	}
	return e.tracker.History(ctx, itemCode, limit)
}

// RunRestock runs one shelf restock sweep
// 棚補充を1回実行
func (e *Engine) RunRestock(ctx context.Context) (*RestockResult, error) {
	return e.restocker.RunOnce(ctx)
}

// Ping checks the ledger connection
func (e *Engine) Ping(ctx context.Context) error {
	return e.ledger.Ping(ctx)
}
