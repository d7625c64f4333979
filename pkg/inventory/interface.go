package inventory

import (
	"context"
	"time"
)

// ReservationEngine defines the interface exposed to checkout collaborators
// チェックアウト側に公開するインターフェースを定義
type ReservationEngine interface {
	// 計画 - Planning
	PlanReservation(ctx context.Context, itemCode string, quantity int64, channel Channel) (*Plan, error)
	ReserveSmart(ctx context.Context, req SmartRequest) (*SmartPick, error)

	// 確定 - Commit
	Commit(ctx context.Context, reservations []Reservation, tier Tier) error
	CommitPick(ctx context.Context, pick *SmartPick) error

	// 照会 - Inquiry
	StockLevels(ctx context.Context, itemCode string) (*StockLevels, error)
	Batches(ctx context.Context, itemCode string, tier Tier) ([]BatchSnapshot, error)
	History(ctx context.Context, itemCode string, limit int) ([]Movement, error)

	// 棚補充 - Restock
	RunRestock(ctx context.Context) (*RestockResult, error)
}

// ItemReader resolves catalog entries
// カタログ参照のインターフェース
type ItemReader interface {
	GetItem(ctx context.Context, itemCode string) (*Item, error)
	ListItems(ctx context.Context) ([]Item, error)
}

// BatchReader provides read-only tier snapshots
// 階層スナップショットの読み取りインターフェース
type BatchReader interface {
	// SnapshotBatches returns batches with positive quantity in tier, FEFO ordered
	SnapshotBatches(ctx context.Context, itemCode string, tier Tier) ([]BatchSnapshot, error)
	TierQuantity(ctx context.Context, itemCode string, tier Tier) (int64, error)
}

// StockMover moves stock between tiers in its own transaction
// 独立したトランザクションで階層間の在庫を移動
type StockMover interface {
	// Transfer moves up to req.Quantity units in FEFO order and returns the amount moved
	Transfer(ctx context.Context, req TransferRequest) (int64, error)
}

// LedgerTx is one atomic unit of conditional writes
// 条件付き書き込みの原子的な単位
type LedgerTx interface {
	// ConditionalDecrement decrements only if the batch still belongs to itemCode
	// and its tier quantity is still >= qty.
	// false means another caller consumed the stock first or the batch is not the item's.
	ConditionalDecrement(ctx context.Context, itemCode string, batchID int64, tier Tier, qty int64) (bool, error)
	RecordMovement(ctx context.Context, movement *Movement) error
	Commit() error
	Rollback() error
}

// TxBeginner opens ledger transactions
type TxBeginner interface {
	Begin(ctx context.Context) (LedgerTx, error)
}

// MovementReader reads the stock movement audit trail
// 在庫変動の監査証跡の読み取り
type MovementReader interface {
	ListMovements(ctx context.Context, itemCode string, limit int) ([]Movement, error)
}

// Ledger composes every capability the engine needs from the stock store
// エンジンが必要とするストレージ機能をまとめたインターフェース
type Ledger interface {
	ItemReader
	BatchReader
	StockMover
	TxBeginner
	MovementReader

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher defines interface for publishing inventory events
// 在庫イベント発行のインターフェースを定義
type EventPublisher interface {
	PublishReservationCommitted(ctx context.Context, event ReservationCommittedEvent) error
	PublishStockTransferred(ctx context.Context, event StockTransferredEvent) error
	PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error
}

// Events for inventory operations
// 在庫操作のイベント定義

// ReservationCommittedEvent represents a committed reservation set
// 予約確定イベントを表現
type ReservationCommittedEvent struct {
	ItemCodes    []string      `json:"item_codes"`
	Reservations []Reservation `json:"reservations"`
	Reference    string        `json:"reference"`
	Timestamp    time.Time     `json:"timestamp"`
	UserID       string        `json:"user_id"`
}

// StockTransferredEvent represents a tier transfer
// 階層間移動イベントを表現
type StockTransferredEvent struct {
	ItemCode  string       `json:"item_code"`
	From      Tier         `json:"from"`
	To        Tier         `json:"to"`
	Requested int64        `json:"requested"`
	Moved     int64        `json:"moved"`
	Type      MovementType `json:"type"`
	Reference string       `json:"reference"`
	Timestamp time.Time    `json:"timestamp"`
	UserID    string       `json:"user_id"`
}

// LowStockAlertEvent represents a shelf that cannot be topped up
// 補充できない低在庫アラートイベントを表現
type LowStockAlertEvent struct {
	ItemCode   string    `json:"item_code"`
	Tier       Tier      `json:"tier"`
	CurrentQty int64     `json:"current_qty"`
	Threshold  int64     `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
}
