// Package inventory provides tiered perishable stock allocation and reservation
package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultRestockLevel is used when an item has no restock level of its own
// 商品に補充レベルが設定されていない場合の既定値
const DefaultRestockLevel int64 = 50

// Tier identifies one of the physical stock tiers
// 在庫の物理的な階層（棚・バックルーム・倉庫）を表現
type Tier string

const (
	TierShelf Tier = "SHELF" // 売場の棚
	TierStore Tier = "STORE" // バックルーム
	TierMain  Tier = "MAIN"  // メイン倉庫
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierShelf, TierStore, TierMain:
		return true
	}
	return false
}

// Channel identifies the sales channel a request comes from
// 販売チャネルを表現
type Channel string

const (
	ChannelPOS    Channel = "POS"    // 店頭レジ
	ChannelOnline Channel = "ONLINE" // オンライン
)

// Tiers returns the primary and secondary tier for the channel
// チャネルに対応する一次・二次階層を返す
func (c Channel) Tiers() (primary, secondary Tier, err error) {
	switch c {
	case ChannelPOS:
		return TierStore, TierShelf, nil
	case ChannelOnline:
		return TierShelf, TierStore, nil
	default:
		return "", "", NewValidationError("channel", "無効な販売チャネルです", string(c))
	}
}

// Item represents a catalog entry
// カタログ上の商品を表現
type Item struct {
	Code         string          `json:"code" db:"code"`                   // 商品コード
	Name         string          `json:"name" db:"name"`                   // 商品名
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`       // 単価
	RestockLevel *int64          `json:"restock_level" db:"restock_level"` // 補充レベル（nilの場合は既定値）
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`       // 作成日時
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`       // 更新日時
}

// RestockLevelOr returns the item's restock level or def when unset
// 補充レベルを返す（未設定の場合はdef）
func (i *Item) RestockLevelOr(def int64) int64 {
	if i.RestockLevel == nil {
		return def
	}
	return *i.RestockLevel
}

// Batch is one row of the stock ledger
// 在庫台帳の1行（バッチ）を表現
type Batch struct {
	ID        int64      `json:"id" db:"id"`                 // バッチID
	ItemCode  string     `json:"item_code" db:"item_code"`   // 商品コード
	Expiry    *time.Time `json:"expiry" db:"expiry"`         // 有効期限（nilは期限なし）
	QtyShelf  int64      `json:"qty_shelf" db:"qty_shelf"`   // 棚の数量
	QtyStore  int64      `json:"qty_store" db:"qty_store"`   // バックルームの数量
	QtyMain   int64      `json:"qty_main" db:"qty_main"`     // 倉庫の数量
	CreatedAt time.Time  `json:"created_at" db:"created_at"` // 作成日時
}

// Quantity returns the batch quantity held in the given tier
// 指定階層のバッチ数量を返す
func (b *Batch) Quantity(tier Tier) int64 {
	switch tier {
	case TierShelf:
		return b.QtyShelf
	case TierStore:
		return b.QtyStore
	case TierMain:
		return b.QtyMain
	}
	return 0
}

// IsExpired checks if the batch expired before now
// バッチが期限切れかチェック
func (b *Batch) IsExpired(now time.Time) bool {
	if b.Expiry == nil {
		return false
	}
	return b.Expiry.Before(now)
}

// BatchSnapshot is a read-only view of one batch in one tier
// 1階層における1バッチの読み取り専用ビュー
type BatchSnapshot struct {
	BatchID   int64      `json:"batch_id"`
	ItemCode  string     `json:"item_code"`
	Expiry    *time.Time `json:"expiry,omitempty"`
	Tier      Tier       `json:"tier"`
	Available int64      `json:"available"`
}

// Reservation is a single plan element
// 計画の1要素（バッチと数量の割当）を表現
type Reservation struct {
	BatchID  int64  `json:"batch_id" validate:"required,gt=0"`
	ItemCode string `json:"item_code" validate:"required"`
	Tier     Tier   `json:"tier"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
}

// Plan is a tentative, uncommitted allocation for one tier
// 1階層に対する未確定の割当計画
type Plan struct {
	ItemCode     string        `json:"item_code"`
	Tier         Tier          `json:"tier"`
	Requested    int64         `json:"requested"`
	Reservations []Reservation `json:"reservations"`
}

// Total returns the sum of reserved quantities
func (p *Plan) Total() int64 {
	var total int64
	for _, r := range p.Reservations {
		total += r.Quantity
	}
	return total
}

// SmartRequest holds the input of a smart reservation
// スマート予約の入力を保持
type SmartRequest struct {
	ItemCode             string  `json:"item_code"`
	Quantity             int64   `json:"quantity"`
	Channel              Channel `json:"channel"`
	ApproveSecondaryTier bool    `json:"approve_secondary_tier"`
	ApproveMainBackfill  bool    `json:"approve_main_backfill"`
}

// SmartPick is the result of a smart reservation
// スマート予約の結果を表現
type SmartPick struct {
	ItemCode                          string        `json:"item_code"`
	ShelfReservations                 []Reservation `json:"shelf_reservations"`
	StoreReservations                 []Reservation `json:"store_reservations"`
	UsedMainToFulfill                 bool          `json:"used_main_to_fulfill"`
	BackfilledSecondaryToRestockLevel bool          `json:"backfilled_secondary_to_restock_level"`
	RestockLevel                      int64         `json:"restock_level"`
	ShowOutOfStockMessage             bool          `json:"show_out_of_stock_message"`
}

// add appends a plan's reservations to the matching tier list
func (p *SmartPick) add(plan *Plan) {
	if plan == nil {
		return
	}
	switch plan.Tier {
	case TierShelf:
		p.ShelfReservations = append(p.ShelfReservations, plan.Reservations...)
	case TierStore:
		p.StoreReservations = append(p.StoreReservations, plan.Reservations...)
	}
}

// ByTier returns the reservations held for one tier
func (p *SmartPick) ByTier(tier Tier) []Reservation {
	switch tier {
	case TierShelf:
		return p.ShelfReservations
	case TierStore:
		return p.StoreReservations
	}
	return nil
}

// Reservations returns every reservation of the pick
// すべての予約を返す
func (p *SmartPick) Reservations() []Reservation {
	all := make([]Reservation, 0, len(p.ShelfReservations)+len(p.StoreReservations))
	all = append(all, p.StoreReservations...)
	all = append(all, p.ShelfReservations...)
	return all
}

// Total returns the quantity reserved across both tiers
func (p *SmartPick) Total() int64 {
	var total int64
	for _, r := range p.Reservations() {
		total += r.Quantity
	}
	return total
}

// StockLevels holds per-tier totals for one item
// 商品の階層別合計数量を保持
type StockLevels struct {
	ItemCode     string `json:"item_code"`
	Shelf        int64  `json:"shelf"`
	Store        int64  `json:"store"`
	Main         int64  `json:"main"`
	RestockLevel int64  `json:"restock_level"`
}

// Quantity returns the total held in the given tier
func (s *StockLevels) Quantity(tier Tier) int64 {
	switch tier {
	case TierShelf:
		return s.Shelf
	case TierStore:
		return s.Store
	case TierMain:
		return s.Main
	}
	return 0
}

// TransferRequest describes a tier-to-tier movement for one item
// 商品の階層間移動リクエストを表現
type TransferRequest struct {
	ItemCode  string       `json:"item_code"`
	From      Tier         `json:"from"`
	To        Tier         `json:"to"`
	Quantity  int64        `json:"quantity"`
	Reference string       `json:"reference"`
	Type      MovementType `json:"type"`
	CreatedBy string       `json:"created_by"`

	// ExpiryCutoff excludes batches expiring before it; nil moves every batch
	// 指定時刻より前に期限切れとなるバッチは移動しない（nilは全バッチ対象）
	ExpiryCutoff *time.Time `json:"expiry_cutoff,omitempty"`
}

// Movement is an audit record of a stock change
// 在庫変動の監査記録を表現
type Movement struct {
	ID        string       `json:"id" db:"id"`                 // 記録ID
	Type      MovementType `json:"type" db:"type"`             // 変動タイプ
	ItemCode  string       `json:"item_code" db:"item_code"`   // 商品コード
	BatchID   int64        `json:"batch_id" db:"batch_id"`     // バッチID
	FromTier  *Tier        `json:"from_tier" db:"from_tier"`   // 移動元（nilの場合は入庫）
	ToTier    *Tier        `json:"to_tier" db:"to_tier"`       // 移動先（nilの場合は出庫）
	Quantity  int64        `json:"quantity" db:"quantity"`     // 数量
	Reference string       `json:"reference" db:"reference"`   // 参照番号
	CreatedAt time.Time    `json:"created_at" db:"created_at"` // 作成日時
	CreatedBy string       `json:"created_by" db:"created_by"` // 作成者
}

// MovementType defines the kind of stock change
// 在庫変動のタイプを定義
type MovementType string

const (
	MovementTypeCommit   MovementType = "commit"   // 予約確定による出庫
	MovementTypeTransfer MovementType = "transfer" // 倉庫からの補填
	MovementTypeRestock  MovementType = "restock"  // 棚補充
)

// RestockResult reports the outcome of one restock sweep
// 棚補充の実行結果を表現
type RestockResult struct {
	Checked   int                  `json:"checked"`
	Restocked []RestockMovement    `json:"restocked"`
	Alerts    []LowStockAlertEvent `json:"alerts"`
}

// RestockMovement is one store-to-shelf top-up performed by a sweep
type RestockMovement struct {
	ItemCode string `json:"item_code"`
	Moved    int64  `json:"moved"`
	ShelfQty int64  `json:"shelf_qty"`
}

// NewMovementID generates a new movement record ID
// 新しい変動記録IDを生成
func NewMovementID() string {
	return uuid.New().String()
}

// NewReference generates a reference for engine-initiated movements
func NewReference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String()[:8])
}

func tierPtr(t Tier) *Tier {
	return &t
}
