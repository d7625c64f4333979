package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RUVAINMANETHKALANSOORIYA/SynexOutletStore-sub000/pkg/inventory"
)

// MemoryStorage implements the Ledger interface in process memory.
// A transaction holds the ledger lock until Commit or Rollback.
// プロセス内メモリによるLedgerの実装（トランザクション中は台帳をロック）
type MemoryStorage struct {
	mu          sync.RWMutex
	items       map[string]*inventory.Item
	batches     map[int64]*inventory.Batch
	movements   []inventory.Movement
	nextBatchID int64
	logger      *zap.Logger
}

var _ inventory.Ledger = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory ledger
// 空のメモリ台帳を作成
func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	return &MemoryStorage{
		items:   make(map[string]*inventory.Item),
		batches: make(map[int64]*inventory.Batch),
		logger:  logger,
	}
}

// CreateItem registers a catalog item
// 商品を登録
func (s *MemoryStorage) CreateItem(ctx context.Context, item *inventory.Item) error {
	if err := inventory.ValidateItem(item); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.Code]; ok {
		return fmt.Errorf("商品は既に存在します: %s", item.Code)
	}
	copied := *item
	now := time.Now()
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	s.items[item.Code] = &copied
	return nil
}

// CreateBatch registers a batch and returns its id; a zero ID is assigned automatically
// バッチを登録しIDを返す（IDが0の場合は自動採番）
func (s *MemoryStorage) CreateBatch(ctx context.Context, batch *inventory.Batch) (int64, error) {
	if err := inventory.ValidateBatch(batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[batch.ItemCode]; !ok {
		return 0, inventory.ErrItemNotFound
	}
	copied := *batch
	if copied.ID == 0 {
		s.nextBatchID++
		copied.ID = s.nextBatchID
	} else if _, ok := s.batches[copied.ID]; ok {
		return 0, fmt.Errorf("バッチは既に存在します: %d", copied.ID)
	} else if copied.ID > s.nextBatchID {
		s.nextBatchID = copied.ID
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.batches[copied.ID] = &copied
	return copied.ID, nil
}

// Batch returns a copy of one batch
// バッチのコピーを取得
func (s *MemoryStorage) Batch(id int64) (inventory.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return inventory.Batch{}, false
	}
	return *b, true
}

// GetItem retrieves an item by code
// 商品コードで商品を取得
func (s *MemoryStorage) GetItem(ctx context.Context, itemCode string) (*inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemCode]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	copied := *item
	return &copied, nil
}

// ListItems lists every item ordered by code
// 全商品をコード順に取得
func (s *MemoryStorage) ListItems(ctx context.Context) ([]inventory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]inventory.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items, nil
}

// SnapshotBatches returns the batches with stock in tier, FEFO ordered
// 指定階層に在庫のあるバッチをFEFO順に取得
func (s *MemoryStorage) SnapshotBatches(ctx context.Context, itemCode string, tier inventory.Tier) ([]inventory.BatchSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked(itemCode, tier), nil
}

func (s *MemoryStorage) snapshotLocked(itemCode string, tier inventory.Tier) []inventory.BatchSnapshot {
	var snapshot []inventory.BatchSnapshot
	for _, b := range s.batches {
		if b.ItemCode != itemCode {
			continue
		}
		qty := b.Quantity(tier)
		if qty <= 0 {
			continue
		}
		snapshot = append(snapshot, inventory.BatchSnapshot{
			BatchID:   b.ID,
			ItemCode:  b.ItemCode,
			Expiry:    b.Expiry,
			Tier:      tier,
			Available: qty,
		})
	}
	inventory.SortFEFO(snapshot)
	return snapshot
}

// TierQuantity sums the quantity of an item held in tier
// 指定階層の商品合計数量を取得
func (s *MemoryStorage) TierQuantity(ctx context.Context, itemCode string, tier inventory.Tier) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, b := range s.batches {
		if b.ItemCode == itemCode {
			total += b.Quantity(tier)
		}
	}
	return total, nil
}

// Transfer moves up to req.Quantity units from req.From to req.To in FEFO order
// FEFO順に移動元から移動先へ在庫を移動
func (s *MemoryStorage) Transfer(ctx context.Context, req inventory.TransferRequest) (int64, error) {
	if err := inventory.ValidateTransfer(req); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[req.ItemCode]; !ok {
		return 0, inventory.ErrItemNotFound
	}

	var moved int64
	for _, snap := range s.snapshotLocked(req.ItemCode, req.From) {
		if moved == req.Quantity {
			break
		}
		if req.ExpiryCutoff != nil && snap.Expiry != nil && snap.Expiry.Before(*req.ExpiryCutoff) {
			continue
		}
		take := min(snap.Available, req.Quantity-moved)
		b := s.batches[snap.BatchID]
		*tierField(b, req.From) -= take
		*tierField(b, req.To) += take
		moved += take
		s.movements = append(s.movements, *inventory.NewTransferMovement(req, b.ID, take))
	}

	s.logger.Debug("階層間移動完了",
		zap.String("item_code", req.ItemCode),
		zap.String("from", string(req.From)),
		zap.String("to", string(req.To)),
		zap.Int64("requested", req.Quantity),
		zap.Int64("moved", moved),
	)

	return moved, nil
}

// ListMovements returns the newest movements of an item first
// 商品の変動履歴を新しい順に取得
func (s *MemoryStorage) ListMovements(ctx context.Context, itemCode string, limit int) ([]inventory.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var movements []inventory.Movement
	for i := len(s.movements) - 1; i >= 0; i-- {
		if limit > 0 && len(movements) == limit {
			break
		}
		if s.movements[i].ItemCode == itemCode {
			movements = append(movements, s.movements[i])
		}
	}
	return movements, nil
}

// Begin locks the ledger and starts a transaction
// 台帳をロックしトランザクションを開始
func (s *MemoryStorage) Begin(ctx context.Context) (inventory.LedgerTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memoryTx{storage: s}, nil
}

// Ping always succeeds
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStorage) Close() error {
	return nil
}

// memoryTx buffers movements and keeps an undo log of decrements
type memoryTx struct {
	storage   *MemoryStorage
	undo      []func()
	movements []inventory.Movement
	done      bool
}

func (tx *memoryTx) ConditionalDecrement(ctx context.Context, itemCode string, batchID int64, tier inventory.Tier, qty int64) (bool, error) {
	if tx.done {
		return false, inventory.ErrTxDone
	}
	if err := inventory.ValidateTier(tier); err != nil {
		return false, err
	}
	b, ok := tx.storage.batches[batchID]
	if !ok || b.ItemCode != itemCode {
		return false, nil
	}
	field := tierField(b, tier)
	if *field < qty {
		return false, nil
	}
	*field -= qty
	tx.undo = append(tx.undo, func() { *field += qty })
	return true, nil
}

func (tx *memoryTx) RecordMovement(ctx context.Context, movement *inventory.Movement) error {
	if tx.done {
		return inventory.ErrTxDone
	}
	tx.movements = append(tx.movements, *movement)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return inventory.ErrTxDone
	}
	tx.done = true
	tx.storage.movements = append(tx.storage.movements, tx.movements...)
	tx.storage.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return inventory.ErrTxDone
	}
	tx.done = true
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.storage.mu.Unlock()
	return nil
}

func tierField(b *inventory.Batch, tier inventory.Tier) *int64 {
	switch tier {
	case inventory.TierShelf:
		return &b.QtyShelf
	case inventory.TierStore:
		return &b.QtyStore
	default:
		return &b.QtyMain
	}
}
