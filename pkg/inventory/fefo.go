package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// AllocateFEFO builds a plan for requested units out of a FEFO-ordered snapshot.
// It never returns a plan that under-fulfils the request.
// FEFO順のスナップショットから割当計画を作成（不足時は計画を破棄）
func AllocateFEFO(itemCode string, requested int64, tier Tier, snapshot []BatchSnapshot) (*Plan, error) {
	if requested <= 0 {
		return nil, NewValidationError("quantity", "数量は正の値である必要があります", fmt.Sprintf("%d", requested))
	}

	plan := &Plan{
		ItemCode:  itemCode,
		Tier:      tier,
		Requested: requested,
	}

	remaining := requested
	for _, b := range snapshot {
		if remaining == 0 {
			break
		}
		take := min(b.Available, remaining)
		if take <= 0 {
			continue
		}
		plan.Reservations = append(plan.Reservations, Reservation{
			BatchID:  b.BatchID,
			ItemCode: itemCode,
			Tier:     tier,
			Quantity: take,
		})
		remaining -= take
	}

	if remaining > 0 {
		return nil, NewInsufficientStockError(tier, requested, requested-remaining)
	}

	return plan, nil
}

// TotalAvailable sums the available quantity of a snapshot
func TotalAvailable(snapshot []BatchSnapshot) int64 {
	var total int64
	for _, b := range snapshot {
		if b.Available > 0 {
			total += b.Available
		}
	}
	return total
}

// SortFEFO orders batches by ascending expiry, no-expiry last, ties by batch id
// 有効期限の昇順（期限なしは最後、同値はバッチID昇順）に並べ替え
func SortFEFO(batches []BatchSnapshot) {
	sort.SliceStable(batches, func(i, j int) bool {
		return fefoLess(batches[i].Expiry, batches[i].BatchID, batches[j].Expiry, batches[j].BatchID)
	})
}

func fefoLess(ei *time.Time, idi int64, ej *time.Time, idj int64) bool {
	switch {
	case ei == nil && ej == nil:
		return idi < idj
	case ei == nil:
		return false
	case ej == nil:
		return true
	case !ei.Equal(*ej):
		return ei.Before(*ej)
	default:
		return idi < idj
	}
}

// dropExpired removes batches that expired before now
func dropExpired(snapshot []BatchSnapshot, now time.Time) []BatchSnapshot {
	kept := snapshot[:0:0]
	for _, b := range snapshot {
		if b.Expiry != nil && b.Expiry.Before(now) {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

// Selector plans FEFO allocations against the ledger without mutating it
// 台帳を変更せずにFEFO割当を計画
type Selector struct {
	items          ItemReader
	batches        BatchReader
	logger         *zap.Logger
	excludeExpired bool
	now            func() time.Time
}

// NewSelector creates a new FEFO selector
// 新しいFEFOセレクターを作成
func NewSelector(items ItemReader, batches BatchReader, logger *zap.Logger, config *Config) *Selector {
	config = config.withDefaults()
	return &Selector{
		items:          items,
		batches:        batches,
		logger:         logger,
		excludeExpired: config.ExcludeExpired,
		now:            time.Now,
	}
}

// SelectFor plans requested units of itemCode from one tier
// 指定階層から要求数量の割当を計画
func (s *Selector) SelectFor(ctx context.Context, itemCode string, requested int64, tier Tier) (*Plan, error) {
	if requested <= 0 {
		return nil, NewValidationError("quantity", "数量は正の値である必要があります", fmt.Sprintf("%d", requested))
	}
	if err := ValidateTier(tier); err != nil {
		return nil, err
	}

	item, err := s.resolveItem(ctx, itemCode)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.snapshot(ctx, item.Code, tier)
	if err != nil {
		return nil, err
	}

	plan, err := AllocateFEFO(item.Code, requested, tier, snapshot)
	if err != nil {
		s.logger.Debug("FEFO割当に失敗しました",
			zap.String("item_code", item.Code),
			zap.String("tier", string(tier)),
			zap.Int64("requested", requested),
			zap.Error(err),
		)
		return nil, err
	}

	return plan, nil
}

// resolveItem loads an item and maps storage misses to NotFound
func (s *Selector) resolveItem(ctx context.Context, itemCode string) (*Item, error) {
	if err := ValidateItemCode(itemCode); err != nil {
		return nil, err
	}
	item, err := s.items.GetItem(ctx, itemCode)
	if err != nil {
		if isNotFound(err) {
			return nil, NewNotFoundError(itemCode)
		}
		return nil, NewStorageError("get_item", "商品取得に失敗しました", err)
	}
	return item, nil
}

// snapshot reads one tier of an item, honouring the expiry filter
func (s *Selector) snapshot(ctx context.Context, itemCode string, tier Tier) ([]BatchSnapshot, error) {
	snapshot, err := s.batches.SnapshotBatches(ctx, itemCode, tier)
	if err != nil {
		return nil, NewStorageError("snapshot_batches", "バッチスナップショット取得に失敗しました", err)
	}
	if s.excludeExpired {
		snapshot = dropExpired(snapshot, s.now())
	}
	return snapshot, nil
}

// available sums one tier of an item, honouring the expiry filter
func (s *Selector) available(ctx context.Context, itemCode string, tier Tier) (int64, error) {
	if !s.excludeExpired {
		qty, err := s.batches.TierQuantity(ctx, itemCode, tier)
		if err != nil {
			return 0, NewStorageError("tier_quantity", "階層数量取得に失敗しました", err)
		}
		return qty, nil
	}
	snapshot, err := s.snapshot(ctx, itemCode, tier)
	if err != nil {
		return 0, err
	}
	return TotalAvailable(snapshot), nil
}

// expiryCutoff is the transfer cutoff matching the snapshot filter
func (s *Selector) expiryCutoff() *time.Time {
	if !s.excludeExpired {
		return nil
	}
	now := s.now()
	return &now
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
