package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(n int) *time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return &t
}

// TestAllocateFEFO_TakesEarliestExpiryFirst はFEFO順の割当のテスト
func TestAllocateFEFO_TakesEarliestExpiryFirst(t *testing.T) {
	snapshot := []BatchSnapshot{
		{BatchID: 1, Expiry: day(1), Available: 3},
		{BatchID: 2, Expiry: day(5), Available: 4},
		{BatchID: 3, Expiry: nil, Available: 10},
	}

	plan, err := AllocateFEFO("SKU1", 5, TierShelf, snapshot)

	require.NoError(t, err)
	assert.Equal(t, int64(5), plan.Total())
	assert.Equal(t, []Reservation{
		{BatchID: 1, ItemCode: "SKU1", Tier: TierShelf, Quantity: 3},
		{BatchID: 2, ItemCode: "SKU1", Tier: TierShelf, Quantity: 2},
	}, plan.Reservations)
}

// TestAllocateFEFO_Insufficient は在庫不足時に計画を返さないことのテスト
func TestAllocateFEFO_Insufficient(t *testing.T) {
	snapshot := []BatchSnapshot{
		{BatchID: 1, Expiry: day(1), Available: 2},
		{BatchID: 2, Expiry: day(2), Available: 1},
	}

	plan, err := AllocateFEFO("SKU1", 4, TierStore, snapshot)

	assert.Nil(t, plan)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, TierStore, insufficient.Tier)
	assert.Equal(t, int64(4), insufficient.Requested)
	assert.Equal(t, int64(3), insufficient.Available)

	// スナップショットは変更されない
	assert.Equal(t, int64(2), snapshot[0].Available)
	assert.Equal(t, int64(1), snapshot[1].Available)
}

// TestAllocateFEFO_InvalidQuantity は不正な数量のテスト
func TestAllocateFEFO_InvalidQuantity(t *testing.T) {
	for _, qty := range []int64{0, -3} {
		_, err := AllocateFEFO("SKU1", qty, TierShelf, nil)
		assert.True(t, errors.Is(err, ErrInvalidArgument), "quantity %d", qty)
	}
}

// TestAllocateFEFO_SkipsEmptyBatches は数量0のバッチを割当に含めないことのテスト
func TestAllocateFEFO_SkipsEmptyBatches(t *testing.T) {
	snapshot := []BatchSnapshot{
		{BatchID: 1, Expiry: day(1), Available: 0},
		{BatchID: 2, Expiry: day(2), Available: 2},
	}

	plan, err := AllocateFEFO("SKU1", 2, TierShelf, snapshot)

	require.NoError(t, err)
	require.Len(t, plan.Reservations, 1)
	assert.Equal(t, int64(2), plan.Reservations[0].BatchID)
}

// TestSortFEFO は並び順（期限昇順・期限なし最後・同値はID順）のテスト
func TestSortFEFO(t *testing.T) {
	batches := []BatchSnapshot{
		{BatchID: 7, Expiry: nil},
		{BatchID: 4, Expiry: day(3)},
		{BatchID: 2, Expiry: day(3)},
		{BatchID: 9, Expiry: day(1)},
		{BatchID: 1, Expiry: nil},
	}

	SortFEFO(batches)

	var ids []int64
	for _, b := range batches {
		ids = append(ids, b.BatchID)
	}
	assert.Equal(t, []int64{9, 2, 4, 1, 7}, ids)
}

func TestTotalAvailable(t *testing.T) {
	assert.Equal(t, int64(0), TotalAvailable(nil))
	assert.Equal(t, int64(7), TotalAvailable([]BatchSnapshot{{Available: 3}, {Available: 4}}))
}

// TestSelector_SelectFor はセレクター経由の計画のテスト
func TestSelector_SelectFor(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	selector := NewSelector(ledger, ledger, zap.NewNop(), nil)

	ledger.On("GetItem", ctx, "SKU1").Return(&Item{Code: "SKU1", Name: "テスト商品"}, nil)
	ledger.On("SnapshotBatches", ctx, "SKU1", TierShelf).Return([]BatchSnapshot{
		{BatchID: 1, ItemCode: "SKU1", Expiry: day(1), Tier: TierShelf, Available: 2},
		{BatchID: 2, ItemCode: "SKU1", Expiry: day(2), Tier: TierShelf, Available: 5},
	}, nil)

	plan, err := selector.SelectFor(ctx, "SKU1", 4, TierShelf)

	require.NoError(t, err)
	assert.Equal(t, "SKU1", plan.ItemCode)
	assert.Equal(t, TierShelf, plan.Tier)
	assert.Equal(t, int64(4), plan.Total())
	ledger.AssertExpectations(t)
}

// TestSelector_UnknownItem は存在しない商品のテスト
func TestSelector_UnknownItem(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	selector := NewSelector(ledger, ledger, zap.NewNop(), nil)

	ledger.On("GetItem", ctx, "NOPE").Return(nil, ErrItemNotFound)

	_, err := selector.SelectFor(ctx, "NOPE", 1, TierShelf)

	assert.True(t, errors.Is(err, ErrItemNotFound))
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "NOPE", notFound.ItemCode)
	ledger.AssertNotCalled(t, "SnapshotBatches", mock.Anything, mock.Anything, mock.Anything)
}

// TestSelector_StorageFailure はストレージエラーがラップされることのテスト
func TestSelector_StorageFailure(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	selector := NewSelector(ledger, ledger, zap.NewNop(), nil)
	cause := errors.New("connection reset")

	ledger.On("GetItem", ctx, "SKU1").Return(&Item{Code: "SKU1", Name: "テスト商品"}, nil)
	ledger.On("SnapshotBatches", ctx, "SKU1", TierStore).Return(nil, cause)

	_, err := selector.SelectFor(ctx, "SKU1", 1, TierStore)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, cause)
}

// TestSelector_ExcludeExpired は期限切れバッチ除外設定のテスト
func TestSelector_ExcludeExpired(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	selector := NewSelector(ledger, ledger, zap.NewNop(), &Config{ExcludeExpired: true})
	selector.now = func() time.Time { return *day(3) }

	ledger.On("GetItem", ctx, "SKU1").Return(&Item{Code: "SKU1", Name: "テスト商品"}, nil)
	ledger.On("SnapshotBatches", ctx, "SKU1", TierShelf).Return([]BatchSnapshot{
		{BatchID: 1, Expiry: day(1), Tier: TierShelf, Available: 5},
		{BatchID: 2, Expiry: day(4), Tier: TierShelf, Available: 2},
		{BatchID: 3, Expiry: nil, Tier: TierShelf, Available: 1},
	}, nil)

	_, err := selector.SelectFor(ctx, "SKU1", 4, TierShelf)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	plan, err := selector.SelectFor(ctx, "SKU1", 3, TierShelf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), plan.Reservations[0].BatchID)
	assert.Equal(t, int64(3), plan.Reservations[1].BatchID)
}

// TestSelector_AvailableHonoursExpiry は階層数量が期限切れ除外設定に従うことのテスト
func TestSelector_AvailableHonoursExpiry(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()

	plain := NewSelector(ledger, ledger, zap.NewNop(), nil)
	ledger.On("TierQuantity", ctx, "SKU1", TierMain).Return(int64(12), nil)

	qty, err := plain.available(ctx, "SKU1", TierMain)
	require.NoError(t, err)
	assert.Equal(t, int64(12), qty)
	assert.Nil(t, plain.expiryCutoff())

	filtered := NewSelector(ledger, ledger, zap.NewNop(), &Config{ExcludeExpired: true})
	filtered.now = func() time.Time { return *day(3) }
	ledger.On("SnapshotBatches", ctx, "SKU1", TierMain).Return([]BatchSnapshot{
		{BatchID: 1, Expiry: day(1), Tier: TierMain, Available: 10},
		{BatchID: 2, Expiry: day(5), Tier: TierMain, Available: 2},
	}, nil)

	qty, err = filtered.available(ctx, "SKU1", TierMain)
	require.NoError(t, err)
	assert.Equal(t, int64(2), qty)
	require.NotNil(t, filtered.expiryCutoff())
	assert.Equal(t, *day(3), *filtered.expiryCutoff())
}
