package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBackfillQuantity(t *testing.T) {
	tests := []struct {
		name         string
		shortfall    int64
		mainQty      int64
		restockLevel int64
		secondaryQty int64
		want         int64
	}{
		{"up to restock level", 4, 10, 5, 0, 5},
		{"warehouse limits top-up", 4, 4, 50, 0, 4},
		{"secondary already near level", 2, 10, 5, 4, 2},
		{"large restock level", 1, 100, 50, 10, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BackfillQuantity(tt.shortfall, tt.mainQty, tt.restockLevel, tt.secondaryQty))
		})
	}
}

func newTestCoordinator(ledger *MockLedger) *Coordinator {
	logger := zap.NewNop()
	selector := NewSelector(ledger, ledger, logger, nil)
	return NewCoordinator(selector, ledger, nil, nil, logger, nil)
}

// setupStoreOnly はバックルームに2個、棚が空の商品を用意
func setupStoreOnly(ctx context.Context, ledger *MockLedger) {
	ledger.On("GetItem", ctx, "SKU9").Return(&Item{Code: "SKU9", Name: "テスト商品", RestockLevel: int64Ptr(5)}, nil)
	ledger.On("SnapshotBatches", ctx, "SKU9", TierStore).Return([]BatchSnapshot{
		{BatchID: 1, ItemCode: "SKU9", Expiry: day(1), Tier: TierStore, Available: 2},
	}, nil)
}

// TestCoordinator_BackfillTransferFails は倉庫からの移動失敗のテスト
func TestCoordinator_BackfillTransferFails(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	coordinator := newTestCoordinator(ledger)
	setupStoreOnly(ctx, ledger)

	ledger.On("SnapshotBatches", ctx, "SKU9", TierShelf).Return([]BatchSnapshot{}, nil)
	ledger.On("TierQuantity", ctx, "SKU9", TierMain).Return(int64(10), nil)
	ledger.On("Transfer", ctx, mock.MatchedBy(func(req TransferRequest) bool {
		return req.From == TierMain && req.To == TierShelf && req.Quantity == 5
	})).Return(int64(0), errors.New("lock timeout"))

	pick, err := coordinator.Reserve(ctx, SmartRequest{
		ItemCode: "SKU9", Quantity: 6, Channel: ChannelPOS,
		ApproveSecondaryTier: true, ApproveMainBackfill: true,
	})

	assert.Nil(t, pick)
	assert.True(t, errors.Is(err, ErrTransferFailure))
	ledger.AssertExpectations(t)
}

// TestCoordinator_BackfillShortMove は移動数量が不足分に満たない場合のテスト
func TestCoordinator_BackfillShortMove(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	coordinator := newTestCoordinator(ledger)
	setupStoreOnly(ctx, ledger)

	ledger.On("SnapshotBatches", ctx, "SKU9", TierShelf).Return([]BatchSnapshot{}, nil)
	ledger.On("TierQuantity", ctx, "SKU9", TierMain).Return(int64(10), nil)
	ledger.On("Transfer", ctx, mock.AnythingOfType("inventory.TransferRequest")).Return(int64(3), nil)

	_, err := coordinator.Reserve(ctx, SmartRequest{
		ItemCode: "SKU9", Quantity: 6, Channel: ChannelPOS,
		ApproveSecondaryTier: true, ApproveMainBackfill: true,
	})

	assert.True(t, errors.Is(err, ErrTransferFailure))
}

// TestCoordinator_MainInsufficient は倉庫在庫が不足分に満たない場合のテスト
func TestCoordinator_MainInsufficient(t *testing.T) {
	ledger := new(MockLedger)
	ctx := context.Background()
	coordinator := newTestCoordinator(ledger)
	setupStoreOnly(ctx, ledger)

	ledger.On("SnapshotBatches", ctx, "SKU9", TierShelf).Return([]BatchSnapshot{
		{BatchID: 1, ItemCode: "SKU9", Expiry: day(1), Tier: TierShelf, Available: 1},
	}, nil)
	ledger.On("TierQuantity", ctx, "SKU9", TierMain).Return(int64(2), nil)

	_, err := coordinator.Reserve(ctx, SmartRequest{
		ItemCode: "SKU9", Quantity: 6, Channel: ChannelPOS,
		ApproveSecondaryTier: true, ApproveMainBackfill: true,
	})

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, TierMain, insufficient.Tier)
	assert.Equal(t, int64(3), insufficient.Requested)
	ledger.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything)
}

// TestCoordinator_BackfillPublishesTransfer は補填時のイベント発行のテスト
func TestCoordinator_BackfillPublishesTransfer(t *testing.T) {
	ledger := new(MockLedger)
	publisher := new(MockPublisher)
	ctx := context.Background()
	logger := zap.NewNop()
	coordinator := NewCoordinator(NewSelector(ledger, ledger, logger, nil), ledger, publisher, nil, logger, nil)
	setupStoreOnly(ctx, ledger)

	ledger.On("SnapshotBatches", ctx, "SKU9", TierShelf).Return([]BatchSnapshot{}, nil).Once()
	ledger.On("TierQuantity", ctx, "SKU9", TierMain).Return(int64(10), nil)
	ledger.On("Transfer", ctx, mock.AnythingOfType("inventory.TransferRequest")).Return(int64(5), nil)
	ledger.On("SnapshotBatches", ctx, "SKU9", TierShelf).Return([]BatchSnapshot{
		{BatchID: 1, ItemCode: "SKU9", Expiry: day(1), Tier: TierShelf, Available: 5},
	}, nil).Once()
	publisher.On("PublishStockTransferred", ctx, mock.MatchedBy(func(e StockTransferredEvent) bool {
		return e.From == TierMain && e.To == TierShelf && e.Requested == 5 && e.Moved == 5
	})).Return(nil)

	pick, err := coordinator.Reserve(ctx, SmartRequest{
		ItemCode: "SKU9", Quantity: 6, Channel: ChannelPOS,
		ApproveSecondaryTier: true, ApproveMainBackfill: true,
	})

	require.NoError(t, err)
	assert.True(t, pick.UsedMainToFulfill)
	assert.True(t, pick.BackfilledSecondaryToRestockLevel)
	assert.Equal(t, int64(2), pick.StoreReservations[0].Quantity)
	assert.Equal(t, int64(4), pick.ShelfReservations[0].Quantity)
	publisher.AssertExpectations(t)
}

func TestCoordinator_InvalidRequest(t *testing.T) {
	coordinator := newTestCoordinator(new(MockLedger))
	ctx := context.Background()

	_, err := coordinator.Reserve(ctx, SmartRequest{ItemCode: "SKU1", Quantity: 1, Channel: "KIOSK"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = coordinator.Reserve(ctx, SmartRequest{ItemCode: "SKU1", Quantity: 0, Channel: ChannelPOS})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
