package inventory

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockLedger はテスト用のLedgerモック
type MockLedger struct {
	mock.Mock
}

var _ Ledger = (*MockLedger)(nil)

func (m *MockLedger) GetItem(ctx context.Context, itemCode string) (*Item, error) {
	args := m.Called(ctx, itemCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockLedger) ListItems(ctx context.Context) ([]Item, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Item), args.Error(1)
}

func (m *MockLedger) SnapshotBatches(ctx context.Context, itemCode string, tier Tier) ([]BatchSnapshot, error) {
	args := m.Called(ctx, itemCode, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BatchSnapshot), args.Error(1)
}

func (m *MockLedger) TierQuantity(ctx context.Context, itemCode string, tier Tier) (int64, error) {
	args := m.Called(ctx, itemCode, tier)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) Transfer(ctx context.Context, req TransferRequest) (int64, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) Begin(ctx context.Context) (LedgerTx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(LedgerTx), args.Error(1)
}

func (m *MockLedger) ListMovements(ctx context.Context, itemCode string, limit int) ([]Movement, error) {
	args := m.Called(ctx, itemCode, limit)
	return args.Get(0).([]Movement), args.Error(1)
}

func (m *MockLedger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLedger) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTx はテスト用のLedgerTxモック
type MockTx struct {
	mock.Mock
}

var _ LedgerTx = (*MockTx)(nil)

func (m *MockTx) ConditionalDecrement(ctx context.Context, itemCode string, batchID int64, tier Tier, qty int64) (bool, error) {
	args := m.Called(ctx, itemCode, batchID, tier, qty)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) RecordMovement(ctx context.Context, movement *Movement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockPublisher はテスト用のEventPublisherモック
type MockPublisher struct {
	mock.Mock
}

var _ EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) PublishReservationCommitted(ctx context.Context, event ReservationCommittedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishStockTransferred(ctx context.Context, event StockTransferredEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func int64Ptr(v int64) *int64 {
	return &v
}
