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

// TestCommitter_Commit は全予約の確定のテスト
func TestCommitter_Commit(t *testing.T) {
	ledger := new(MockLedger)
	tx := new(MockTx)
	publisher := new(MockPublisher)
	committer := NewCommitter(ledger, publisher, nil, zap.NewNop())
	ctx := WithUser(context.Background(), "cashier-1")

	reservations := []Reservation{
		{BatchID: 1, ItemCode: "SKU1", Quantity: 2},
		{BatchID: 2, ItemCode: "SKU1", Quantity: 3},
	}

	ledger.On("Begin", ctx).Return(tx, nil)
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(1), TierShelf, int64(2)).Return(true, nil)
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(2), TierShelf, int64(3)).Return(true, nil)
	tx.On("RecordMovement", ctx, mock.MatchedBy(func(m *Movement) bool {
		return m.Type == MovementTypeCommit && m.CreatedBy == "cashier-1" && *m.FromTier == TierShelf && m.ToTier == nil
	})).Return(nil).Twice()
	tx.On("Commit").Return(nil)
	publisher.On("PublishReservationCommitted", ctx, mock.MatchedBy(func(e ReservationCommittedEvent) bool {
		return len(e.Reservations) == 2 && e.UserID == "cashier-1" && assert.ObjectsAreEqual([]string{"SKU1"}, e.ItemCodes)
	})).Return(nil)

	err := committer.Commit(ctx, reservations, TierShelf)

	assert.NoError(t, err)
	tx.AssertNotCalled(t, "Rollback")
	ledger.AssertExpectations(t)
	tx.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

// TestCommitter_ConflictRollsBack は競合時に全体がロールバックされることのテスト
func TestCommitter_ConflictRollsBack(t *testing.T) {
	ledger := new(MockLedger)
	tx := new(MockTx)
	committer := NewCommitter(ledger, nil, nil, zap.NewNop())
	ctx := context.Background()

	reservations := []Reservation{
		{BatchID: 1, ItemCode: "SKU1", Quantity: 2},
		{BatchID: 2, ItemCode: "SKU1", Quantity: 3},
	}

	ledger.On("Begin", ctx).Return(tx, nil)
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(1), TierStore, int64(2)).Return(true, nil)
	tx.On("RecordMovement", ctx, mock.AnythingOfType("*inventory.Movement")).Return(nil)
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(2), TierStore, int64(3)).Return(false, nil)
	tx.On("Rollback").Return(nil)

	err := committer.Commit(ctx, reservations, TierStore)

	assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	var conflict *ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.BatchID)
	assert.Equal(t, TierStore, conflict.Tier)
	tx.AssertCalled(t, "Rollback")
	tx.AssertNotCalled(t, "Commit")
}

// TestCommitter_StorageFailureRollsBack はストレージエラー時のロールバックのテスト
func TestCommitter_StorageFailureRollsBack(t *testing.T) {
	ledger := new(MockLedger)
	tx := new(MockTx)
	committer := NewCommitter(ledger, nil, nil, zap.NewNop())
	ctx := context.Background()

	ledger.On("Begin", ctx).Return(tx, nil)
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(1), TierShelf, int64(1)).Return(false, errors.New("deadlock detected"))
	tx.On("Rollback").Return(ErrTxDone)

	err := committer.Commit(ctx, []Reservation{{BatchID: 1, ItemCode: "SKU1", Quantity: 1}}, TierShelf)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "conditional_decrement", storageErr.Operation)
	tx.AssertCalled(t, "Rollback")
}

// TestCommitter_Validation は確定前のバリデーションのテスト
func TestCommitter_Validation(t *testing.T) {
	ledger := new(MockLedger)
	committer := NewCommitter(ledger, nil, nil, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name         string
		reservations []Reservation
		tier         Tier
	}{
		{"empty", nil, TierShelf},
		{"main tier", []Reservation{{BatchID: 1, ItemCode: "SKU1", Quantity: 1}}, TierMain},
		{"zero quantity", []Reservation{{BatchID: 1, ItemCode: "SKU1", Quantity: 0}}, TierShelf},
		{"missing batch", []Reservation{{ItemCode: "SKU1", Quantity: 1}}, TierShelf},
		{"tier mismatch", []Reservation{{BatchID: 1, ItemCode: "SKU1", Tier: TierStore, Quantity: 1}}, TierShelf},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := committer.Commit(ctx, tt.reservations, tt.tier)
			assert.True(t, errors.Is(err, ErrInvalidArgument), "got %v", err)
		})
	}

	ledger.AssertNotCalled(t, "Begin", mock.Anything)
}

// TestCommitter_CommitPick はスマート予約結果を1トランザクションで確定することのテスト
func TestCommitter_CommitPick(t *testing.T) {
	ledger := new(MockLedger)
	tx := new(MockTx)
	committer := NewCommitter(ledger, nil, nil, zap.NewNop())
	ctx := context.Background()

	pick := &SmartPick{
		ItemCode:          "SKU1",
		StoreReservations: []Reservation{{BatchID: 1, ItemCode: "SKU1", Tier: TierStore, Quantity: 2}},
		ShelfReservations: []Reservation{{BatchID: 1, ItemCode: "SKU1", Tier: TierShelf, Quantity: 4}},
	}

	ledger.On("Begin", ctx).Return(tx, nil).Once()
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(1), TierStore, int64(2)).Return(true, nil)
	tx.On("ConditionalDecrement", ctx, "SKU1", int64(1), TierShelf, int64(4)).Return(true, nil)
	tx.On("RecordMovement", ctx, mock.AnythingOfType("*inventory.Movement")).Return(nil)
	tx.On("Commit").Return(nil)

	err := committer.CommitPick(ctx, pick)

	assert.NoError(t, err)
	ledger.AssertNumberOfCalls(t, "Begin", 1)
	tx.AssertNumberOfCalls(t, "RecordMovement", 2)
	tx.AssertExpectations(t)
}

func TestCommitter_CommitPickEmpty(t *testing.T) {
	committer := NewCommitter(new(MockLedger), nil, nil, zap.NewNop())

	assert.True(t, errors.Is(committer.CommitPick(context.Background(), nil), ErrInvalidArgument))
	assert.True(t, errors.Is(committer.CommitPick(context.Background(), &SmartPick{ItemCode: "SKU1"}), ErrInvalidArgument))
}
