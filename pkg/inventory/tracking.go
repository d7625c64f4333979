package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type contextKey string

// UserIDKey is the context key holding the acting user id
const UserIDKey contextKey = "user_id"

// WithUser returns a context carrying the acting user id
// 操作ユーザーIDをコンテキストに設定
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// userFromContext extracts user ID from context
// コンテキストからユーザーIDを取得
func userFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		return userID
	}
	return "system"
}

// MovementTracker reads the stock movement audit trail
// 在庫変動の監査証跡を扱う
type MovementTracker struct {
	reader       MovementReader
	logger       *zap.Logger
	defaultLimit int
}

// NewMovementTracker creates a new movement tracker
// 新しい変動追跡を作成
func NewMovementTracker(reader MovementReader, logger *zap.Logger, config *Config) *MovementTracker {
	config = config.withDefaults()
	return &MovementTracker{
		reader:       reader,
		logger:       logger,
		defaultLimit: config.HistoryLimit,
	}
}

// History returns the most recent movements of an item, newest first
// 商品の変動履歴を新しい順に取得
func (t *MovementTracker) History(ctx context.Context, itemCode string, limit int) ([]Movement, error) {
	if err := ValidateItemCode(itemCode); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = t.defaultLimit
	}

	movements, err := t.reader.ListMovements(ctx, itemCode, limit)
	if err != nil {
		return nil, NewStorageError("list_movements", "変動履歴取得に失敗しました", err)
	}

	t.logger.Debug("変動履歴取得完了",
		zap.String("item_code", itemCode),
		zap.Int("limit", limit),
		zap.Int("count", len(movements)),
	)

	return movements, nil
}

// newCommitMovement builds the audit record of one committed reservation
func newCommitMovement(r Reservation, reference, user string) *Movement {
	return &Movement{
		ID:        NewMovementID(),
		Type:      MovementTypeCommit,
		ItemCode:  r.ItemCode,
		BatchID:   r.BatchID,
		FromTier:  tierPtr(r.Tier),
		Quantity:  r.Quantity,
		Reference: reference,
		CreatedAt: time.Now(),
		CreatedBy: user,
	}
}

// NewTransferMovement builds the audit record of one batch moved between tiers.
// Storage adapters call it once per batch touched by a transfer.
// 階層間移動1バッチ分の監査記録を作成
func NewTransferMovement(req TransferRequest, batchID, quantity int64) *Movement {
	movementType := req.Type
	if movementType == "" {
		movementType = MovementTypeTransfer
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}
	return &Movement{
		ID:        NewMovementID(),
		Type:      movementType,
		ItemCode:  req.ItemCode,
		BatchID:   batchID,
		FromTier:  tierPtr(req.From),
		ToTier:    tierPtr(req.To),
		Quantity:  quantity,
		Reference: req.Reference,
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}
}

// LogPublisher publishes inventory events to a zap logger
// イベントをログに出力する発行者
type LogPublisher struct {
	logger *zap.Logger
}

var _ EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a new log-backed event publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishReservationCommitted(ctx context.Context, event ReservationCommittedEvent) error {
	p.logger.Info("reservation_committed",
		zap.Strings("item_codes", event.ItemCodes),
		zap.Int("reservations", len(event.Reservations)),
		zap.String("reference", event.Reference),
		zap.String("user_id", event.UserID),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

func (p *LogPublisher) PublishStockTransferred(ctx context.Context, event StockTransferredEvent) error {
	p.logger.Info("stock_transferred",
		zap.String("item_code", event.ItemCode),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)),
		zap.Int64("requested", event.Requested),
		zap.Int64("moved", event.Moved),
		zap.String("type", string(event.Type)),
		zap.String("reference", event.Reference),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}

func (p *LogPublisher) PublishLowStockAlert(ctx context.Context, event LowStockAlertEvent) error {
	p.logger.Warn("low_stock",
		zap.String("item_code", event.ItemCode),
		zap.String("tier", string(event.Tier)),
		zap.Int64("current_qty", event.CurrentQty),
		zap.Int64("threshold", event.Threshold),
		zap.Time("timestamp", event.Timestamp),
	)
	return nil
}
