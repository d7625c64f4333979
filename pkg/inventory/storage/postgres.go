package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/RUVAINMANETHKALANSOORIYA/SynexOutletStore-sub000/pkg/inventory"
)

// PostgreSQL error codes
const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqCheckViolation       = "23514"
	pqSerializationFailure = "40001"
)

// tierColumns maps each tier to its quantity column in the batches table
var tierColumns = map[inventory.Tier]string{
	inventory.TierShelf: "qty_shelf",
	inventory.TierStore: "qty_store",
	inventory.TierMain:  "qty_main",
}

// PoolConfig holds connection pool settings
// 接続プール設定を保持
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the default pool settings
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// PostgreSQLStorage implements the Ledger interface using PostgreSQL
// PostgreSQLを使用したLedgerインターフェースの実装
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ inventory.Ledger = (*PostgreSQLStorage)(nil)

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(dsn string, pool PoolConfig, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return &PostgreSQLStorage{
		db:     db,
		logger: logger,
	}, nil
}

// CreateItem creates a new catalog item
// 新しい商品を作成
func (s *PostgreSQLStorage) CreateItem(ctx context.Context, item *inventory.Item) error {
	if err := inventory.ValidateItem(item); err != nil {
		return err
	}

	query := `
		INSERT INTO items (code, name, unit_price, restock_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	_, err := s.db.ExecContext(ctx, query,
		item.Code,
		item.Name,
		item.UnitPrice,
		nullInt64(item.RestockLevel),
		time.Now(),
	)
	if err != nil {
		if isPQCode(err, pqUniqueViolation) {
			return fmt.Errorf("商品は既に存在します: %s", item.Code)
		}
		return fmt.Errorf("商品作成に失敗しました: %w", err)
	}

	return nil
}

// CreateBatch creates a new batch and returns its id
// 新しいバッチを作成しIDを返す
func (s *PostgreSQLStorage) CreateBatch(ctx context.Context, batch *inventory.Batch) (int64, error) {
	if err := inventory.ValidateBatch(batch); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO batches (item_code, expiry, qty_shelf, qty_store, qty_main, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		batch.ItemCode,
		nullTime(batch.Expiry),
		batch.QtyShelf,
		batch.QtyStore,
		batch.QtyMain,
		time.Now(),
	).Scan(&id)
	if err != nil {
		if isPQCode(err, pqForeignKeyViolation) {
			return 0, inventory.ErrItemNotFound
		}
		return 0, fmt.Errorf("バッチ作成に失敗しました: %w", err)
	}

	return id, nil
}

// GetItem retrieves an item by code
// 商品コードで商品を取得
func (s *PostgreSQLStorage) GetItem(ctx context.Context, itemCode string) (*inventory.Item, error) {
	query := `
		SELECT code, name, unit_price, restock_level, created_at, updated_at
		FROM items WHERE code = $1`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, itemCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrItemNotFound
		}
		return nil, fmt.Errorf("商品取得に失敗しました: %w", err)
	}

	return item, nil
}

// ListItems lists every item ordered by code
// 全商品をコード順に取得
func (s *PostgreSQLStorage) ListItems(ctx context.Context) ([]inventory.Item, error) {
	query := `
		SELECT code, name, unit_price, restock_level, created_at, updated_at
		FROM items ORDER BY code`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("商品一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("商品データスキャンに失敗しました: %w", err)
		}
		items = append(items, *item)
	}

	return items, rows.Err()
}

// SnapshotBatches returns the batches with stock in tier, FEFO ordered
// 指定階層に在庫のあるバッチをFEFO順に取得
func (s *PostgreSQLStorage) SnapshotBatches(ctx context.Context, itemCode string, tier inventory.Tier) ([]inventory.BatchSnapshot, error) {
	column, err := tierColumn(tier)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, expiry, %[1]s
		FROM batches
		WHERE item_code = $1 AND %[1]s > 0
		ORDER BY expiry ASC NULLS LAST, id ASC`, column)

	rows, err := s.db.QueryContext(ctx, query, itemCode)
	if err != nil {
		return nil, fmt.Errorf("バッチスナップショット取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var snapshot []inventory.BatchSnapshot
	for rows.Next() {
		var (
			b      inventory.BatchSnapshot
			expiry sql.NullTime
		)
		if err := rows.Scan(&b.BatchID, &expiry, &b.Available); err != nil {
			return nil, fmt.Errorf("バッチデータスキャンに失敗しました: %w", err)
		}
		if expiry.Valid {
			t := expiry.Time
			b.Expiry = &t
		}
		b.ItemCode = itemCode
		b.Tier = tier
		snapshot = append(snapshot, b)
	}

	return snapshot, rows.Err()
}

// TierQuantity sums the quantity of an item held in tier
// 指定階層の商品合計数量を取得
func (s *PostgreSQLStorage) TierQuantity(ctx context.Context, itemCode string, tier inventory.Tier) (int64, error) {
	column, err := tierColumn(tier)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COALESCE(SUM(%s), 0) FROM batches WHERE item_code = $1`, column)

	var total int64
	if err := s.db.QueryRowContext(ctx, query, itemCode).Scan(&total); err != nil {
		return 0, fmt.Errorf("階層数量取得に失敗しました: %w", err)
	}

	return total, nil
}

// Transfer moves up to req.Quantity units from req.From to req.To in FEFO order.
// The source rows are locked for the duration of its own transaction.
// FEFO順に在庫を移動（移動元の行は独立したトランザクション内でロック）
func (s *PostgreSQLStorage) Transfer(ctx context.Context, req inventory.TransferRequest) (moved int64, err error) {
	if err := inventory.ValidateTransfer(req); err != nil {
		return 0, err
	}
	from, _ := tierColumn(req.From)
	to, _ := tierColumn(req.To)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	selectQuery := fmt.Sprintf(`
		SELECT id, %[1]s
		FROM batches
		WHERE item_code = $1 AND %[1]s > 0
		  AND ($2::timestamptz IS NULL OR expiry IS NULL OR expiry >= $2::timestamptz)
		ORDER BY expiry ASC NULLS LAST, id ASC
		FOR UPDATE`, from)

	rows, err := tx.QueryContext(ctx, selectQuery, req.ItemCode, nullTime(req.ExpiryCutoff))
	if err != nil {
		return 0, fmt.Errorf("移動元バッチ取得に失敗しました: %w", err)
	}

	var ids, quantities []int64
	for moved < req.Quantity && rows.Next() {
		var id, available int64
		if err = rows.Scan(&id, &available); err != nil {
			rows.Close()
			return 0, fmt.Errorf("バッチデータスキャンに失敗しました: %w", err)
		}
		take := min(available, req.Quantity-moved)
		ids = append(ids, id)
		quantities = append(quantities, take)
		moved += take
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("移動元バッチ取得に失敗しました: %w", err)
	}

	if len(ids) == 0 {
		if err = tx.Commit(); err != nil {
			return 0, fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
		}
		return 0, nil
	}

	updateQuery := fmt.Sprintf(`
		UPDATE batches AS b
		SET %[1]s = b.%[1]s - m.qty, %[2]s = b.%[2]s + m.qty
		FROM unnest($1::bigint[], $2::bigint[]) AS m(id, qty)
		WHERE b.id = m.id`, from, to)

	if _, err = tx.ExecContext(ctx, updateQuery, pq.Array(ids), pq.Array(quantities)); err != nil {
		if isPQCode(err, pqCheckViolation) || isPQCode(err, pqSerializationFailure) {
			s.logger.Warn("階層間移動が競合しました",
				zap.String("item_code", req.ItemCode),
				zap.Int64s("batch_ids", ids),
				zap.Error(err),
			)
			return 0, transferConflict(req, ids, err)
		}
		return 0, fmt.Errorf("在庫移動に失敗しました: %w", err)
	}

	for i, id := range ids {
		if err = insertMovement(ctx, tx, inventory.NewTransferMovement(req, id, quantities[i])); err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
	}

	s.logger.Debug("階層間移動完了",
		zap.String("item_code", req.ItemCode),
		zap.String("from", string(req.From)),
		zap.String("to", string(req.To)),
		zap.Int64("requested", req.Quantity),
		zap.Int64("moved", moved),
		zap.Int("batches", len(ids)),
	)

	return moved, nil
}

// ListMovements returns the newest movements of an item first
// 商品の変動履歴を新しい順に取得
func (s *PostgreSQLStorage) ListMovements(ctx context.Context, itemCode string, limit int) ([]inventory.Movement, error) {
	query := `
		SELECT id, type, item_code, batch_id, from_tier, to_tier, quantity, reference, created_at, created_by
		FROM stock_movements
		WHERE item_code = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, itemCode, limit)
	if err != nil {
		return nil, fmt.Errorf("変動履歴取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var movements []inventory.Movement
	for rows.Next() {
		var (
			m        inventory.Movement
			fromTier sql.NullString
			toTier   sql.NullString
		)
		err := rows.Scan(
			&m.ID,
			&m.Type,
			&m.ItemCode,
			&m.BatchID,
			&fromTier,
			&toTier,
			&m.Quantity,
			&m.Reference,
			&m.CreatedAt,
			&m.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("変動データスキャンに失敗しました: %w", err)
		}
		if fromTier.Valid {
			t := inventory.Tier(fromTier.String)
			m.FromTier = &t
		}
		if toTier.Valid {
			t := inventory.Tier(toTier.String)
			m.ToTier = &t
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

// Begin starts a new ledger transaction
// 新しい台帳トランザクションを開始
func (s *PostgreSQLStorage) Begin(ctx context.Context) (inventory.LedgerTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

// Ping checks database connectivity
// データベース接続を確認
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

// postgresTx wraps sql.Tx with conditional tier decrements
type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) ConditionalDecrement(ctx context.Context, itemCode string, batchID int64, tier inventory.Tier, qty int64) (bool, error) {
	column, err := tierColumn(tier)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`UPDATE batches SET %[1]s = %[1]s - $1 WHERE id = $2 AND item_code = $3 AND %[1]s >= $1`, column)

	result, err := t.tx.ExecContext(ctx, query, qty, batchID, itemCode)
	if err != nil {
		if isPQCode(err, pqCheckViolation) || isPQCode(err, pqSerializationFailure) {
			return false, nil
		}
		return false, fmt.Errorf("在庫減算に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	// 0行は他の呼び出しが先に在庫を消費したか、バッチが商品に属さないことを示す
	return rowsAffected == 1, nil
}

func (t *postgresTx) RecordMovement(ctx context.Context, movement *inventory.Movement) error {
	return insertMovement(ctx, t.tx, movement)
}

func (t *postgresTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return inventory.ErrTxDone
		}
		return err
	}
	return nil
}

func (t *postgresTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return inventory.ErrTxDone
		}
		return err
	}
	return nil
}

// ヘルパー関数

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*inventory.Item, error) {
	var (
		item         inventory.Item
		restockLevel sql.NullInt64
	)
	err := row.Scan(
		&item.Code,
		&item.Name,
		&item.UnitPrice,
		&restockLevel,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if restockLevel.Valid {
		level := restockLevel.Int64
		item.RestockLevel = &level
	}
	return &item, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m *inventory.Movement) error {
	query := `
		INSERT INTO stock_movements (id, type, item_code, batch_id, from_tier, to_tier, quantity, reference, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.ExecContext(ctx, query,
		m.ID,
		string(m.Type),
		m.ItemCode,
		m.BatchID,
		nullTier(m.FromTier),
		nullTier(m.ToTier),
		m.Quantity,
		m.Reference,
		m.CreatedAt,
		m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("在庫変動記録に失敗しました: %w", err)
	}
	return nil
}

func tierColumn(tier inventory.Tier) (string, error) {
	column, ok := tierColumns[tier]
	if !ok {
		return "", inventory.NewValidationError("tier", "無効な在庫階層です", string(tier))
	}
	return column, nil
}

// transferConflict reports a transfer that lost a race with another writer
func transferConflict(req inventory.TransferRequest, batchIDs []int64, cause error) error {
	reason := fmt.Sprintf("%s の %s から %s への移動が他の処理と競合しました (batches=%v)", req.ItemCode, req.From, req.To, batchIDs)
	return inventory.NewTransferError(reason, fmt.Errorf("%w: %w", inventory.ErrConcurrencyConflict, cause))
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func nullTier(t *inventory.Tier) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*t), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
