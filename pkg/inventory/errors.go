package inventory

import (
	"errors"
	"fmt"
)

// Common inventory errors
// 共通の在庫エラー定義
//
// Typed errors below match these sentinels through errors.Is.

var (
	// ErrItemNotFound is returned when an item code does not resolve
	// 商品が存在しない場合のエラー
	ErrItemNotFound = errors.New("商品が見つかりません")

	// ErrInvalidArgument is returned for malformed input
	// 入力が不正な場合のエラー
	ErrInvalidArgument = errors.New("引数が不正です")

	// ErrInsufficientStock is returned when a tier cannot cover a request
	// 在庫不足の場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrApprovalRequired is returned when escalation needs an approval
	// 承認が必要な場合のエラー
	ErrApprovalRequired = errors.New("承認が必要です")

	// ErrConcurrencyConflict is returned when stock changed between planning and commit
	// 計画後に在庫が変化した場合のエラー
	ErrConcurrencyConflict = errors.New("同時実行による競合が発生しました")

	// ErrTransferFailure is returned when a tier transfer cannot complete
	// 階層間移動に失敗した場合のエラー
	ErrTransferFailure = errors.New("在庫移動に失敗しました")

	// ErrTxDone is returned when a ledger transaction is used after commit or rollback
	ErrTxDone = errors.New("トランザクションは既に終了しています")
)

// NotFoundError reports an unknown item code
// 商品コードが解決できないことを表現
type NotFoundError struct {
	ItemCode string `json:"item_code"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("商品が見つかりません: %s", e.ItemCode)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrItemNotFound
}

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// InsufficientStockError reports that a tier cannot cover a request
// 階層の在庫不足を表現
type InsufficientStockError struct {
	Tier      Tier  `json:"tier"`
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("在庫が不足しています [%s]: 要求 %d, 利用可能 %d", e.Tier, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ApprovalRequiredError reports the tier whose use must be approved
// 使用に承認が必要な階層を表現
type ApprovalRequiredError struct {
	Tier Tier `json:"tier"`
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("階層 %s の使用には承認が必要です", e.Tier)
}

func (e *ApprovalRequiredError) Is(target error) bool {
	return target == ErrApprovalRequired
}

// ConcurrencyConflictError reports a batch consumed by another caller
// 他の呼び出しによって消費されたバッチを表現
type ConcurrencyConflictError struct {
	BatchID int64 `json:"batch_id"`
	Tier    Tier  `json:"tier"`
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("同時実行エラー [batch:%d tier:%s]: 計画後に在庫が変化しました。再計画してください", e.BatchID, e.Tier)
}

func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// TransferError reports a failed tier transfer
// 階層間移動の失敗を表現
type TransferError struct {
	Reason string `json:"reason"`
	Cause  error  `json:"-"`
}

func (e *TransferError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("在庫移動に失敗しました: %s (原因: %v)", e.Reason, e.Cause)
	}
	return fmt.Sprintf("在庫移動に失敗しました: %s", e.Reason)
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferFailure
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewNotFoundError creates a new not-found error
func NewNotFoundError(itemCode string) *NotFoundError {
	return &NotFoundError{ItemCode: itemCode}
}

// NewInsufficientStockError creates a new insufficient stock error
// 新しい在庫不足エラーを作成
func NewInsufficientStockError(tier Tier, requested, available int64) *InsufficientStockError {
	return &InsufficientStockError{
		Tier:      tier,
		Requested: requested,
		Available: available,
	}
}

// NewApprovalRequiredError creates a new approval error
func NewApprovalRequiredError(tier Tier) *ApprovalRequiredError {
	return &ApprovalRequiredError{Tier: tier}
}

// NewConcurrencyConflictError creates a new concurrency conflict error
// 新しい同時実行エラーを作成
func NewConcurrencyConflictError(batchID int64, tier Tier) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{
		BatchID: batchID,
		Tier:    tier,
	}
}

// NewTransferError creates a new transfer error
func NewTransferError(reason string, cause error) *TransferError {
	return &TransferError{
		Reason: reason,
		Cause:  cause,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// BlockingTier returns the tier named by an approval, insufficient-stock or conflict error
// 処理を止めた階層を返す（該当しない場合は空）
func BlockingTier(err error) (Tier, bool) {
	var approval *ApprovalRequiredError
	if errors.As(err, &approval) {
		return approval.Tier, true
	}
	var insufficient *InsufficientStockError
	if errors.As(err, &insufficient) {
		return insufficient.Tier, true
	}
	var conflict *ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return conflict.Tier, true
	}
	return "", false
}
