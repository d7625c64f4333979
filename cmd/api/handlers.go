package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/RUVAINMANETHKALANSOORIYA/SynexOutletStore-sub000/pkg/inventory"
)

// HealthChecker reports whether the backing ledger is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handlers for the stock reservation API
// 在庫予約API用のHTTPハンドラーを保持
type Handlers struct {
	engine   inventory.ReservationEngine
	health   HealthChecker
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(engine inventory.ReservationEngine, health HealthChecker, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:   engine,
		health:   health,
		validate: validator.New(),
		logger:   logger,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Tier    string      `json:"tier,omitempty"` // 承認・在庫不足の対象階層
}

// PlanRequest represents request to plan a reservation on the primary tier
// 一次階層での予約計画リクエストを表現
type PlanRequest struct {
	ItemCode string `json:"item_code" validate:"required,max=64"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Channel  string `json:"channel" validate:"required,oneof=POS ONLINE"`
}

// SmartReserveRequest represents request for a channel-aware reservation
// チャネル対応のスマート予約リクエストを表現
type SmartReserveRequest struct {
	ItemCode             string `json:"item_code" validate:"required,max=64"`
	Quantity             int64  `json:"quantity" validate:"required,gt=0"`
	Channel              string `json:"channel" validate:"required,oneof=POS ONLINE"`
	ApproveSecondaryTier bool   `json:"approve_secondary_tier"`
	ApproveMainBackfill  bool   `json:"approve_main_backfill"`
}

// CommitRequest represents request to commit reservations of one tier
// 単一階層の予約確定リクエストを表現
type CommitRequest struct {
	Tier         string                  `json:"tier" validate:"required,oneof=SHELF STORE"`
	Reservations []inventory.Reservation `json:"reservations" validate:"required,min=1,dive"`
}

// CommitPickRequest represents request to commit a smart pick
// スマート予約結果の確定リクエストを表現
type CommitPickRequest struct {
	ItemCode          string                  `json:"item_code"`
	ShelfReservations []inventory.Reservation `json:"shelf_reservations" validate:"dive"`
	StoreReservations []inventory.Reservation `json:"store_reservations" validate:"dive"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Warn("ヘルスチェックに失敗しました", zap.Error(err))
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	h.sendJSON(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
			"service":   "stock-reservation",
		},
	})
}

// GetStockLevels handles per-tier stock level requests
// 階層別在庫数量の照会を処理
func (h *Handlers) GetStockLevels(w http.ResponseWriter, r *http.Request) {
	itemCode := mux.Vars(r)["itemCode"]

	levels, err := h.engine.StockLevels(r.Context(), itemCode)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, levels)
}

// GetBatches handles FEFO batch snapshot requests
// FEFO順バッチスナップショットの照会を処理
func (h *Handlers) GetBatches(w http.ResponseWriter, r *http.Request) {
	itemCode := mux.Vars(r)["itemCode"]
	tier := inventory.Tier(r.URL.Query().Get("tier"))

	batches, err := h.engine.Batches(r.Context(), itemCode, tier)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, batches)
}

// GetMovements handles movement history requests
// 在庫変動履歴の照会を処理
func (h *Handlers) GetMovements(w http.ResponseWriter, r *http.Request) {
	itemCode := mux.Vars(r)["itemCode"]

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			h.sendError(w, http.StatusBadRequest, "無効なlimitパラメータです")
			return
		}
		limit = parsed
	}

	movements, err := h.engine.History(r.Context(), itemCode, limit)
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, movements)
}

// PlanReservation handles primary-tier planning requests
// 一次階層の予約計画リクエストを処理
func (h *Handlers) PlanReservation(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	plan, err := h.engine.PlanReservation(requestContext(r), req.ItemCode, req.Quantity, inventory.Channel(req.Channel))
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, plan)
}

// ReserveSmart handles channel-aware reservation requests
// スマート予約リクエストを処理
func (h *Handlers) ReserveSmart(w http.ResponseWriter, r *http.Request) {
	var req SmartReserveRequest
	if !h.decode(w, r, &req) {
		return
	}

	pick, err := h.engine.ReserveSmart(requestContext(r), inventory.SmartRequest{
		ItemCode:             req.ItemCode,
		Quantity:             req.Quantity,
		Channel:              inventory.Channel(req.Channel),
		ApproveSecondaryTier: req.ApproveSecondaryTier,
		ApproveMainBackfill:  req.ApproveMainBackfill,
	})
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, pick)
}

// Commit handles single-tier commit requests
// 単一階層の予約確定リクエストを処理
func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.engine.Commit(requestContext(r), req.Reservations, inventory.Tier(req.Tier)); err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"committed": len(req.Reservations),
		"tier":      req.Tier,
	})
}

// CommitPick handles smart pick commit requests
// スマート予約結果の確定リクエストを処理
func (h *Handlers) CommitPick(w http.ResponseWriter, r *http.Request) {
	var req CommitPickRequest
	if !h.decode(w, r, &req) {
		return
	}

	pick := &inventory.SmartPick{
		ItemCode:          req.ItemCode,
		ShelfReservations: req.ShelfReservations,
		StoreReservations: req.StoreReservations,
	}
	if err := h.engine.CommitPick(requestContext(r), pick); err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"committed": len(pick.Reservations()),
		"quantity":  pick.Total(),
	})
}

// RunRestock handles manual restock sweep requests
// 棚補充の手動実行リクエストを処理
func (h *Handlers) RunRestock(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.RunRestock(requestContext(r))
	if err != nil {
		h.sendEngineError(w, err)
		return
	}

	h.sendSuccess(w, result)
}

// ヘルパーメソッド

// requestContext attaches the acting user to the request context
func requestContext(r *http.Request) context.Context {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		user = "api_user"
	}
	return inventory.WithUser(r.Context(), user)
}

// decode parses and validates a JSON body; it writes the error response itself
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.sendError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "入力値が無効です: " + fe.Namespace() + " (" + fe.Tag() + ")"
	}
	return "入力値が無効です"
}

// sendEngineError maps engine errors to HTTP status codes
// エンジンのエラーをHTTPステータスに変換して送信
func (h *Handlers) sendEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, inventory.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrApprovalRequired):
		status = http.StatusForbidden
	case errors.Is(err, inventory.ErrInsufficientStock):
		status = http.StatusConflict
	case errors.Is(err, inventory.ErrTransferFailure):
		h.logger.Warn("階層間移動に失敗しました", zap.Error(err))
		status = http.StatusConflict
	case errors.Is(err, inventory.ErrConcurrencyConflict):
		status = http.StatusConflict
	default:
		h.logger.Error("リクエスト処理に失敗しました", zap.Error(err))
		message = "内部エラーが発生しました"
	}

	response := APIResponse{
		Success: false,
		Error:   message,
	}
	if tier, ok := inventory.BlockingTier(err); ok {
		response.Tier = string(tier)
	}

	h.sendJSON(w, status, response)
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

func (h *Handlers) sendJSON(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}
