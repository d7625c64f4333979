package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RUVAINMANETHKALANSOORIYA/SynexOutletStore-sub000/internal/config"
	"github.com/RUVAINMANETHKALANSOORIYA/SynexOutletStore-sub000/pkg/inventory"
	"github.com/RUVAINMANETHKALANSOORIYA/SynexOutletStore-sub000/pkg/inventory/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// データベース接続
	ledger, err := storage.NewPostgreSQLStorage(cfg.DSN(), storage.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer ledger.Close()

	// メトリクス初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := inventory.NewMetrics(registry)
	if err != nil {
		logger.Fatal("メトリクス登録に失敗しました", zap.Error(err))
	}

	// 予約エンジン初期化
	engine := inventory.NewEngine(ledger, inventory.NewLogPublisher(logger), metrics, logger, &cfg.Inventory)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 棚補充ワーカー
	if interval := engine.Config().RestockInterval; interval > 0 {
		logger.Info("棚補充ワーカーを開始します", zap.Duration("interval", interval))
		go engine.Restocker().Start(inventory.WithUser(ctx, "restocker"), interval)
	}

	// HTTPハンドラー設定
	handlers := NewHandlers(engine, ledger, logger)
	var metricsHandler http.Handler
	if cfg.API.EnableMetrics {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	router := setupRouter(handlers, metricsHandler, cfg.API.EnableCORS)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("在庫予約APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")
	stop()

	// グレースフルシャットダウン
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, metrics http.Handler, enableCORS bool) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// 在庫照会
	api.HandleFunc("/items/{itemCode}/stock", handlers.GetStockLevels).Methods("GET")
	api.HandleFunc("/items/{itemCode}/batches", handlers.GetBatches).Methods("GET")
	api.HandleFunc("/items/{itemCode}/movements", handlers.GetMovements).Methods("GET")

	// 予約
	api.HandleFunc("/reservations/plan", handlers.PlanReservation).Methods("POST")
	api.HandleFunc("/reservations/smart", handlers.ReserveSmart).Methods("POST")
	api.HandleFunc("/reservations/commit", handlers.Commit).Methods("POST")
	api.HandleFunc("/reservations/commit-pick", handlers.CommitPick).Methods("POST")

	// 棚補充
	api.HandleFunc("/restock/run", handlers.RunRestock).Methods("POST")

	// CORS設定
	if enableCORS {
		router.Use(corsMiddleware)
	}

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	return router
}

// corsMiddleware sets permissive CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// リクエスト処理
			next.ServeHTTP(rec, r)

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.Int("status", rec.status),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
