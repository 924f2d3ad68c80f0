package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/striver-24/ai-resume-analyser/internal/metrics"
	"github.com/striver-24/ai-resume-analyser/internal/middleware"
)

// healthCheckTimeout はヘルスチェックでのDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// Pinger はヘルスチェックで疎通確認する依存先。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
// DB未設定の場合はSessionFinder、KVService、DBをnilにする。
// ストレージ未設定の場合はResumeServiceをnilにする。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// キーバリュー
	KVService KVServiceInterface

	// 履歴書
	ResumeService ResumeServiceInterface

	// ヘルスチェック
	DB Pinger
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → ルート
//	/api/* (認証以外) はさらに Session → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.DB))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, collector)
	r.Handle("/auth", authHandler)
	r.Handle("/api/auth", authHandler)

	// --- 認証が必要なルート ---
	// セッションストアがない場合は登録しない
	if deps.SessionFinder == nil {
		return r
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		if deps.KVService != nil {
			kvHandler := NewKVHandler(deps.KVService)
			r.Get("/api/kv", kvHandler.List)
			r.Get("/api/kv/*", kvHandler.Get)
			r.Put("/api/kv/*", kvHandler.Set)
			r.Delete("/api/kv/*", kvHandler.Delete)
		}

		if deps.ResumeService != nil {
			resumeHandler := NewResumeHandler(deps.ResumeService)
			r.Route("/api/resumes", func(r chi.Router) {
				r.Get("/", resumeHandler.List)
				// アップロードは専用のレート制限を追加
				r.With(deps.RateLimiter.UploadMiddleware()).Post("/", resumeHandler.Upload)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", resumeHandler.Get)
					r.Delete("/", resumeHandler.Delete)
					r.Get("/file", resumeHandler.Download)
				})
			})
		}
	})

	return r
}

// healthHandler はDBが設定されていれば疎通を確認し、結果を返す。
// GET /health
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}

		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// NewWorkerRouter はワーカープロセス用に/healthと/metricsのみを公開するルーターを返す。
func NewWorkerRouter(db Pinger, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Get("/health", healthHandler(db))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	return r
}
