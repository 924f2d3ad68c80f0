package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/striver-24/ai-resume-analyser/internal/auth"
	"github.com/striver-24/ai-resume-analyser/internal/config"
	"github.com/striver-24/ai-resume-analyser/internal/database"
	"github.com/striver-24/ai-resume-analyser/internal/handler"
	"github.com/striver-24/ai-resume-analyser/internal/kv"
	"github.com/striver-24/ai-resume-analyser/internal/logger"
	"github.com/striver-24/ai-resume-analyser/internal/metrics"
	"github.com/striver-24/ai-resume-analyser/internal/middleware"
	"github.com/striver-24/ai-resume-analyser/internal/repository"
	"github.com/striver-24/ai-resume-analyser/internal/resume"
	"github.com/striver-24/ai-resume-analyser/internal/statetoken"
	miniostore "github.com/striver-24/ai-resume-analyser/internal/storage/minio"
	"github.com/striver-24/ai-resume-analyser/internal/worker/cleanup"
)

const (
	dbPingTimeout       = 5 * time.Second
	storageDialTimeout  = 10 * time.Second
	shutdownGracePeriod = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを再構成
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// SIGINTまたはSIGTERMを受信するとグレースフルシャットダウンを行う。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return RunContext(ctx, w, args)
}

// RunContext はコマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// serveとworkerはctxがキャンセルされるまでブロックする。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateAction(args))
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DATABASE_URLが未設定の場合はセッションストアなしで起動し、
// 認証状態は常に未認証、サインインのコールバックはserver_errorとなる。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. メトリクス
	registry := newRegistry()
	collector := metrics.NewCollector(registry)

	// 2. DB接続とリポジトリ
	// 未設定時はnilインターフェースのまま残す
	var (
		pinger        handler.Pinger
		sessionFinder middleware.SessionFinder
		userRepo      repository.UserRepository
		sessionRepo   repository.SessionRepository
		kvRepo        repository.KVRepository
		resumeRepo    repository.ResumeRepository
	)
	if cfg.HasDatabase() {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database connection established")

		sessions := repository.NewPostgresSessionRepo(db)
		pinger = db
		sessionFinder = sessions
		sessionRepo = sessions
		userRepo = repository.NewPostgresUserRepo(db)
		kvRepo = repository.NewPostgresKVRepo(db)
		resumeRepo = repository.NewPostgresResumeRepo(db)
	} else {
		slog.Warn("DATABASE_URL is not set; starting without session store")
	}

	// 3. 認証サービス
	stateCodec, err := statetoken.NewCodec(cfg.SessionSecret, statetoken.WithTTL(cfg.StateTokenTTL))
	if err != nil {
		return fmt.Errorf("failed to create state codec: %w", err)
	}
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		HTTPClient:   &http.Client{Timeout: cfg.OAuthHTTPTimeout},
	})
	authService := auth.NewService(
		oauthProvider, stateCodec, userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	// 4. ルーターの依存関係
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionFinder,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Metrics:         collector,
		MetricsGatherer: registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		DB: pinger,
	}

	if kvRepo != nil {
		deps.KVService = kv.NewService(kvRepo)
	}

	// 5. 履歴書ストレージ（DBとストレージの両方が必要）
	if cfg.HasStorage() {
		if resumeRepo == nil {
			slog.Warn("STORAGE_ENDPOINT is set but DATABASE_URL is not; resume API disabled")
		} else {
			store, err := dialStorage(ctx, cfg)
			if err != nil {
				return err
			}
			deps.ResumeService = resume.NewService(resumeRepo, store, cfg.ResumeMaxSize, collector)
			slog.Info("object storage connected", slog.String("bucket", cfg.StorageBucket))
		}
	}

	// 6. HTTPサーバーの起動
	return serveHTTP(ctx, newHTTPServer(cfg.ServerPort, handler.NewRouter(deps)), "API server")
}

// newRegistry はランタイムのメトリクスを登録済みのレジストリを返す。
func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serveHTTP はctxがキャンセルされるまでserverを起動し、その後グレースフルシャットダウンする。
func serveHTTP(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

func dialStorage(ctx context.Context, cfg *config.Config) (*miniostore.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, storageDialTimeout)
	defer cancel()

	store, err := miniostore.Dial(ctx, miniostore.Config{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to object storage: %w", err)
	}
	return store, nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブをctxがキャンセルされるまで定期実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	registry := newRegistry()
	job := cleanup.NewSessionPurgeJob(
		repository.NewPostgresSessionRepo(db), slog.Default(), metrics.NewCollector(registry),
	)
	job.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting", slog.Duration("cleanup_interval", job.Interval))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobDone := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(jobDone)
	}()

	// ヘルスチェックとメトリクスのみを公開し、ctxがキャンセルされるまでブロック
	err = serveHTTP(ctx, newHTTPServer(cfg.ServerPort, handler.NewWorkerRouter(db, registry)), "worker metrics server")
	cancel()
	<-jobDone
	return err
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("rolled back one migration")
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}

	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
