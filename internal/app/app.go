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

	"github.com/hitoshi/restockwatch/internal/config"
	"github.com/hitoshi/restockwatch/internal/database"
	"github.com/hitoshi/restockwatch/internal/filter"
	"github.com/hitoshi/restockwatch/internal/handler"
	"github.com/hitoshi/restockwatch/internal/logger"
	"github.com/hitoshi/restockwatch/internal/metrics"
	"github.com/hitoshi/restockwatch/internal/middleware"
	"github.com/hitoshi/restockwatch/internal/monitor"
	"github.com/hitoshi/restockwatch/internal/notify"
	"github.com/hitoshi/restockwatch/internal/repository"
	"github.com/hitoshi/restockwatch/internal/scraper"
	"github.com/hitoshi/restockwatch/internal/security"
	"github.com/hitoshi/restockwatch/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（既存の環境変数が優先される）
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.LevelFromEnv())

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandScan:
		return runScan(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// components は監視エンジンとその依存関係をまとめたもの。
type components struct {
	db       *sql.DB
	engine   *monitor.Engine
	cleanup  *cleanup.CleanupJob
	registry *prometheus.Registry
	closers  []func() error
}

// close は外部接続を逆順に閉じる。
func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			slog.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}

// buildComponents はDB接続を開き、全依存関係をワイヤリングする。
func buildComponents(cfg *config.Config) (*components, error) {
	log := slog.Default()
	c := &components{}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.db = db
	c.closers = append(c.closers, db.Close)

	if err := db.Ping(); err != nil {
		c.close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(c.registry)

	// 3. リポジトリの初期化
	regionRepo := repository.NewPostgresRegionRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	restockRepo := repository.NewPostgresRestockRepo(db)
	scanLogRepo := repository.NewPostgresScanLogRepo(db)
	configRepo := repository.NewPostgresMonitoringConfigRepo(db)
	filterRepo := repository.NewPostgresFilterRepo(db)
	recipientRepo := repository.NewPostgresRecipientRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)

	// 4. 商品一覧の取得処理
	guard := security.NewSSRFGuard()
	fetchOpts := scraper.Options{
		Timeout:   cfg.FetchTimeout,
		MaxSize:   cfg.FetchMaxSize,
		UserAgent: cfg.FetchUserAgent,
		Metrics:   collector,
	}
	registry := scraper.NewRegistry(guard,
		scraper.NewFeedFetcher(guard, log, fetchOpts),
		scraper.NewHTMLFetcher(guard, scraper.DefaultSelectors(), log, fetchOpts),
	)

	// 5. 通知チャネル
	senders, err := c.buildSenders(cfg)
	if err != nil {
		c.close()
		return nil, err
	}
	router := notify.NewRouter(senders...)
	if len(router.Channels()) == 0 {
		slog.Warn("no notification channel configured; deliveries will be recorded as failed")
	}

	matcher := filter.NewMatcher(filterRepo, log)
	dispatcher := notify.NewDispatcher(
		configRepo, recipientRepo, notificationRepo, restockRepo,
		matcher, router, log,
		notify.WithRateLimit(cfg.NotifyRatePerSecond),
		notify.WithMetrics(collector),
	)

	// 6. 監視エンジン
	recorder := monitor.NewRecorder(productRepo, restockRepo, log)
	scanLogger := monitor.NewScanLogger(scanLogRepo, collector, log, cfg.ScanSnapshotEnabled)
	c.engine = monitor.NewEngine(
		regionRepo, registry, recorder, dispatcher, scanLogger, collector, log,
		monitor.Config{
			Interval:     cfg.MonitorInterval,
			RegionDelay:  cfg.MonitorRegionDelay,
			FetchTimeout: cfg.FetchTimeout,
		},
	)

	// 7. クリーンアップジョブ
	c.cleanup = cleanup.NewCleanupJob(db, log, cfg.LogRetentionDays)

	return c, nil
}

// buildSenders は設定されたチャネルのSenderを生成する。
// トークンやブローカーが未設定のチャネルは生成しない。
func (c *components) buildSenders(cfg *config.Config) ([]notify.Sender, error) {
	var senders []notify.Sender

	if cfg.TelegramBotToken != "" {
		bot, err := notify.NewTelegramBot(cfg.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram sender: %w", err)
		}
		senders = append(senders, notify.NewTelegramSender(bot))
		slog.Info("push notification channel enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := notify.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka sender: %w", err)
		}
		sender := notify.NewKafkaSender(producer, cfg.KafkaEmailTopic)
		c.closers = append(c.closers, sender.Close)
		senders = append(senders, sender)
		slog.Info("email notification channel enabled",
			slog.String("topic", cfg.KafkaEmailTopic),
		)
	}

	return senders, nil
}

// runServe はAPIサーバーと監視エンジンを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitAdmin))
	defer rateLimiter.Stop()

	g, gctx := errgroup.WithContext(ctx)

	router := handler.NewRouter(&handler.RouterDeps{
		AdminToken:        cfg.AdminToken,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Engine:            c.engine,
		EngineContext:     gctx,
		HealthChecker:     c.db,
		MetricsHandler:    metrics.Handler(c.registry),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // 手動スキャンは全リージョンの完了まで応答しない
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if cfg.MonitorAutostart {
		g.Go(func() error {
			c.engine.Start(gctx)
			return nil
		})
	} else {
		slog.Info("monitoring autostart disabled; use POST /api/admin/monitoring/start")
	}

	g.Go(func() error {
		c.cleanup.Start(gctx, cleanup.DefaultInterval)
		return nil
	})

	err = g.Wait()

	c.engine.Stop()
	c.engine.Wait()

	if err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は管理APIなしで監視エンジンとクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	slog.Info("worker starting",
		slog.Duration("monitor_interval", cfg.MonitorInterval),
		slog.Duration("region_delay", cfg.MonitorRegionDelay),
	)

	g, gctx := errgroup.WithContext(ctx)

	// ヘルスチェックとメトリクスのみを提供する
	opsServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      metrics.SetupMetricsRoute(c.registry, handler.NewHealthHandler(c.db, slog.Default())),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g.Go(func() error {
		slog.Info("ops server starting", slog.String("addr", opsServer.Addr))
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return opsServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		c.engine.Start(gctx)
		<-gctx.Done()
		slog.Info("shutting down worker...")
		c.engine.Stop()
		c.engine.Wait()
		return nil
	})

	g.Go(func() error {
		c.cleanup.Start(gctx, cleanup.DefaultInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runScan は手動スキャンを1回実行して終了する。
func runScan(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	summary, err := c.engine.ManualScan(ctx)
	if err != nil {
		return fmt.Errorf("manual scan failed: %w", err)
	}

	slog.Info("manual scan completed",
		slog.String("outcome", string(summary.Outcome)),
		slog.Int("regions_scanned", summary.RegionsScanned),
		slog.Int("regions_failed", summary.RegionsFailed),
		slog.Int("new_restocks", summary.NewRestocks),
	)
	if summary.Outcome == monitor.OutcomeFailed {
		return fmt.Errorf("manual scan failed: %s", summary.Error)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(result.Version)),
		slog.Bool("changed", result.Changed),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
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
