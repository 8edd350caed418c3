package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/restockwatch/internal/metrics"
	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/notify"
	"github.com/hitoshi/restockwatch/internal/repository"
)

const (
	defaultInterval     = 30 * time.Second
	defaultFetchTimeout = 60 * time.Second
	scanLogWriteTimeout = 10 * time.Second
)

// RegionFetcher はリージョンの掲載商品一覧を取得するインターフェース。
type RegionFetcher interface {
	Fetch(ctx context.Context, region *model.Region) ([]model.RawProduct, error)
}

// readinessChecker は取得バックエンドの疎通確認を提供するRegionFetcherが実装する。
type readinessChecker interface {
	Ready(ctx context.Context) error
}

// RestockNotifier は再入荷イベントの通知を行うインターフェース。
type RestockNotifier interface {
	Dispatch(ctx context.Context, region *model.Region, product *model.Product, event *model.RestockEvent) (notify.Summary, error)
}

// Config はエンジンの実行間隔などの設定。
// IntervalとFetchTimeoutが0の場合は既定値（30秒、60秒）を使う。
type Config struct {
	Interval     time.Duration
	RegionDelay  time.Duration
	FetchTimeout time.Duration
}

// Engine は再入荷監視のスケジューラ。
// サイクルは常に1つだけ実行される。定期実行の発火時に別のサイクルが
// 実行中であればその回はスキップし、手動スキャンは実行中のサイクルの完了を待つ。
type Engine struct {
	regions  repository.RegionRepository
	fetcher  RegionFetcher
	recorder *Recorder
	notifier RestockNotifier
	scanLog  *ScanLogger
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	cycleMu sync.Mutex
	wg      sync.WaitGroup

	mu              sync.Mutex
	running         bool
	startedAt       time.Time
	stopCh          chan struct{}
	restocksTotal   int
	cycleInProgress bool
	lastCycle       *CycleSummary
	lastRegionCount int
}

// NewEngine はEngineを生成する。生成直後は停止状態。
func NewEngine(
	regions repository.RegionRepository,
	fetcher RegionFetcher,
	recorder *Recorder,
	notifier RestockNotifier,
	scanLog *ScanLogger,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.RegionDelay < 0 {
		cfg.RegionDelay = 0
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Engine{
		regions:  regions,
		fetcher:  fetcher,
		recorder: recorder,
		notifier: notifier,
		scanLog:  scanLog,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start はエンジンを起動する。起動済みの場合は何もしない。
// 最初のサイクルを同期的に実行した後、定期実行を開始する。
// サイクルの失敗はログに出力し、呼び出し元には返さない。
// ctxがキャンセルされると定期実行も終了する。
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Info("監視エンジンは既に起動しています")
		return
	}
	stop := make(chan struct{})
	e.running = true
	e.startedAt = e.now()
	e.stopCh = stop
	e.mu.Unlock()

	e.logger.Info("監視エンジンを開始しました",
		slog.Duration("interval", e.cfg.Interval),
		slog.Duration("region_delay", e.cfg.RegionDelay),
	)

	e.cycleMu.Lock()
	if _, err := e.runCycle(ctx, TriggerStart, e.regions.ListActive); err != nil {
		e.logger.Error("初回スキャンサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}
	e.cycleMu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx, stop)
}

func (e *Engine) loop(ctx context.Context, stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			e.markStopped(stop)
			e.logger.Info("コンテキストの終了により監視エンジンを停止しました")
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			e.tick(ctx)
		}
	}
}

// tick は定期実行の1回分。実行中のサイクルがあればスキップする。
func (e *Engine) tick(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		e.metrics.RecordCycleSkipped()
		e.logger.Warn("前回のスキャンサイクルが実行中のため今回の実行をスキップしました")
		return
	}
	defer e.cycleMu.Unlock()

	if _, err := e.runCycle(ctx, TriggerTimer, e.regions.ListActive); err != nil {
		e.logger.Error("スキャンサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// Stop は定期実行を停止する。停止済みの場合は何もしない。
// 実行中のサイクルは中断せず、完了まで実行される。
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
	e.stopCh = nil
	e.logger.Info("監視エンジンを停止しました")
}

func (e *Engine) markStopped(stop <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.stopCh == stop {
		e.running = false
		e.stopCh = nil
	}
}

// Wait は定期実行のゴルーチンと実行中のサイクルの終了を待つ。
func (e *Engine) Wait() {
	e.wg.Wait()
	e.cycleMu.Lock()
	e.cycleMu.Unlock()
}

// ManualScan は有効な監視設定を持つリージョンを対象にサイクルを1回実行する。
// エンジンが停止中でも実行でき、実行中のサイクルがあれば完了を待つ。
// 取得バックエンドに到達できない場合や対象リージョンを取得できない場合はエラーを返す。
func (e *Engine) ManualScan(ctx context.Context) (CycleSummary, error) {
	if rc, ok := e.fetcher.(readinessChecker); ok {
		if err := rc.Ready(ctx); err != nil {
			return CycleSummary{}, fmt.Errorf("%w: %v", model.ErrFetchBackendUnavailable, err)
		}
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	return e.runCycle(ctx, TriggerManual, e.regions.ListActiveMonitored)
}

// Status は現在の稼働状態を返す。
// 有効なリージョン数を取得できない場合も稼働状態と直近サイクルは返し、
// リージョン数は最後に取得できた値とともにRegionsErrorを設定する。
func (e *Engine) Status(ctx context.Context) (Status, error) {
	count, countErr := e.regions.CountActive(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if countErr == nil {
		e.lastRegionCount = count
	} else {
		e.logger.Warn("有効なリージョン数の取得に失敗しました", slog.String("error", countErr.Error()))
	}

	s := Status{
		Running:               e.running,
		RegionsMonitored:      e.lastRegionCount,
		RestocksDetectedTotal: e.restocksTotal,
		CycleInProgress:       e.cycleInProgress,
	}
	if countErr != nil {
		s.RegionsError = countErr.Error()
	}
	if e.running {
		uptime := e.now().Sub(e.startedAt).Milliseconds()
		s.UptimeMs = &uptime
	}
	if e.lastCycle != nil {
		last := *e.lastCycle
		s.LastCycle = &last
	}
	return s, nil
}

// ResetStats は再入荷検出数をリセットし、稼働中であれば稼働時間の計測を再開する。
func (e *Engine) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restocksTotal = 0
	if e.running {
		e.startedAt = e.now()
	}
	e.logger.Info("監視統計をリセットしました")
}

// RecentScanLogs は新しい順にスキャンログを返す。regionIDが空の場合は全リージョンが対象。
func (e *Engine) RecentScanLogs(ctx context.Context, regionID string, limit int) ([]*model.ScanLogEntry, error) {
	return e.scanLog.Recent(ctx, regionID, limit)
}

// ClearScanLogs は全スキャンログを削除し、削除件数を返す。
func (e *Engine) ClearScanLogs(ctx context.Context) (int64, error) {
	return e.scanLog.Clear(ctx)
}

// runCycle は対象リージョンを順にスキャンする。呼び出し元がcycleMuを保持していること。
func (e *Engine) runCycle(
	ctx context.Context,
	trigger Trigger,
	list func(context.Context) ([]*model.Region, error),
) (CycleSummary, error) {
	summary := CycleSummary{Trigger: trigger, StartedAt: e.now()}
	e.setCycleInProgress(true)
	defer e.setCycleInProgress(false)

	e.metrics.RecordCycle(string(trigger))

	regions, err := list(ctx)
	if err != nil {
		summary.Error = err.Error()
		e.finishCycle(&summary)
		return summary, fmt.Errorf("%w: %v", model.ErrRegionListUnavailable, err)
	}

	e.logger.Info("スキャンサイクルを開始します",
		slog.String("trigger", string(trigger)),
		slog.Int("region_count", len(regions)),
	)

	for i, region := range regions {
		if i > 0 {
			if err := sleep(ctx, e.cfg.RegionDelay); err != nil {
				summary.Error = err.Error()
				break
			}
		}
		res := e.scanRegion(ctx, region)
		summary.RegionsScanned++
		summary.NewRestocks += res.NewRestocks
		if res.Status != model.ScanStatusSuccess {
			summary.RegionsFailed++
		}
	}

	e.finishCycle(&summary)
	e.logger.Info("スキャンサイクルが完了しました",
		slog.String("trigger", string(trigger)),
		slog.String("outcome", string(summary.Outcome)),
		slog.Int("regions_scanned", summary.RegionsScanned),
		slog.Int("regions_failed", summary.RegionsFailed),
		slog.Int("new_restocks", summary.NewRestocks),
		slog.Float64("duration_ms", float64(summary.FinishedAt.Sub(summary.StartedAt).Milliseconds())),
	)
	return summary, nil
}

// scanRegion は1リージョン分のパイプラインを実行し、結果をスキャンログに記録する。
// 取得・永続化の失敗とパニックはリージョン単位で吸収する。
func (e *Engine) scanRegion(ctx context.Context, region *model.Region) (res RegionResult) {
	start := time.Now()
	var raws []model.RawProduct

	defer func() {
		if r := recover(); r != nil {
			res = RegionResult{Status: model.ScanStatusFailed, Err: fmt.Errorf("パニックが発生しました: %v", r)}
			raws = nil
		}
		// 手動スキャンの切断や停止シグナルでもスキャンログは必ず残す
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scanLogWriteTimeout)
		defer cancel()
		e.scanLog.Record(logCtx, region, res, time.Since(start), raws)
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	fetched, err := e.fetcher.Fetch(fetchCtx, region)
	cancel()
	if err != nil {
		status := model.ScanStatusFailed
		if model.FetchErrorKindOf(err) == model.FetchErrorBlocked {
			status = model.ScanStatusBlocked
		}
		return RegionResult{Status: status, Err: err}
	}
	raws = fetched

	changes, err := e.recorder.Reconcile(ctx, region, raws)
	n := countRestocks(changes)
	e.addRestocks(n)

	// 途中で失敗しても、保存済みのイベントは次回以降に再検出されないため通知する
	e.dispatch(ctx, region, changes)

	if err != nil {
		return RegionResult{
			Status:        model.ScanStatusFailed,
			ProductsFound: len(raws),
			NewRestocks:   n,
			Err:           fmt.Errorf("永続化に失敗したためスキャンを中断しました: %w", err),
		}
	}
	return RegionResult{
		Status:        model.ScanStatusSuccess,
		ProductsFound: len(raws),
		NewRestocks:   n,
	}
}

// dispatch は在庫ありの再入荷イベントを通知する。通知の失敗はログのみ。
func (e *Engine) dispatch(ctx context.Context, region *model.Region, changes []Change) {
	for _, c := range changes {
		if !c.Classification.IsRestock() || c.Event == nil || !c.Product.IsAvailable {
			continue
		}
		if _, err := e.notifier.Dispatch(ctx, region, c.Product, c.Event); err != nil {
			e.logger.Error("再入荷通知に失敗しました",
				slog.String("region_code", region.Code),
				slog.String("product_id", c.Product.ID),
				slog.String("restock_id", c.Event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Engine) setCycleInProgress(v bool) {
	e.mu.Lock()
	e.cycleInProgress = v
	e.mu.Unlock()
}

func (e *Engine) addRestocks(n int) {
	if n == 0 {
		return
	}
	e.mu.Lock()
	e.restocksTotal += n
	e.mu.Unlock()
}

func (e *Engine) finishCycle(s *CycleSummary) {
	s.finish(e.now())
	e.mu.Lock()
	last := *s
	e.lastCycle = &last
	e.mu.Unlock()
}

// sleep はdの間待機する。ctxがキャンセルされた場合はその時点でエラーを返す。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
