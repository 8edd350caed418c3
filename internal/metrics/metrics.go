// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 監視エンジン、取得処理、通知処理から利用する。
type MetricsCollector interface {
	RecordScan(status string, duration time.Duration)
	RecordProductsFound(count int)
	RecordRestocks(count int)
	RecordNotification(channel, status string)
	RecordCycle(trigger string)
	RecordCycleSkipped()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scans         *prometheus.CounterVec
	scanDuration  prometheus.Histogram
	productsFound prometheus.Counter
	restocks      prometheus.Counter
	notifications *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cyclesSkipped prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockwatch_scans_total",
			Help: "ステータス別のリージョンスキャン数",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "restockwatch_scan_duration_seconds",
			Help:    "リージョンスキャンの所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		productsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restockwatch_products_found_total",
			Help: "スキャンで検出された商品の合計数",
		}),
		restocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restockwatch_restocks_detected_total",
			Help: "検出された再入荷の合計数",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockwatch_notifications_total",
			Help: "チャネル・配信結果別の通知数",
		}, []string{"channel", "status"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockwatch_cycles_total",
			Help: "起動契機別のスキャンサイクル数",
		}, []string{"trigger"}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restockwatch_cycles_skipped_total",
			Help: "実行中のサイクルと重なりスキップされたタイマー起動数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restockwatch_fetch_http_status_total",
			Help: "取得先HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.scans,
		c.scanDuration,
		c.productsFound,
		c.restocks,
		c.notifications,
		c.cycles,
		c.cyclesSkipped,
		c.httpStatus,
	)

	return c
}

// RecordScan はリージョンスキャンの結果と所要時間を記録する。
func (c *Collector) RecordScan(status string, duration time.Duration) {
	c.scans.WithLabelValues(status).Inc()
	c.scanDuration.Observe(duration.Seconds())
}

// RecordProductsFound は検出商品数を記録する。
func (c *Collector) RecordProductsFound(count int) {
	c.productsFound.Add(float64(count))
}

// RecordRestocks は再入荷検出数を記録する。
func (c *Collector) RecordRestocks(count int) {
	c.restocks.Add(float64(count))
}

// RecordNotification は通知の配信結果を記録する。
func (c *Collector) RecordNotification(channel, status string) {
	c.notifications.WithLabelValues(channel, status).Inc()
}

// RecordCycle はスキャンサイクルの実行を記録する。
func (c *Collector) RecordCycle(trigger string) {
	c.cycles.WithLabelValues(trigger).Inc()
}

// RecordCycleSkipped はスキップされたタイマー起動を記録する。
func (c *Collector) RecordCycleSkipped() {
	c.cyclesSkipped.Inc()
}

// RecordHTTPStatus は取得先のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordScan(string, time.Duration) {}
func (Nop) RecordProductsFound(int) {}
func (Nop) RecordRestocks(int) {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordCycle(string) {}
func (Nop) RecordCycleSkipped() {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// healthが指定された場合は/healthも提供する。APIサーバーを持たないworkerモード用。
func SetupMetricsRoute(gatherer prometheus.Gatherer, health http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	if health != nil {
		mux.Handle("/health", health)
	}
	return mux
}
