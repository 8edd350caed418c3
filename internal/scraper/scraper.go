// Package scraper はリージョンのストアフロントから掲載商品一覧を取得する。
// HTMLの一覧ページとマーチャントフィード（RSS/Atom）に対応し、
// URLの形式に応じてRegistryが取得処理を選択する。
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hitoshi/restockwatch/internal/metrics"
	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/security"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxSize   = 10 << 20
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// RegionFetcher はリージョンの現在の掲載商品一覧を返す。
// 失敗時は*model.FetchErrorを返す。
type RegionFetcher interface {
	Fetch(ctx context.Context, region *model.Region) ([]model.RawProduct, error)
}

// SourceFetcher はURLの形式で選択される取得処理。
type SourceFetcher interface {
	RegionFetcher
	CanHandle(rawURL string) bool
}

// Options は取得処理共通のHTTP設定。
type Options struct {
	Timeout   time.Duration
	MaxSize   int64
	UserAgent string
	Metrics   metrics.MetricsCollector
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxSize <= 0 {
		o.MaxSize = defaultMaxSize
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	return o
}

// pageClient はSSRF防止付きクライアントでページ本文を取得する。
type pageClient struct {
	client    *http.Client
	userAgent string
	maxSize   int64
	metrics   metrics.MetricsCollector
}

func newPageClient(guard security.URLGuard, opts Options) *pageClient {
	opts = opts.withDefaults()
	return &pageClient{
		client:    guard.NewSafeClient(opts.Timeout),
		userAgent: opts.UserAgent,
		maxSize:   opts.MaxSize,
		metrics:   opts.Metrics,
	}
}

// page は取得したレスポンス本文とContent-Type。
type page struct {
	body        []byte
	contentType string
}

// get はURLの本文を取得する。403/429はblocked、その他の非2xxはnetworkとして分類する。
func (c *pageClient) get(ctx context.Context, rawURL, accept, language string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewFetchError(model.FetchErrorNetwork, fmt.Errorf("リクエスト作成に失敗: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	if language != "" {
		req.Header.Set("Accept-Language", language)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	c.metrics.RecordHTTPStatus(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, model.NewFetchError(model.FetchErrorBlocked, fmt.Errorf("HTTPステータス %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, model.NewFetchError(model.FetchErrorNetwork, fmt.Errorf("予期しないHTTPステータス: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, model.NewFetchError(model.FetchErrorParse, fmt.Errorf("レスポンスが上限サイズ（%dバイト）を超えています", c.maxSize))
	}
	return &page{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

func classifyTransportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return model.NewFetchError(model.FetchErrorTimeout, err)
	}
	return model.NewFetchError(model.FetchErrorNetwork, err)
}

// Registry は登録された取得処理からリージョンURLに対応するものを選んで実行する。
// 先に登録されたものが優先される。
type Registry struct {
	guard    security.URLGuard
	fetchers []SourceFetcher
}

var _ RegionFetcher = (*Registry)(nil)

// NewRegistry はRegistryを生成する。
func NewRegistry(guard security.URLGuard, fetchers ...SourceFetcher) *Registry {
	return &Registry{guard: guard, fetchers: fetchers}
}

// Find はURLを処理できる取得処理を返す。見つからない場合はnilを返す。
func (r *Registry) Find(rawURL string) SourceFetcher {
	for _, f := range r.fetchers {
		if f.CanHandle(rawURL) {
			return f
		}
	}
	return nil
}

// Fetch はリージョンURLを検証した上で対応する取得処理に委譲する。
func (r *Registry) Fetch(ctx context.Context, region *model.Region) ([]model.RawProduct, error) {
	if err := r.guard.ValidateURL(region.URL); err != nil {
		return nil, model.NewFetchError(model.FetchErrorNetwork, fmt.Errorf("URL検証に失敗: %w", err))
	}
	f := r.Find(region.URL)
	if f == nil {
		return nil, model.NewFetchError(model.FetchErrorParse, fmt.Errorf("対応する取得処理がありません: %s", region.URL))
	}
	return f.Fetch(ctx, region)
}

// readinessChecker は自身の準備状態を報告できる取得処理。
type readinessChecker interface {
	Ready(ctx context.Context) error
}

// Ready は取得処理が設定されているかを確認する。ストアフロントへの疎通は確認しない。
// 準備状態を報告できる取得処理は、その結果も反映する。
func (r *Registry) Ready(ctx context.Context) error {
	if len(r.fetchers) == 0 {
		return errors.New("取得処理が登録されていません")
	}
	for _, f := range r.fetchers {
		if rc, ok := f.(readinessChecker); ok {
			if err := rc.Ready(ctx); err != nil {
				return fmt.Errorf("取得処理の準備ができていません: %w", err)
			}
		}
	}
	return ctx.Err()
}
