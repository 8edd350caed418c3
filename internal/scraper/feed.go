package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/security"
)

// googleNS はマーチャントフィードの拡張要素の接頭辞（g:price など）。
const googleNS = "g"

// FeedFetcher はRSS/Atom形式のマーチャントフィードから掲載商品を取得する。
type FeedFetcher struct {
	client    *pageClient
	sanitizer *security.TextSanitizer
	logger    *slog.Logger
}

var _ SourceFetcher = (*FeedFetcher)(nil)

// NewFeedFetcher はFeedFetcherを生成する。
func NewFeedFetcher(guard security.URLGuard, logger *slog.Logger, opts Options) *FeedFetcher {
	return &FeedFetcher{
		client:    newPageClient(guard, opts),
		sanitizer: security.NewTextSanitizer(),
		logger:    logger,
	}
}

// CanHandle はフィードと判断できるパスの場合にtrueを返す。
func (f *FeedFetcher) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	for _, suffix := range []string{".xml", ".rss", ".atom", "/feed", "/rss"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Fetch はフィードを取得し、各エントリを商品に変換する。
func (f *FeedFetcher) Fetch(ctx context.Context, region *model.Region) ([]model.RawProduct, error) {
	pg, err := f.client.get(ctx, region.URL,
		"application/rss+xml, application/atom+xml, application/xml, text/xml, */*",
		acceptLanguage(region.Code),
	)
	if err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(pg.body))
	if err != nil {
		return nil, model.NewFetchError(model.FetchErrorParse, fmt.Errorf("フィードの解析に失敗: %w", err))
	}

	products := make([]model.RawProduct, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		products = append(products, f.convert(item, region))
	}

	f.logger.Debug("フィードを解析しました",
		slog.String("region_code", region.Code),
		slog.Int("products_found", len(products)),
	)
	return products, nil
}

func (f *FeedFetcher) convert(item *gofeed.Item, region *model.Region) model.RawProduct {
	p := model.RawProduct{
		ExternalID:  extValue(item, "id"),
		Name:        f.sanitizer.Text(item.Title),
		Description: f.sanitizer.Text(item.Description),
		Color:       f.sanitizer.Text(extValue(item, "color")),
		Size:        f.sanitizer.Text(extValue(item, "size")),
		ProductURL:  item.Link,
		Currency:    region.Currency,
		IsAvailable: true,
	}
	if p.ExternalID == "" {
		p.ExternalID = item.GUID
	}

	if price := extValue(item, "price"); price != "" {
		p.Price = ParsePrice(price)
		if fields := strings.Fields(price); len(fields) == 2 && len(fields[1]) == 3 {
			p.Currency = strings.ToUpper(fields[1])
		}
	}

	if item.Image != nil {
		p.ImageURL = item.Image.URL
	} else {
		p.ImageURL = extValue(item, "image_link")
	}

	switch strings.ReplaceAll(strings.ToLower(extValue(item, "availability")), "_", " ") {
	case "out of stock", "sold out", "discontinued":
		p.IsAvailable = false
	}
	return p
}

func extValue(item *gofeed.Item, name string) string {
	values := item.Extensions[googleNS][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
