package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/security"
)

// Selectors は一覧ページから商品を抽出するCSSセレクタ。
// 各項目はItemで選択した要素の内側で評価される。
type Selectors struct {
	Item           string
	ExternalIDAttr string
	Name           string
	Description    string
	Price          string
	Color          string
	Size           string
	Image          string
	Link           string
	SoldOut        string
}

// DefaultSelectors は標準的な商品一覧マークアップ向けのセレクタを返す。
func DefaultSelectors() Selectors {
	return Selectors{
		Item:           "[data-product-id]",
		ExternalIDAttr: "data-product-id",
		Name:           ".product-item-name",
		Description:    ".product-item-description",
		Price:          ".product-item-price",
		Color:          ".product-item-color",
		Size:           ".product-item-size",
		Image:          "img",
		Link:           "a[href]",
		SoldOut:        ".sold-out, .out-of-stock, [data-availability='out-of-stock']",
	}
}

// ボット対策ページのタイトル。
var blockTitles = []string{
	"access denied",
	"just a moment",
	"attention required",
	"pardon our interruption",
}

// チャレンジページだけが読み込むスクリプトや要素の識別子。
// ニュースレター等の通常ページにも現れるg-recaptchaは含めない。
var blockMarkers = []string{
	"captcha-delivery.com",
	"cf-challenge",
	"cf-browser-verification",
	"challenge-platform",
}

// HTMLFetcher はストアフロントの商品一覧ページをgoqueryで解析する。
type HTMLFetcher struct {
	client    *pageClient
	selectors Selectors
	sanitizer *security.TextSanitizer
	logger    *slog.Logger
}

var _ SourceFetcher = (*HTMLFetcher)(nil)

// NewHTMLFetcher はHTMLFetcherを生成する。
func NewHTMLFetcher(guard security.URLGuard, selectors Selectors, logger *slog.Logger, opts Options) *HTMLFetcher {
	return &HTMLFetcher{
		client:    newPageClient(guard, opts),
		selectors: selectors,
		sanitizer: security.NewTextSanitizer(),
		logger:    logger,
	}
}

// CanHandle はhttp/httpsのURLであればtrueを返す。
func (f *HTMLFetcher) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Ready は商品を特定するセレクタが設定されているかを返す。
func (f *HTMLFetcher) Ready(ctx context.Context) error {
	if strings.TrimSpace(f.selectors.Item) == "" {
		return errors.New("商品要素のセレクタが設定されていません")
	}
	return nil
}

// Fetch はリージョンの一覧ページを取得し、掲載商品を抽出する。
func (f *HTMLFetcher) Fetch(ctx context.Context, region *model.Region) ([]model.RawProduct, error) {
	pg, err := f.client.get(ctx, region.URL,
		"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		acceptLanguage(region.Code),
	)
	if err != nil {
		return nil, err
	}

	// Shift_JISやEUC-JPのストアフロントもあるため、UTF-8に変換してから解析する
	reader, err := charset.NewReader(bytes.NewReader(pg.body), pg.contentType)
	if err != nil {
		return nil, model.NewFetchError(model.FetchErrorParse, fmt.Errorf("文字コードの判定に失敗: %w", err))
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, model.NewFetchError(model.FetchErrorParse, fmt.Errorf("HTMLの解析に失敗: %w", err))
	}

	base, err := url.Parse(region.URL)
	if err != nil {
		return nil, model.NewFetchError(model.FetchErrorParse, fmt.Errorf("リージョンURLの解析に失敗: %w", err))
	}

	var products []model.RawProduct
	doc.Find(f.selectors.Item).Each(func(_ int, s *goquery.Selection) {
		p := f.extract(s, base, region)
		if p.Name == "" && p.ExternalID == "" {
			return
		}
		products = append(products, p)
	})

	// 商品が1件も取れなかった場合のみボット対策ページかを判定する
	if len(products) == 0 {
		if marker, ok := detectBlock(doc, pg.body); ok {
			return nil, model.NewFetchError(model.FetchErrorBlocked, fmt.Errorf("ボット対策ページを検出しました: %s", marker))
		}
	}

	f.logger.Debug("一覧ページを解析しました",
		slog.String("region_code", region.Code),
		slog.Int("products_found", len(products)),
	)
	return products, nil
}

func (f *HTMLFetcher) extract(s *goquery.Selection, base *url.URL, region *model.Region) model.RawProduct {
	sel := f.selectors
	p := model.RawProduct{
		ExternalID:  strings.TrimSpace(s.AttrOr(sel.ExternalIDAttr, "")),
		Name:        f.sanitizer.Text(f.text(s, sel.Name)),
		Description: f.sanitizer.Text(f.text(s, sel.Description)),
		Color:       f.sanitizer.Text(f.text(s, sel.Color)),
		Size:        f.sanitizer.Text(f.text(s, sel.Size)),
		Currency:    region.Currency,
		IsAvailable: true,
	}

	if sel.Price != "" {
		price := s.Find(sel.Price).First()
		p.Price = ParsePrice(price.AttrOr("content", price.Text()))
	}

	if sel.Image != "" {
		img := s.Find(sel.Image).First()
		p.ImageURL = resolveURL(base, img.AttrOr("data-src", img.AttrOr("src", "")))
	}
	if sel.Link != "" {
		link := s.Find(sel.Link).First()
		if s.Is("a[href]") {
			link = s
		}
		p.ProductURL = resolveURL(base, link.AttrOr("href", ""))
	}

	if sel.SoldOut != "" && (s.Is(sel.SoldOut) || s.Find(sel.SoldOut).Length() > 0) {
		p.IsAvailable = false
	}
	if v, ok := s.Attr("data-available"); ok && strings.EqualFold(strings.TrimSpace(v), "false") {
		p.IsAvailable = false
	}
	return p
}

func (f *HTMLFetcher) text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return s.Find(selector).First().Text()
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func detectBlock(doc *goquery.Document, body []byte) (string, bool) {
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, t := range blockTitles {
		if strings.HasPrefix(title, t) {
			return t, true
		}
	}
	for _, m := range blockMarkers {
		if bytes.Contains(body, []byte(m)) {
			return m, true
		}
	}
	return "", false
}

// acceptLanguage はリージョンコードからAccept-Languageヘッダーを組み立てる。
func acceptLanguage(code string) string {
	switch strings.ToUpper(code) {
	case "JP":
		return "ja-JP,ja;q=0.9,en;q=0.8"
	case "FR":
		return "fr-FR,fr;q=0.9,en;q=0.8"
	case "DE":
		return "de-DE,de;q=0.9,en;q=0.8"
	case "IT":
		return "it-IT,it;q=0.9,en;q=0.8"
	case "UK", "GB":
		return "en-GB,en;q=0.9"
	case "":
		return ""
	default:
		return "en-US,en;q=0.9"
	}
}
