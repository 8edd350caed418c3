package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/notify"
)

// memStore はテスト用のインメモリリポジトリ。
// リージョン・商品・再入荷履歴・スキャンログ・監視設定・フィルタ・通知を保持する。
type memStore struct {
	mu sync.Mutex

	regions       []*model.Region
	monitored     map[string]bool
	products      map[string]*model.Product
	restocks      []*model.RestockEvent
	scanLogs      []*model.ScanLogEntry
	configs       []*model.MonitoringConfig
	filters       map[string][]*model.ProductFilter
	recipients    map[string]*model.Recipient
	notifications []*model.NotificationRecord

	touches int

	listErr    error
	createErr  error
	updateErr  error
	restockErr error
	// restockFailAt は失敗させる再入荷履歴の挿入の番号（1始まり）。0なら失敗させない。
	restockFailAt   int
	restockAttempts int

	// scanLogHonorsCtx がtrueの場合、キャンセル済みのctxでのスキャンログ保存を拒否する。
	scanLogHonorsCtx bool
}

func newMemStore(regions ...*model.Region) *memStore {
	return &memStore{
		regions:    regions,
		monitored:  map[string]bool{},
		products:   map[string]*model.Product{},
		filters:    map[string][]*model.ProductFilter{},
		recipients: map[string]*model.Recipient{},
	}
}

// RegionRepository

func (s *memStore) ListActive(ctx context.Context) ([]*model.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*model.Region
	for _, r := range s.regions {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListActiveMonitored(ctx context.Context) ([]*model.Region, error) {
	all, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Region
	for _, r := range all {
		if s.monitored[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) CountActive(ctx context.Context) (int, error) {
	all, err := s.ListActive(ctx)
	return len(all), err
}

// ProductRepository

func (s *memStore) FindByRegionAndExternalID(ctx context.Context, regionID, externalID string) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.RegionID == regionID && p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) Create(ctx context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *memStore) UpdateState(ctx context.Context, p *model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *memStore) TouchLastSeen(ctx context.Context, productID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches++
	if p, ok := s.products[productID]; ok {
		p.LastSeenAt = seenAt
	}
	return nil
}

func (s *memStore) product(externalID string) *model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ExternalID == externalID {
			return p
		}
	}
	return nil
}

// restockRepo は再入荷履歴のリポジトリ（Createの名前衝突を避けるためのビュー）。
type restockRepo struct{ s *memStore }

func (r restockRepo) Create(ctx context.Context, e *model.RestockEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.restockErr != nil {
		return r.s.restockErr
	}
	r.s.restockAttempts++
	if r.s.restockAttempts == r.s.restockFailAt {
		return errors.New("restock_history: connection reset by peer")
	}
	cp := *e
	r.s.restocks = append(r.s.restocks, &cp)
	return nil
}

func (r restockRepo) UpdateNotificationResult(ctx context.Context, id string, wasNotified bool, count int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.restocks {
		if e.ID == id {
			e.WasNotified = wasNotified
			e.NotificationCount = count
			return nil
		}
	}
	return errors.New("restock not found")
}

func (s *memStore) restocksFor(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.restocks {
		if e.ProductID == productID {
			n++
		}
	}
	return n
}

func (s *memStore) restockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.restocks)
}

type scanLogRepo struct{ s *memStore }

func (r scanLogRepo) Create(ctx context.Context, e *model.ScanLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.scanLogHonorsCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	cp := *e
	r.s.scanLogs = append(r.s.scanLogs, &cp)
	return nil
}

func (r scanLogRepo) ListRecent(ctx context.Context, regionID string, limit int) ([]*model.ScanLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ScanLogEntry
	for i := len(r.s.scanLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if regionID == "" || r.s.scanLogs[i].RegionID == regionID {
			out = append(out, r.s.scanLogs[i])
		}
	}
	return out, nil
}

func (r scanLogRepo) DeleteAll(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.scanLogs))
	r.s.scanLogs = nil
	return n, nil
}

func (s *memStore) logs() []*model.ScanLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.ScanLogEntry(nil), s.scanLogs...)
}

func (s *memStore) logsFor(regionID string) []*model.ScanLogEntry {
	var out []*model.ScanLogEntry
	for _, e := range s.logs() {
		if e.RegionID == regionID {
			out = append(out, e)
		}
	}
	return out
}

// 通知系のリポジトリ

func (s *memStore) ListActiveByRegion(ctx context.Context, regionID string) ([]*model.MonitoringConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.MonitoringConfig
	for _, c := range s.configs {
		if c.RegionID == regionID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) ListActiveByUser(ctx context.Context, userID string) ([]*model.ProductFilter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters[userID], nil
}

func (s *memStore) FindRecipient(ctx context.Context, userID string) (*model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipients[userID], nil
}

type notificationRepo struct{ s *memStore }

func (r notificationRepo) Create(ctx context.Context, rec *model.NotificationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *rec
	r.s.notifications = append(r.s.notifications, &cp)
	return nil
}

func (r notificationRepo) UpdateStatus(ctx context.Context, rec *model.NotificationRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == rec.ID {
			n.Status = rec.Status
			n.SentAt = rec.SentAt
			n.ErrorMessage = rec.ErrorMessage
		}
	}
	return nil
}

func (s *memStore) subscribe(userID, regionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, &model.MonitoringConfig{ID: userID + "-" + regionID, UserID: userID, RegionID: regionID, IsActive: true})
	s.monitored[regionID] = true
	s.recipients[userID] = &model.Recipient{UserID: userID, Email: userID + "@example.com", Channels: []model.Channel{model.ChannelEmail}}
}

// fakeFetcher はリージョンIDごとに結果を返すRegionFetcher。
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]model.RawProduct
	errs    map[string]error
	calls   []string
	block   chan struct{}
	started chan struct{}
	readyFn func(ctx context.Context) error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: map[string][]model.RawProduct{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, region *model.Region) ([]model.RawProduct, error) {
	f.mu.Lock()
	f.calls = append(f.calls, region.ID)
	block, started := f.block, f.started
	res, err := f.results[region.ID], f.errs[region.ID]
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return append([]model.RawProduct(nil), res...), nil
}

func (f *fakeFetcher) set(regionID string, raws ...model.RawProduct) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[regionID] = raws
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type readyFetcher struct {
	*fakeFetcher
}

func (f readyFetcher) Ready(ctx context.Context) error {
	return f.readyFn(ctx)
}

// recordingNotifier はDispatchの呼び出しを記録するRestockNotifier。
type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.RestockEvent
	err    error
}

func (n *recordingNotifier) Dispatch(ctx context.Context, region *model.Region, product *model.Product, event *model.RestockEvent) (notify.Summary, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return notify.Summary{}, n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// syncBuffer は並行書き込みに対応したbytes.Buffer。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func region(id, code string) *model.Region {
	return &model.Region{ID: id, Code: code, Name: code, URL: "https://www.example.com/" + code, Currency: "JPY", IsActive: true}
}

