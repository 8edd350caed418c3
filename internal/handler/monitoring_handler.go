package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/restockwatch/internal/middleware"
	"github.com/hitoshi/restockwatch/internal/model"
	"github.com/hitoshi/restockwatch/internal/monitor"
)

// MonitoringEngine はハンドラーが利用する監視エンジンの操作を定義する。
type MonitoringEngine interface {
	Start(ctx context.Context)
	Stop()
	Status(ctx context.Context) (monitor.Status, error)
	ManualScan(ctx context.Context) (monitor.CycleSummary, error)
	ResetStats()
	RecentScanLogs(ctx context.Context, regionID string, limit int) ([]*model.ScanLogEntry, error)
	ClearScanLogs(ctx context.Context) (int64, error)
}

var _ MonitoringEngine = (*monitor.Engine)(nil)

// MonitoringHandler は監視エンジンの管理APIを提供する。
type MonitoringHandler struct {
	engine MonitoringEngine
	// baseCtx はStartで起動する定期実行の寿命。リクエストのコンテキストは使わない。
	baseCtx context.Context
	logger  *slog.Logger
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成する。
func NewMonitoringHandler(engine MonitoringEngine, baseCtx context.Context, logger *slog.Logger) *MonitoringHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitoringHandler{engine: engine, baseCtx: baseCtx, logger: logger}
}

// monitoringActionResponse は開始・停止などの操作結果のレスポンス。
type monitoringActionResponse struct {
	Status string `json:"status"`
}

// scanLogResponse はスキャンログ1件のレスポンス。
type scanLogResponse struct {
	ID            string           `json:"id"`
	RegionID      string           `json:"region_id"`
	Status        model.ScanStatus `json:"status"`
	ProductsFound int              `json:"products_found"`
	NewRestocks   int              `json:"new_restocks"`
	DurationMs    int64            `json:"duration_ms"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	Snapshot      json.RawMessage  `json:"snapshot,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// scanLogListResponse はスキャンログ一覧のレスポンス。
type scanLogListResponse struct {
	Logs []scanLogResponse `json:"logs"`
}

// clearScanLogsResponse はスキャンログ削除のレスポンス。
type clearScanLogsResponse struct {
	Deleted int64 `json:"deleted"`
}

// GetStatus は監視エンジンの稼働状態を返す。
// GET /api/admin/monitoring/status
func (h *MonitoringHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		h.logger.Error("稼働状態の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, status)
}

// StartMonitoring は監視エンジンを起動する。
// 初回サイクルは時間がかかるため、起動はバックグラウンドで行い即座に202を返す。
// POST /api/admin/monitoring/start
func (h *MonitoringHandler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	go h.engine.Start(h.baseCtx)
	middleware.WriteJSON(w, http.StatusAccepted, monitoringActionResponse{Status: "starting"})
}

// StopMonitoring は監視エンジンの定期実行を停止する。
// POST /api/admin/monitoring/stop
func (h *MonitoringHandler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	h.engine.Stop()
	middleware.WriteJSON(w, http.StatusOK, monitoringActionResponse{Status: "stopped"})
}

// ManualScan はスキャンサイクルを1回実行し、その集計を返す。
// POST /api/admin/monitoring/scan
func (h *MonitoringHandler) ManualScan(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.ManualScan(r.Context())
	if err != nil {
		h.logger.Warn("手動スキャンを実行できませんでした", slog.String("error", err.Error()))
		switch {
		case errors.Is(err, model.ErrFetchBackendUnavailable):
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewScanUnavailableError("取得バックエンドに到達できません"))
		case errors.Is(err, model.ErrRegionListUnavailable):
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewScanUnavailableError("対象リージョン一覧を取得できません"))
		default:
			middleware.WriteInternalServerError(w)
		}
		return
	}
	middleware.WriteJSON(w, http.StatusOK, summary)
}

// ResetStats は再入荷検出数と稼働時間をリセットする。
// POST /api/admin/monitoring/reset-stats
func (h *MonitoringHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetStats()
	middleware.WriteJSON(w, http.StatusOK, monitoringActionResponse{Status: "reset"})
}

// ListScanLogs はスキャンログを新しい順に返す。
// GET /api/admin/scan-logs?region_id=xxx&limit=100
func (h *MonitoringHandler) ListScanLogs(w http.ResponseWriter, r *http.Request) {
	regionID := r.URL.Query().Get("region_id")

	limit := monitor.DefaultScanLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidLimitError(raw))
			return
		}
		limit = n
	}

	entries, err := h.engine.RecentScanLogs(r.Context(), regionID, limit)
	if err != nil {
		h.logger.Error("スキャンログの取得に失敗しました",
			slog.String("region_id", regionID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	resp := scanLogListResponse{Logs: make([]scanLogResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Logs = append(resp.Logs, toScanLogResponse(e))
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// ClearScanLogs は全スキャンログを削除する。
// DELETE /api/admin/scan-logs
func (h *MonitoringHandler) ClearScanLogs(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.engine.ClearScanLogs(r.Context())
	if err != nil {
		h.logger.Error("スキャンログの削除に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, clearScanLogsResponse{Deleted: deleted})
}

func toScanLogResponse(e *model.ScanLogEntry) scanLogResponse {
	resp := scanLogResponse{
		ID:            e.ID,
		RegionID:      e.RegionID,
		Status:        e.Status,
		ProductsFound: e.ProductsFound,
		NewRestocks:   e.NewRestocks,
		DurationMs:    e.DurationMs,
		ErrorMessage:  e.ErrorMessage,
		CreatedAt:     e.CreatedAt,
	}
	if len(e.Snapshot) > 0 {
		resp.Snapshot = json.RawMessage(e.Snapshot)
	}
	return resp
}
