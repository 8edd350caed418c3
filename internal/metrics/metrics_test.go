package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherFamily は指定名のメトリクスファミリーを返す。見つからない場合はテストを失敗させる。
func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordScan_CountsByStatus はスキャン数がステータス別に記録されることを検証する。
func TestRecordScan_CountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordScan("success", 100*time.Millisecond)
	c.RecordScan("success", 2*time.Second)
	c.RecordScan("blocked", time.Second)

	mf := gatherFamily(t, reg, "restockwatch_scans_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		label := m.GetLabel()[0].GetValue()
		val := m.GetCounter().GetValue()
		switch label {
		case "success":
			if val != 2 {
				t.Errorf("scans_total{status=success} = %v, want 2", val)
			}
		case "blocked":
			if val != 1 {
				t.Errorf("scans_total{status=blocked} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", label)
		}
	}

	h := gatherFamily(t, reg, "restockwatch_scan_duration_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 3 {
		t.Errorf("sample_count = %d, want 3", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 + 1.0 = 3.1秒
	if h.GetSampleSum() < 3.0 || h.GetSampleSum() > 3.2 {
		t.Errorf("sample_sum = %v, want ~3.1", h.GetSampleSum())
	}
}

// TestRecordRestocks_IncrementsCounter は再入荷カウンタが加算されることを検証する。
func TestRecordRestocks_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRestocks(2)
	c.RecordRestocks(0)
	c.RecordRestocks(3)
	c.RecordProductsFound(40)

	if val := gatherFamily(t, reg, "restockwatch_restocks_detected_total").GetMetric()[0].GetCounter().GetValue(); val != 5 {
		t.Errorf("restocks_detected_total = %v, want 5", val)
	}
	if val := gatherFamily(t, reg, "restockwatch_products_found_total").GetMetric()[0].GetCounter().GetValue(); val != 40 {
		t.Errorf("products_found_total = %v, want 40", val)
	}
}

// TestRecordNotification_LabelsChannelAndStatus は通知数がチャネル・結果別に記録されることを検証する。
func TestRecordNotification_LabelsChannelAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNotification("email", "sent")
	c.RecordNotification("push", "failed")
	c.RecordNotification("email", "sent")

	mf := gatherFamily(t, reg, "restockwatch_notifications_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
}

// TestRecordCycle_CountsTriggersAndSkips はサイクル数とスキップ数が記録されることを検証する。
func TestRecordCycle_CountsTriggersAndSkips(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCycle("timer")
	c.RecordCycle("manual")
	c.RecordCycleSkipped()
	c.RecordHTTPStatus(429)

	if n := len(gatherFamily(t, reg, "restockwatch_cycles_total").GetMetric()); n != 2 {
		t.Errorf("expected 2 trigger labels, got %d", n)
	}
	if val := gatherFamily(t, reg, "restockwatch_cycles_skipped_total").GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("cycles_skipped_total = %v, want 1", val)
	}
	if label := gatherFamily(t, reg, "restockwatch_fetch_http_status_total").GetMetric()[0].GetLabel()[0].GetValue(); label != "429" {
		t.Errorf("status_code label = %q, want 429", label)
	}
}
