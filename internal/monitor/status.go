package monitor

import "time"

// Trigger はスキャンサイクルの起動要因。
type Trigger string

const (
	TriggerStart  Trigger = "start"
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// Outcome はスキャンサイクル全体の結果。
type Outcome string

const (
	// OutcomeOK は全リージョンが成功。
	OutcomeOK Outcome = "ok"
	// OutcomePartial は一部のリージョンが失敗、または途中で中断。
	OutcomePartial Outcome = "partial"
	// OutcomeFailed は全リージョンが失敗、または対象リージョンを取得できなかった。
	OutcomeFailed Outcome = "failed"
)

// CycleSummary はスキャンサイクル1回分の集計。
type CycleSummary struct {
	Trigger        Trigger   `json:"trigger"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	RegionsScanned int       `json:"regions_scanned"`
	RegionsFailed  int       `json:"regions_failed"`
	NewRestocks    int       `json:"new_restocks"`
	Outcome        Outcome   `json:"outcome"`
	Error          string    `json:"error,omitempty"`
}

// Status はエンジンの稼働状態。
// Runningで停止中かどうか、LastCycleで直近サイクルの失敗を区別できる。
type Status struct {
	Running               bool          `json:"running"`
	UptimeMs              *int64        `json:"uptime_ms,omitempty"`
	RegionsMonitored      int           `json:"regions_monitored"`
	RegionsError          string        `json:"regions_error,omitempty"`
	RestocksDetectedTotal int           `json:"restocks_detected_total"`
	CycleInProgress       bool          `json:"cycle_in_progress"`
	LastCycle             *CycleSummary `json:"last_cycle,omitempty"`
}

func (s *CycleSummary) finish(at time.Time) {
	s.FinishedAt = at
	switch {
	case s.Error != "" && s.RegionsScanned == 0:
		s.Outcome = OutcomeFailed
	case s.RegionsFailed == 0 && s.Error == "":
		s.Outcome = OutcomeOK
	case s.RegionsScanned > 0 && s.RegionsFailed == s.RegionsScanned && s.Error == "":
		s.Outcome = OutcomeFailed
	default:
		s.Outcome = OutcomePartial
	}
}
