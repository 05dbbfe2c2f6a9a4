package domain

import "time"

const (
	StatusImported  = "imported"
	StatusExtracted = "extracted"
	StatusFailed    = "failed"
	StatusUnmatched = "unmatched"
)

const (
	ErrCodeNoHandler     = "no_handler"
	ErrCodeUnmatchedPage = "unmatched_page"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeBlocked       = "blocked"
	ErrCodeConfigMissing = "config_missing"
	ErrCodeNetwork       = "network"
	ErrCodeTimeout       = "timeout"
	ErrCodeApplication   = "application"
)

// BatchReport 是 CLI 批量 extract/import 的稳定输出（stdout JSON），Items 与输入 URL 同序。
type BatchReport struct {
	DryRun bool `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Imported  int `json:"imported"`
	Extracted int `json:"extracted"`
	Failed    int `json:"failed"`
	Unmatched int `json:"unmatched"`
}

// ItemResult 是单个 URL 的处理结果。
type ItemResult struct {
	URL      string `json:"url"`
	UniqueID string `json:"uniqueid"`
	Handler  string `json:"handler"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Magnets int `json:"magnets"`
}

// Finalize 统一时间为 UTC 并重算 summary。
//
// 约束：Items 保持调用方给定的顺序（即输入 URL 顺序），这里不排序。
func (r *BatchReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusImported:
			s.Imported++
		case StatusExtracted:
			s.Extracted++
		case StatusFailed:
			s.Failed++
		case StatusUnmatched:
			s.Unmatched++
		}
	}
	r.Summary = s
}
