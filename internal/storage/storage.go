package storage

import "traderScope/internal/model"

// ReportSink receives analyzed trader summaries.
type ReportSink interface {
	PutSummaries(summaries []model.TraderSummary) error
}
