// Package metrics implements the append-only time-series store behind
// Sample ingestion and the derived analytics the control plane reads:
// latest-per-account, range queries, and grouped
// growth/engagement/reach/summary aggregations.
package metrics

import (
	"context"
	"time"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// AnalysisKind selects which derived aggregation Analyze computes.
type AnalysisKind string

const (
	AnalysisGrowth     AnalysisKind = "growth"
	AnalysisEngagement AnalysisKind = "engagement"
	AnalysisReach      AnalysisKind = "reach"
	AnalysisSummary    AnalysisKind = "summary"
)

// GroupBy is the bucket granularity for Analyze.
type GroupBy string

const (
	GroupHour  GroupBy = "hour"
	GroupDay   GroupBy = "day"
	GroupWeek  GroupBy = "week"
	GroupMonth GroupBy = "month"
)

// AnalysisQuery scopes an Analyze call.
type AnalysisQuery struct {
	AccountIDs []string
	From       time.Time
	To         time.Time
	GroupBy    GroupBy
}

// AnalysisResult is one account's aggregation, bucketed in ascending time order.
type AnalysisResult struct {
	AccountID string             `json:"accountId"`
	Kind      AnalysisKind       `json:"kind"`
	Buckets   []Bucket           `json:"buckets"`
	Summary   map[string]float64 `json:"summary,omitempty"`
}

// Bucket is one grouped time-window's representative values.
type Bucket struct {
	Start  time.Time          `json:"start"`
	Values map[string]float64 `json:"values"`
}

// Sink is the Metrics Store contract. Two implementations share it:
// MemorySink (reference, default) and PostgresSink.
type Sink interface {
	Put(ctx context.Context, sample *models.Sample) error
	LatestFor(accountID string) (*models.Sample, bool)
	Latest(limit int, fields []string) []map[string]any
	Range(accountID string, from, to time.Time, limit int, fields []string) []map[string]any
	Analyze(kind AnalysisKind, query AnalysisQuery) ([]AnalysisResult, error)
}
