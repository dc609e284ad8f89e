package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// MemorySink is the in-memory reference Sink implementation.
type MemorySink struct {
	mu     sync.RWMutex
	byAcct map[string][]*models.Sample // each slice kept sorted ascending by ObservedAt
}

// NewMemorySink returns an empty in-memory metrics store.
func NewMemorySink() *MemorySink {
	return &MemorySink{byAcct: make(map[string][]*models.Sample)}
}

func (s *MemorySink) Put(_ context.Context, sample *models.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.byAcct[sample.AccountID]
	for _, existing := range samples {
		if existing.ObservedAt.Equal(sample.ObservedAt) {
			return engineerr.New(engineerr.Conflict, "sample already exists for this accountId and observedAt")
		}
	}

	clone := *sample
	idx := sort.Search(len(samples), func(i int) bool { return samples[i].ObservedAt.After(sample.ObservedAt) })
	samples = append(samples, nil)
	copy(samples[idx+1:], samples[idx:])
	samples[idx] = &clone
	s.byAcct[sample.AccountID] = samples
	return nil
}

func (s *MemorySink) LatestFor(accountID string) (*models.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	samples := s.byAcct[accountID]
	if len(samples) == 0 {
		return nil, false
	}
	clone := *samples[len(samples)-1]
	return &clone, true
}

func (s *MemorySink) Latest(limit int, fields []string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Sample
	for _, samples := range s.byAcct {
		all = append(all, samples...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ObservedAt.After(all[j].ObservedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]map[string]any, 0, len(all))
	for _, sm := range all {
		out = append(out, project(sm, fields))
	}
	return out
}

func (s *MemorySink) Range(accountID string, from, to time.Time, limit int, fields []string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Sample
	for _, sm := range s.byAcct[accountID] {
		if sm.ObservedAt.Before(from) || sm.ObservedAt.After(to) {
			continue
		}
		matched = append(matched, sm)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ObservedAt.After(matched[j].ObservedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]map[string]any, 0, len(matched))
	for _, sm := range matched {
		out = append(out, project(sm, fields))
	}
	return out
}

func (s *MemorySink) Analyze(kind AnalysisKind, query AnalysisQuery) ([]AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountIDs := query.AccountIDs
	if len(accountIDs) == 0 {
		for id := range s.byAcct {
			accountIDs = append(accountIDs, id)
		}
		sort.Strings(accountIDs)
	}

	results := make([]AnalysisResult, 0, len(accountIDs))
	for _, id := range accountIDs {
		buckets := bucketSamples(s.byAcct[id], query.From, query.To, query.GroupBy)
		res := AnalysisResult{AccountID: id, Kind: kind, Buckets: buckets}
		switch kind {
		case AnalysisGrowth:
			res.Summary = growthSummary(buckets)
		case AnalysisEngagement:
			res.Summary = engagementSummary(buckets)
		case AnalysisReach:
			res.Buckets = reachBuckets(buckets)
		case AnalysisSummary:
			res.Summary = fullSummary(buckets)
		}
		results = append(results, res)
	}
	return results, nil
}

// bucketSamples groups samples into ascending-time buckets, keeping only the
// first sample encountered per bucket as its representative.
func bucketSamples(samples []*models.Sample, from, to time.Time, g GroupBy) []Bucket {
	seen := make(map[time.Time]bool)
	var buckets []Bucket
	for _, sm := range samples {
		if !from.IsZero() && sm.ObservedAt.Before(from) {
			continue
		}
		if !to.IsZero() && sm.ObservedAt.After(to) {
			continue
		}
		start := truncate(sm.ObservedAt, g)
		if seen[start] {
			continue
		}
		seen[start] = true
		buckets = append(buckets, Bucket{Start: start, Values: projectNumeric(sm, nil)})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets
}
