package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

func sampleAt(accountID string, at time.Time, followers int) *models.Sample {
	return &models.Sample{
		AccountID:  accountID,
		ObservedAt: at,
		Followers:  followers,
		Engagement: models.Engagement{AvgLikes: 10, AvgRetweets: 2, AvgReplies: 1},
		Source:     "fetcher",
	}
}

func TestPutThenLatestForRoundTrips(t *testing.T) {
	s := NewMemorySink()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(context.Background(), sampleAt("a1", at, 100)))

	got, ok := s.LatestFor("a1")
	require.True(t, ok)
	assert.Equal(t, 100, got.Followers)
	assert.True(t, at.Equal(got.ObservedAt))
}

func TestPutRejectsDuplicateObservedAt(t *testing.T) {
	s := NewMemorySink()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(context.Background(), sampleAt("a1", at, 100)))

	err := s.Put(context.Background(), sampleAt("a1", at, 200))
	require.Error(t, err)
	assert.Equal(t, engineerr.Conflict, engineerr.KindOf(err))
}

func TestRangeReturnsNewestFirst(t *testing.T) {
	s := NewMemorySink()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, followers := range []int{100, 110, 120} {
		require.NoError(t, s.Put(context.Background(), sampleAt("a1", base.Add(time.Duration(i)*time.Hour), followers)))
	}

	out := s.Range("a1", base, base.Add(3*time.Hour), 0, []string{"followers"})
	require.Len(t, out, 3)
	assert.Equal(t, float64(120), out[0]["followers"])
	assert.Equal(t, float64(100), out[2]["followers"])
}

func TestWeekBucketGroupsSundayWithPrecedingMonday(t *testing.T) {
	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // a Monday
	sundayLate := monday.AddDate(0, 0, 6).Add(23*time.Hour + 59*time.Minute)

	assert.True(t, truncate(sundayLate, GroupWeek).Equal(monday))
	assert.Equal(t, time.Monday, truncate(sundayLate, GroupWeek).Weekday())
}

func TestAnalyzeGrowthAcrossBuckets(t *testing.T) {
	s := NewMemorySink()
	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(context.Background(), sampleAt("a1", day0, 100)))
	require.NoError(t, s.Put(context.Background(), sampleAt("a1", day0.Add(24*time.Hour), 150)))

	results, err := s.Analyze(AnalysisGrowth, AnalysisQuery{
		AccountIDs: []string{"a1"},
		From:       day0,
		To:         day0.Add(48 * time.Hour),
		GroupBy:    GroupDay,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	summary := results[0].Summary
	assert.Equal(t, 50.0, summary["followers.absolute"])
	assert.Equal(t, 50.0, summary["followers.percent"])
	assert.Equal(t, 50.0, summary["followers.perDay"])
}

func TestAnalyzeEngagementAveragesAcrossBuckets(t *testing.T) {
	s := NewMemorySink()
	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := sampleAt("a1", day0, 100)
	a.Engagement = models.Engagement{AvgLikes: 10, AvgRetweets: 0, AvgReplies: 0}
	b := sampleAt("a1", day0.Add(24*time.Hour), 100)
	b.Engagement = models.Engagement{AvgLikes: 20, AvgRetweets: 0, AvgReplies: 0}
	require.NoError(t, s.Put(context.Background(), a))
	require.NoError(t, s.Put(context.Background(), b))

	results, err := s.Analyze(AnalysisEngagement, AnalysisQuery{
		AccountIDs: []string{"a1"}, From: day0, To: day0.Add(48 * time.Hour), GroupBy: GroupDay,
	})
	require.NoError(t, err)
	assert.Equal(t, 15.0, results[0].Summary["engagement.avgLikes"])
}

func TestAnalyzeReachIsTenAndFivePercentOfFollowers(t *testing.T) {
	s := NewMemorySink()
	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(context.Background(), sampleAt("a1", day0, 1000)))

	results, err := s.Analyze(AnalysisReach, AnalysisQuery{
		AccountIDs: []string{"a1"}, From: day0, To: day0.Add(time.Hour), GroupBy: GroupDay,
	})
	require.NoError(t, err)
	require.Len(t, results[0].Buckets, 1)
	assert.Equal(t, 100.0, results[0].Buckets[0].Values["impressions"])
	assert.Equal(t, 50.0, results[0].Buckets[0].Values["profileVisits"])
}

func TestAnalyzeSummaryCombinesGrowthAndEngagementRate(t *testing.T) {
	s := NewMemorySink()
	day0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := sampleAt("a1", day0, 100)
	a.Engagement = models.Engagement{AvgLikes: 5, AvgRetweets: 3, AvgReplies: 2}
	require.NoError(t, s.Put(context.Background(), a))

	results, err := s.Analyze(AnalysisSummary, AnalysisQuery{
		AccountIDs: []string{"a1"}, From: day0, To: day0.Add(time.Hour), GroupBy: GroupDay,
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, results[0].Summary["engagementRate"])
}
