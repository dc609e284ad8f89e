package metrics

import (
	"math"
	"time"

	"github.com/northlane-labs/social-tracker/internal/models"
)

const dayMin = 24 * time.Hour

// growthSummary computes absolute/percent/perDay growth for every metric
// across the first and last bucket.
func growthSummary(buckets []Bucket) map[string]float64 {
	out := map[string]float64{}
	if len(buckets) == 0 {
		return out
	}
	first, last := buckets[0], buckets[len(buckets)-1]
	span := last.Start.Sub(first.Start)
	if span < dayMin {
		span = dayMin
	}
	days := span.Hours() / 24

	for _, metric := range models.SampleFields {
		x0, ok0 := first.Values[metric]
		xn, okn := last.Values[metric]
		if !ok0 || !okn {
			continue
		}
		absolute := xn - x0
		percent := 0.0
		if x0 != 0 {
			percent = (absolute / x0) * 100
		}
		out[metric+".absolute"] = absolute
		out[metric+".percent"] = round2(percent)
		out[metric+".perDay"] = round2(absolute / days)
	}
	return out
}

// engagementSummary averages each engagement field across buckets with a
// present value, rounded to the nearest integer.
func engagementSummary(buckets []Bucket) map[string]float64 {
	fields := []string{"engagement.avgLikes", "engagement.avgRetweets", "engagement.avgReplies"}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, b := range buckets {
		for _, f := range fields {
			if v, ok := b.Values[f]; ok {
				sums[f] += v
				counts[f]++
			}
		}
	}
	out := map[string]float64{}
	for _, f := range fields {
		if counts[f] == 0 {
			out[f] = 0
			continue
		}
		out[f] = math.Round(sums[f] / float64(counts[f]))
	}
	return out
}

// reachBuckets attaches the synthetic impressions/profileVisits estimator
// to each bucket's follower count.
func reachBuckets(buckets []Bucket) []Bucket {
	out := make([]Bucket, len(buckets))
	for i, b := range buckets {
		values := make(map[string]float64, len(b.Values)+2)
		for k, v := range b.Values {
			values[k] = v
		}
		followers := b.Values["followers"]
		values["impressions"] = round2(0.10 * followers)
		values["profileVisits"] = round2(0.05 * followers)
		out[i] = Bucket{Start: b.Start, Values: values}
	}
	return out
}

// fullSummary combines the current snapshot, growth, per-day derivatives,
// and the overall engagement rate into one rounded-to-2-decimals map.
func fullSummary(buckets []Bucket) map[string]float64 {
	out := growthSummary(buckets)
	if len(buckets) == 0 {
		return out
	}
	current := buckets[len(buckets)-1].Values
	for k, v := range current {
		out["current."+k] = v
	}

	followers := current["followers"]
	likes := current["engagement.avgLikes"]
	retweets := current["engagement.avgRetweets"]
	replies := current["engagement.avgReplies"]

	denom := followers
	if denom < 1 {
		denom = 1
	}
	out["engagementRate"] = round2((likes + retweets + replies) / denom * 100)
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
