package models

import "time"

// Engagement aggregates interaction counts over the recent posts observed in a Sample.
type Engagement struct {
	AvgLikes    int `json:"avgLikes"`
	AvgRetweets int `json:"avgRetweets"`
	AvgReplies  int `json:"avgReplies"`
}

// Sample is one observation of an account's counts and engagement.
type Sample struct {
	AccountID  string    `json:"accountId"`
	ObservedAt time.Time `json:"observedAt"`

	Followers int `json:"followers"`
	Following int `json:"following"`
	Posts     int `json:"posts"`

	Engagement Engagement `json:"engagement"`

	Source      string     `json:"source"`
	PreviousRef *time.Time `json:"previousRef,omitempty"`
}

// Field resolves a dotted metric path (e.g. "followers", "engagement.avgLikes")
// against the sample. The second return value is false when the path is unknown.
func (s *Sample) Field(path string) (float64, bool) {
	switch path {
	case "followers":
		return float64(s.Followers), true
	case "following":
		return float64(s.Following), true
	case "posts":
		return float64(s.Posts), true
	case "engagement.avgLikes":
		return float64(s.Engagement.AvgLikes), true
	case "engagement.avgRetweets":
		return float64(s.Engagement.AvgRetweets), true
	case "engagement.avgReplies":
		return float64(s.Engagement.AvgReplies), true
	default:
		return 0, false
	}
}

// SampleFields lists every dotted path Field understands, for projection and validation.
var SampleFields = []string{
	"followers",
	"following",
	"posts",
	"engagement.avgLikes",
	"engagement.avgRetweets",
	"engagement.avgReplies",
}
