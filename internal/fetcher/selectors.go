package fetcher

// Selectors is the set of CSS selectors used to pull fields out of a
// rendered profile page. These are configuration, not contract: a
// selector miss on a required field surfaces as a Parse error rather
// than changing the Fetcher's procedure.
type Selectors struct {
	DisplayName string
	Bio         string
	Location    string
	ExternalURL string
	JoinDate    string
	Verified    string

	StatsContainer  string
	FollowersCount  string
	FollowingCount  string
	PostsCount      string

	PostCell       string
	PostPromoted   string
	PostSocialCtx  string
	PostLikes      string
	PostRetweets   string
	PostReplies    string
}

// DefaultSelectors returns a reasonable set of selectors for a generic
// social profile template. Real deployments override these via
// configuration to match the target site's markup.
func DefaultSelectors() Selectors {
	return Selectors{
		DisplayName: `[data-testid="profile-name"]`,
		Bio:         `[data-testid="profile-bio"]`,
		Location:    `[data-testid="profile-location"]`,
		ExternalURL: `[data-testid="profile-website"]`,
		JoinDate:    `[data-testid="profile-joined"]`,
		Verified:    `[data-testid="profile-verified-badge"]`,

		StatsContainer: `[data-testid="profile-stats"]`,
		FollowersCount: `[data-testid="stat-followers"] span`,
		FollowingCount: `[data-testid="stat-following"] span`,
		PostsCount:     `[data-testid="stat-posts"] span`,

		PostCell:      `[data-testid="post-cell"]`,
		PostPromoted:  `[data-testid="post-promoted"]`,
		PostSocialCtx: `[data-testid="post-social-context"]`,
		PostLikes:     `[data-testid="post-like-count"]`,
		PostRetweets:  `[data-testid="post-retweet-count"]`,
		PostReplies:   `[data-testid="post-reply-count"]`,
	}
}
