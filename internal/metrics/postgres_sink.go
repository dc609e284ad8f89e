package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// PostgresSink persists samples to a Postgres table via pgxpool, and serves
// Analyze by loading the relevant range into memory and reusing the same
// bucketing/derivation code as MemorySink.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an already-connected pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

const samplesSchema = `
CREATE TABLE IF NOT EXISTS samples (
	account_id   TEXT NOT NULL,
	observed_at  TIMESTAMPTZ NOT NULL,
	followers    INTEGER NOT NULL,
	following    INTEGER NOT NULL,
	posts        INTEGER NOT NULL,
	avg_likes    INTEGER NOT NULL,
	avg_retweets INTEGER NOT NULL,
	avg_replies  INTEGER NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (account_id, observed_at)
);
`

// Migrate creates the samples table if it does not already exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, samplesSchema); err != nil {
		return engineerr.Wrap(engineerr.Internal, "migrate samples table", err)
	}
	return nil
}

func (s *PostgresSink) Put(ctx context.Context, sample *models.Sample) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO samples (account_id, observed_at, followers, following, posts,
		                      avg_likes, avg_retweets, avg_replies, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sample.AccountID, sample.ObservedAt, sample.Followers, sample.Following, sample.Posts,
		sample.Engagement.AvgLikes, sample.Engagement.AvgRetweets, sample.Engagement.AvgReplies,
		sample.Source)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return engineerr.New(engineerr.Conflict, "sample already exists for this accountId and observedAt")
		}
		return engineerr.Wrap(engineerr.Internal, "insert sample", err)
	}
	return nil
}

func (s *PostgresSink) LatestFor(accountID string) (*models.Sample, bool) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT account_id, observed_at, followers, following, posts, avg_likes, avg_retweets, avg_replies, source
		FROM samples WHERE account_id = $1 ORDER BY observed_at DESC LIMIT 1`, accountID)
	sm, err := scanSample(row)
	if err != nil {
		return nil, false
	}
	return sm, true
}

func (s *PostgresSink) Latest(limit int, fields []string) []map[string]any {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(context.Background(), `
		SELECT account_id, observed_at, followers, following, posts, avg_likes, avg_retweets, avg_replies, source
		FROM samples ORDER BY observed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		sm, err := scanSample(rows)
		if err != nil {
			continue
		}
		out = append(out, project(sm, fields))
	}
	return out
}

func (s *PostgresSink) Range(accountID string, from, to time.Time, limit int, fields []string) []map[string]any {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(context.Background(), `
		SELECT account_id, observed_at, followers, following, posts, avg_likes, avg_retweets, avg_replies, source
		FROM samples WHERE account_id = $1 AND observed_at BETWEEN $2 AND $3
		ORDER BY observed_at DESC LIMIT $4`, accountID, from, to, limit)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		sm, err := scanSample(rows)
		if err != nil {
			continue
		}
		out = append(out, project(sm, fields))
	}
	return out
}

// Analyze loads every sample for the requested accounts in range, then
// reuses the in-process bucketing/derivation logic MemorySink uses.
func (s *PostgresSink) Analyze(kind AnalysisKind, query AnalysisQuery) ([]AnalysisResult, error) {
	accountIDs := query.AccountIDs
	if len(accountIDs) == 0 {
		rows, err := s.pool.Query(context.Background(), `SELECT DISTINCT account_id FROM samples`)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.Internal, "list accounts with samples", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, engineerr.Wrap(engineerr.Internal, "scan account id", err)
			}
			accountIDs = append(accountIDs, id)
		}
	}

	results := make([]AnalysisResult, 0, len(accountIDs))
	for _, id := range accountIDs {
		rows, err := s.pool.Query(context.Background(), `
			SELECT account_id, observed_at, followers, following, posts, avg_likes, avg_retweets, avg_replies, source
			FROM samples WHERE account_id = $1 AND observed_at BETWEEN $2 AND $3
			ORDER BY observed_at ASC`, id, query.From, query.To)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.Internal, "query samples for analysis", err)
		}
		var samples []*models.Sample
		for rows.Next() {
			sm, err := scanSample(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			samples = append(samples, sm)
		}
		rows.Close()

		buckets := bucketSamples(samples, query.From, query.To, query.GroupBy)
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

type pgRowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row pgRowScanner) (*models.Sample, error) {
	var sm models.Sample
	if err := row.Scan(&sm.AccountID, &sm.ObservedAt, &sm.Followers, &sm.Following, &sm.Posts,
		&sm.Engagement.AvgLikes, &sm.Engagement.AvgRetweets, &sm.Engagement.AvgReplies, &sm.Source); err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "scan sample row", err)
	}
	return &sm, nil
}
