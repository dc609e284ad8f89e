package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// PostgresStore persists accounts to a Postgres table via pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	username        TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	profile_url     TEXT NOT NULL DEFAULT '',
	priority        SMALLINT NOT NULL,
	active          BOOLEAN NOT NULL,
	tags            JSONB NOT NULL DEFAULT '[]',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	last_scraped_at TIMESTAMPTZ,
	last_error      JSONB
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_lower_idx ON accounts (LOWER(username));
`

// Migrate creates the accounts table if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, accountsSchema)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "migrate accounts table", err)
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, display_name, profile_url, priority, active, tags,
		       created_at, updated_at, last_scraped_at, last_error
		FROM accounts`)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "query accounts", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.Wrap(engineerr.Internal, "iterate accounts", err)
	}
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, account *models.Account) error {
	tags, err := json.Marshal(account.Tags)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "marshal tags", err)
	}
	var lastError []byte
	if account.LastError != nil {
		lastError, err = json.Marshal(account.LastError)
		if err != nil {
			return engineerr.Wrap(engineerr.Internal, "marshal last error", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, display_name, profile_url, priority, active, tags,
		                       created_at, updated_at, last_scraped_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			profile_url = EXCLUDED.profile_url,
			priority = EXCLUDED.priority,
			active = EXCLUDED.active,
			tags = EXCLUDED.tags,
			updated_at = EXCLUDED.updated_at,
			last_scraped_at = EXCLUDED.last_scraped_at,
			last_error = EXCLUDED.last_error`,
		account.ID, account.Username, account.DisplayName, account.ProfileURL,
		int16(account.Priority), account.Active, tags,
		account.CreatedAt, account.UpdatedAt, account.LastScrapedAt, nullableJSON(lastError))
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "upsert account", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "delete account", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a             models.Account
		priority      int16
		tags          []byte
		lastScrapedAt *time.Time
		lastError     []byte
	)

	if err := row.Scan(&a.ID, &a.Username, &a.DisplayName, &a.ProfileURL, &priority, &a.Active, &tags,
		&a.CreatedAt, &a.UpdatedAt, &lastScrapedAt, &lastError); err != nil {
		if err == pgx.ErrNoRows {
			return nil, engineerr.New(engineerr.NotFound, "account not found")
		}
		return nil, engineerr.Wrap(engineerr.Internal, "scan account row", err)
	}

	a.Priority = models.Priority(priority)
	a.LastScrapedAt = lastScrapedAt

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &a.Tags); err != nil {
			return nil, engineerr.Wrap(engineerr.Internal, "unmarshal tags", err)
		}
	}
	if len(lastError) > 0 {
		var se models.ScrapeError
		if err := json.Unmarshal(lastError, &se); err != nil {
			return nil, engineerr.Wrap(engineerr.Internal, "unmarshal last error", err)
		}
		a.LastError = &se
	}

	return &a, nil
}
