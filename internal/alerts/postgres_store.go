package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northlane-labs/social-tracker/internal/engineerr"
	"github.com/northlane-labs/social-tracker/internal/models"
)

// PostgresStore persists alert rules and trigger history via pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const alertsSchema = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL,
	metric            TEXT NOT NULL,
	op                TEXT NOT NULL,
	threshold         DOUBLE PRECISION NOT NULL,
	window            TEXT NOT NULL DEFAULT '',
	channel           TEXT NOT NULL,
	channel_config    JSONB,
	description       TEXT NOT NULL DEFAULT '',
	active            BOOLEAN NOT NULL,
	last_triggered_at TIMESTAMPTZ
);

ALTER TABLE alert_rules ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE TABLE IF NOT EXISTS triggered_alerts (
	id            TEXT PRIMARY KEY,
	rule_id       TEXT NOT NULL,
	account_id    TEXT NOT NULL,
	metric        TEXT NOT NULL,
	op            TEXT NOT NULL,
	threshold     DOUBLE PRECISION NOT NULL,
	actual_value  DOUBLE PRECISION NOT NULL,
	sample_at     TIMESTAMPTZ NOT NULL,
	fired_at      TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the alert tables if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, alertsSchema); err != nil {
		return engineerr.Wrap(engineerr.Internal, "migrate alert tables", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, rule *models.AlertRule) error {
	cfg, err := json.Marshal(rule.ChannelConfig)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "marshal channel config", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO alert_rules (id, account_id, metric, op, threshold, window, channel, channel_config, description, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rule.ID, rule.AccountID, rule.Metric, string(rule.Op), rule.Threshold, string(rule.Window),
		string(rule.Channel), nullableJSON(cfg), rule.Description, rule.Active)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "insert alert rule", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rule *models.AlertRule) error {
	cfg, err := json.Marshal(rule.ChannelConfig)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "marshal channel config", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE alert_rules SET account_id=$2, metric=$3, op=$4, threshold=$5, window=$6,
			channel=$7, channel_config=$8, description=$9, active=$10
		WHERE id=$1`,
		rule.ID, rule.AccountID, rule.Metric, string(rule.Op), rule.Threshold, string(rule.Window),
		string(rule.Channel), nullableJSON(cfg), rule.Description, rule.Active)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "update alert rule", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.New(engineerr.NotFound, "alert rule not found")
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "delete alert rule", err)
	}
	if tag.RowsAffected() == 0 {
		return engineerr.New(engineerr.NotFound, "alert rule not found")
	}
	return nil
}

func (s *PostgresStore) Get(id string) (*models.AlertRule, bool) {
	row := s.pool.QueryRow(context.Background(), `
		SELECT id, account_id, metric, op, threshold, window, channel, channel_config, description, active, last_triggered_at
		FROM alert_rules WHERE id = $1`, id)
	r, err := scanRule(row)
	if err != nil {
		return nil, false
	}
	return r, true
}

func (s *PostgresStore) List(filter models.AlertRuleFilter) []*models.AlertRule {
	rows, err := s.pool.Query(context.Background(), `
		SELECT id, account_id, metric, op, threshold, window, channel, channel_config, description, active, last_triggered_at
		FROM alert_rules ORDER BY seq`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []*models.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			continue
		}
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *PostgresStore) RecordTrigger(ctx context.Context, t *models.TriggeredAlert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO triggered_alerts (id, rule_id, account_id, metric, op, threshold, actual_value, sample_at, fired_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.RuleID, t.AccountID, t.Metric, string(t.Op), t.Threshold, t.ActualValue, t.SampleAt, t.FiredAt)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "insert triggered alert", err)
	}
	_, err = s.pool.Exec(ctx, `UPDATE alert_rules SET last_triggered_at = $2 WHERE id = $1`, t.RuleID, t.SampleAt)
	if err != nil {
		return engineerr.Wrap(engineerr.Internal, "update rule last_triggered_at", err)
	}
	return nil
}

func (s *PostgresStore) History(filter models.TriggeredAlertFilter, limit int) []*models.TriggeredAlert {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(context.Background(), `
		SELECT id, rule_id, account_id, metric, op, threshold, actual_value, sample_at, fired_at
		FROM triggered_alerts ORDER BY fired_at DESC LIMIT $1`, limit*4)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []*models.TriggeredAlert
	for rows.Next() {
		var t models.TriggeredAlert
		var op string
		if err := rows.Scan(&t.ID, &t.RuleID, &t.AccountID, &t.Metric, &op, &t.Threshold, &t.ActualValue, &t.SampleAt, &t.FiredAt); err != nil {
			continue
		}
		t.Op = models.Op(op)
		if !filter.Matches(&t) {
			continue
		}
		out = append(out, &t)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func nullableJSON(b []byte) any {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var (
		r             models.AlertRule
		op, window    string
		channel       string
		cfg           []byte
		lastTriggered *time.Time
	)
	if err := row.Scan(&r.ID, &r.AccountID, &r.Metric, &op, &r.Threshold, &window, &channel, &cfg,
		&r.Description, &r.Active, &lastTriggered); err != nil {
		if err == pgx.ErrNoRows {
			return nil, engineerr.New(engineerr.NotFound, "alert rule not found")
		}
		return nil, engineerr.Wrap(engineerr.Internal, "scan alert rule row", err)
	}
	r.Op = models.Op(op)
	r.Window = models.Window(window)
	r.Channel = models.Channel(channel)
	r.LastTriggeredAt = lastTriggered
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &r.ChannelConfig); err != nil {
			return nil, engineerr.Wrap(engineerr.Internal, "unmarshal channel config", err)
		}
	}
	return &r, nil
}
