package forecast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// Repository is the append-only forecast run ledger. Runs are saved and
// listed, individually deletable for administrative cleanup, and never
// updated in place.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ledger repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save appends a forecast run to the ledger.
func (r *Repository) Save(ctx context.Context, run Run) error {
	series, err := json.Marshal(run.Series)
	if err != nil {
		return errors.Wrap(err, "failed to serialize forecast series")
	}
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return errors.Wrap(err, "failed to serialize summary indicators")
	}

	var breakdown []byte
	if run.Breakdown != nil {
		breakdown, err = json.Marshal(run.Breakdown)
		if err != nil {
			return errors.Wrap(err, "failed to serialize area breakdown")
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO forecast_runs (
			id, disease, forecast_type, period_length, population,
			forecast_series, summary, area_breakdown, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Disease, run.ForecastType, run.PeriodLength, run.Population,
		series, summary, breakdown, run.GeneratedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save forecast run")
	}
	return nil
}

// ListRecent returns the newest runs, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, disease, forecast_type, period_length, population,
		       forecast_series, summary, area_breakdown, generated_at
		FROM forecast_runs
		ORDER BY generated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list forecast runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// FindRecent returns the newest run for a disease and type no older than
// maxAge, or nil when there is none.
func (r *Repository) FindRecent(ctx context.Context, disease string, forecastType Type, maxAge time.Duration) (*Run, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	rows, err := r.pool.Query(ctx, `
		SELECT id, disease, forecast_type, period_length, population,
		       forecast_series, summary, area_breakdown, generated_at
		FROM forecast_runs
		WHERE disease = $1 AND forecast_type = $2 AND generated_at >= $3
		ORDER BY generated_at DESC
		LIMIT 1`, disease, forecastType, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find recent forecast run")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	run, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Delete removes a run by identifier (administrative cleanup of bad runs).
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM forecast_runs WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete forecast run")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("forecast run", id.String())
	}

	return nil
}

// scanRun scans one ledger row including its JSON columns.
func scanRun(rows pgx.Rows) (Run, error) {
	var run Run
	var series, summary, breakdown []byte

	err := rows.Scan(
		&run.ID, &run.Disease, &run.ForecastType, &run.PeriodLength, &run.Population,
		&series, &summary, &breakdown, &run.GeneratedAt,
	)
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to scan forecast run")
	}

	if err := json.Unmarshal(series, &run.Series); err != nil {
		return Run{}, errors.Wrap(err, "failed to decode forecast series")
	}
	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return Run{}, errors.Wrap(err, "failed to decode summary indicators")
	}
	if len(breakdown) > 0 {
		run.Breakdown = &AreaBreakdown{}
		if err := json.Unmarshal(breakdown, run.Breakdown); err != nil {
			return Run{}, errors.Wrap(err, "failed to decode area breakdown")
		}
	}

	return run, nil
}
