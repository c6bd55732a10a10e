package aggregate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// Repository provides database operations for the aggregate store and the
// read-only diagnosis event log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new aggregate repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Maintenance Operations ---

// Increment adds one case to the bucket row, creating it at 1 if absent.
func (r *Repository) Increment(ctx context.Context, disease string, areaID *types.ID, year, month int) error {
	query := `
		INSERT INTO case_aggregates (disease_name, area_id, year, month, total_cases)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (disease_name, area_id, year, month)
		DO UPDATE SET total_cases = case_aggregates.total_cases + 1`

	_, err := r.pool.Exec(ctx, query, disease, areaID, year, month)
	if err != nil {
		return errors.Wrap(err, "failed to increment case aggregate")
	}
	return nil
}

// Decrement removes one case from the bucket row and deletes the row when
// the count reaches zero. Negative counts are never stored.
func (r *Repository) Decrement(ctx context.Context, disease string, areaID *types.ID, year, month int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE case_aggregates
		SET total_cases = total_cases - 1
		WHERE disease_name = $1 AND area_id IS NOT DISTINCT FROM $2
		  AND year = $3 AND month = $4 AND total_cases > 0`,
		disease, areaID, year, month,
	)
	if err != nil {
		return errors.Wrap(err, "failed to decrement case aggregate")
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM case_aggregates
		WHERE disease_name = $1 AND area_id IS NOT DISTINCT FROM $2
		  AND year = $3 AND month = $4 AND total_cases <= 0`,
		disease, areaID, year, month,
	)
	if err != nil {
		return errors.Wrap(err, "failed to prune zeroed case aggregate")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit decrement")
	}
	return nil
}

// Rebuild truncates the aggregate store and regroups it from the diagnosis
// event log. Events with an empty disease name are excluded. Per-area rows
// and the all-areas rollup are regenerated in one transaction.
func (r *Repository) Rebuild(ctx context.Context) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin rebuild transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE case_aggregates`); err != nil {
		return errors.Wrap(err, "failed to truncate case aggregates")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO case_aggregates (disease_name, area_id, year, month, total_cases)
		SELECT disease_name, area_id,
		       EXTRACT(YEAR FROM occurred_at)::int,
		       EXTRACT(MONTH FROM occurred_at)::int,
		       COUNT(*)
		FROM diagnosis_events
		WHERE disease_name <> '' AND area_id IS NOT NULL
		GROUP BY disease_name, area_id, 3, 4`)
	if err != nil {
		return errors.Wrap(err, "failed to rebuild per-area aggregates")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO case_aggregates (disease_name, area_id, year, month, total_cases)
		SELECT disease_name, NULL,
		       EXTRACT(YEAR FROM occurred_at)::int,
		       EXTRACT(MONTH FROM occurred_at)::int,
		       COUNT(*)
		FROM diagnosis_events
		WHERE disease_name <> ''
		GROUP BY disease_name, 3, 4`)
	if err != nil {
		return errors.Wrap(err, "failed to rebuild rollup aggregates")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit rebuild")
	}
	return nil
}

// --- Read Operations ---

// HistoricalSeries returns the time-ordered monthly series. Disease filters
// when non-empty; areaID nil selects the all-areas rollup rows.
func (r *Repository) HistoricalSeries(ctx context.Context, disease string, areaID *types.ID) ([]MonthlyCount, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if areaID != nil {
		conditions = append(conditions, fmt.Sprintf("area_id = $%d", argNum))
		args = append(args, *areaID)
		argNum++
	} else {
		conditions = append(conditions, "area_id IS NULL")
	}

	if disease != "" {
		conditions = append(conditions, fmt.Sprintf("disease_name = $%d", argNum))
		args = append(args, disease)
		argNum++
	}

	query := fmt.Sprintf(`
		SELECT disease_name, year, month, total_cases
		FROM case_aggregates
		WHERE %s
		ORDER BY year, month, disease_name`, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query historical series")
	}
	defer rows.Close()

	var series []MonthlyCount
	for rows.Next() {
		var p MonthlyCount
		if err := rows.Scan(&p.Disease, &p.Year, &p.Month, &p.Cases); err != nil {
			return nil, errors.Wrap(err, "failed to scan series point")
		}
		series = append(series, p)
	}

	return series, nil
}

// AreaSeries returns per-barangay historical series with area metadata,
// used by the barangay-decomposed forecast path.
func (r *Repository) AreaSeries(ctx context.Context, disease string) ([]AreaSeries, error) {
	query := `
		SELECT b.id, b.name, b.lat, b.lng,
		       ca.disease_name, ca.year, ca.month, ca.total_cases
		FROM case_aggregates ca
		JOIN barangays b ON b.id = ca.area_id
		WHERE ca.disease_name = $1
		ORDER BY b.name, ca.year, ca.month`

	rows, err := r.pool.Query(ctx, query, disease)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query area series")
	}
	defer rows.Close()

	var result []AreaSeries
	byArea := make(map[types.ID]int)

	for rows.Next() {
		var b Barangay
		var p MonthlyCount
		if err := rows.Scan(&b.ID, &b.Name, &b.Lat, &b.Lng, &p.Disease, &p.Year, &p.Month, &p.Cases); err != nil {
			return nil, errors.Wrap(err, "failed to scan area series row")
		}

		idx, ok := byArea[b.ID]
		if !ok {
			result = append(result, AreaSeries{Barangay: b})
			idx = len(result) - 1
			byArea[b.ID] = idx
		}
		result[idx].Points = append(result[idx].Points, p)
	}

	return result, nil
}

// ListAggregates lists raw aggregate rows for the UI collaborator.
func (r *Repository) ListAggregates(ctx context.Context, filter ListFilter) ([]CaseAggregate, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Disease != "" {
		conditions = append(conditions, fmt.Sprintf("disease_name = $%d", argNum))
		args = append(args, filter.Disease)
		argNum++
	}

	if filter.AreaID != nil {
		conditions = append(conditions, fmt.Sprintf("area_id = $%d", argNum))
		args = append(args, *filter.AreaID)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM case_aggregates %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count aggregates")
	}

	limit := 100
	if filter.Limit > 0 && filter.Limit <= 500 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT disease_name, area_id, year, month, total_cases
		FROM case_aggregates
		%s
		ORDER BY year DESC, month DESC, disease_name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list aggregates")
	}
	defer rows.Close()

	var aggregates []CaseAggregate
	for rows.Next() {
		var a CaseAggregate
		if err := rows.Scan(&a.DiseaseName, &a.AreaID, &a.Year, &a.Month, &a.TotalCases); err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan aggregate")
		}
		aggregates = append(aggregates, a)
	}

	return aggregates, total, nil
}

// --- Event Log Reads (SEIR seeding) ---

// CurrentCounts returns live compartment seeds for a disease over its full
// event history.
func (r *Repository) CurrentCounts(ctx context.Context, disease string) (CurrentCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'confirmed'),
			COUNT(*) FILTER (WHERE status = 'suspected'),
			COUNT(*) FILTER (WHERE status = 'recovered')
		FROM diagnosis_events
		WHERE disease_name = $1`

	var c CurrentCounts
	err := r.pool.QueryRow(ctx, query, disease).Scan(&c.Confirmed, &c.Suspected, &c.Recovered)
	if err != nil {
		return CurrentCounts{}, errors.Wrap(err, "failed to query current counts")
	}
	return c, nil
}

// NewCasesSince counts diagnosis events for a disease on or after the cutoff.
func (r *Repository) NewCasesSince(ctx context.Context, disease string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM diagnosis_events
		WHERE disease_name = $1 AND occurred_at >= $2`,
		disease, since,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count new cases")
	}
	return n, nil
}

// DailyCounts returns per-day case counts for the trailing window, oldest
// first, with zero-filled gaps.
func (r *Repository) DailyCounts(ctx context.Context, disease string, days int) ([]int, error) {
	since := time.Now().UTC().AddDate(0, 0, -days+1).Truncate(24 * time.Hour)

	rows, err := r.pool.Query(ctx, `
		SELECT occurred_at::date, COUNT(*)
		FROM diagnosis_events
		WHERE disease_name = $1 AND occurred_at >= $2
		GROUP BY occurred_at::date
		ORDER BY occurred_at::date`,
		disease, since,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query daily counts")
	}
	defer rows.Close()

	byDay := make(map[string]int)
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan daily count")
		}
		byDay[day.Format("2006-01-02")] = n
	}

	counts := make([]int, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		counts[i] = byDay[day]
	}
	return counts, nil
}
