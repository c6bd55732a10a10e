// Package legacy imports diagnosis history from the legacy patient records
// system (SQL Server) when a facility migrates onto the forecasting engine.
// Rows are copied into the local event table and replayed through the
// aggregate hooks, so forecasts have history from day one.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yellyhaze23/prms-forecast/internal/aggregate"
	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// legacyNamespace derives stable event identifiers from legacy record IDs,
// so re-running the importer never duplicates events.
var legacyNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// Aggregator receives replayed diagnosis events. Satisfied by
// *aggregate.Service.
type Aggregator interface {
	OnEventInserted(ctx context.Context, e aggregate.DiagnosisEvent)
	RebuildAll(ctx context.Context) error
}

// Importer polls the legacy database and mirrors its diagnosis records into
// the engine. Restart-safe: already-imported rows are skipped.
type Importer struct {
	cfg  config.LegacyConfig
	pool *pgxpool.Pool
	agg  Aggregator

	db      *sql.DB
	running bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// cursor is the newest RecordedAt seen; each poll resumes from it
	cursor time.Time
}

// NewImporter creates a new legacy importer
func NewImporter(cfg config.LegacyConfig, pool *pgxpool.Pool, agg Aggregator) *Importer {
	return &Importer{cfg: cfg, pool: pool, agg: agg}
}

// Start connects to the legacy database and begins polling.
func (i *Importer) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running {
		return fmt.Errorf("importer already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		i.cfg.Host, i.cfg.Port, i.cfg.Database, i.cfg.User, i.cfg.Password)

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open legacy database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping legacy database: %w", err)
	}

	i.db = db
	i.running = true

	pollCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel

	i.wg.Add(1)
	go i.pollLoop(pollCtx)

	return nil
}

// Stop stops polling and closes the legacy connection.
func (i *Importer) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running {
		return nil
	}

	i.cancel()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if i.db != nil {
		i.db.Close()
	}

	i.running = false
	return nil
}

// Health checks legacy database connectivity.
func (i *Importer) Health(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running {
		return fmt.Errorf("importer not running")
	}
	return i.db.PingContext(ctx)
}

func (i *Importer) pollLoop(ctx context.Context) {
	defer i.wg.Done()

	// First poll runs immediately: on a fresh deployment the initial
	// backfill is the whole point. The rebuild afterwards squares the
	// aggregate table with the freshly mirrored history in one pass.
	if err := i.importBatch(ctx); err != nil {
		log.Printf("legacy import: %v", err)
	} else if err := i.agg.RebuildAll(ctx); err != nil {
		log.Printf("legacy import: post-backfill rebuild failed: %v", err)
	}

	ticker := time.NewTicker(i.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := i.importBatch(ctx); err != nil {
				log.Printf("legacy import: %v", err)
			}
		}
	}
}

// importBatch copies legacy rows newer than the cursor and replays each new
// one through the aggregate hooks.
func (i *Importer) importBatch(ctx context.Context) error {
	query := fmt.Sprintf(`
		SELECT RecordID, PatientID, DiseaseName, BarangayID, Status, RecordedAt
		FROM %s
		WHERE RecordedAt > @cursor
		ORDER BY RecordedAt ASC`, i.cfg.DiagnosisTable)

	rows, err := i.db.QueryContext(ctx, query, sql.Named("cursor", i.cursor))
	if err != nil {
		return fmt.Errorf("failed to query legacy records: %w", err)
	}
	defer rows.Close()

	imported, skipped := 0, 0

	for rows.Next() {
		var recordID, patientID, disease, status string
		var barangayID sql.NullString
		var recordedAt time.Time

		if err := rows.Scan(&recordID, &patientID, &disease, &barangayID, &status, &recordedAt); err != nil {
			return fmt.Errorf("failed to scan legacy record: %w", err)
		}

		event, err := mapRecord(recordID, patientID, disease, barangayID, status, recordedAt)
		if err != nil {
			log.Printf("legacy import: skipping record %s: %v", recordID, err)
			continue
		}

		inserted, err := i.insertEvent(ctx, event)
		if err != nil {
			return err
		}
		if inserted {
			i.agg.OnEventInserted(ctx, event)
			imported++
		} else {
			skipped++
		}

		if recordedAt.After(i.cursor) {
			i.cursor = recordedAt
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed reading legacy records: %w", err)
	}

	if imported > 0 || skipped > 0 {
		log.Printf("legacy import: %d imported, %d already present", imported, skipped)
	}
	return nil
}

// insertEvent mirrors one legacy record into the local event table. Returns
// false when the event already exists.
func (i *Importer) insertEvent(ctx context.Context, e aggregate.DiagnosisEvent) (bool, error) {
	result, err := i.pool.Exec(ctx, `
		INSERT INTO diagnosis_events (id, patient_id, disease_name, area_id, status, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.PatientID, e.DiseaseName, e.AreaID, e.Status, e.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mirror legacy record: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// mapRecord converts a legacy row into a diagnosis event with deterministic
// identifiers.
func mapRecord(recordID, patientID, disease string, barangayID sql.NullString, status string, recordedAt time.Time) (aggregate.DiagnosisEvent, error) {
	mapped, err := mapStatus(status)
	if err != nil {
		return aggregate.DiagnosisEvent{}, err
	}
	if disease == "" {
		return aggregate.DiagnosisEvent{}, fmt.Errorf("empty disease name")
	}

	event := aggregate.DiagnosisEvent{
		ID:          types.ID(uuid.NewSHA1(legacyNamespace, []byte(recordID)).String()),
		PatientID:   types.ID(uuid.NewSHA1(legacyNamespace, []byte("patient:"+patientID)).String()),
		DiseaseName: disease,
		Status:      mapped,
		OccurredAt:  recordedAt.UTC(),
	}

	if barangayID.Valid && barangayID.String != "" {
		id, err := types.ParseID(barangayID.String)
		if err != nil {
			return aggregate.DiagnosisEvent{}, fmt.Errorf("invalid barangay id %q", barangayID.String)
		}
		event.AreaID = &id
	}

	return event, nil
}

// mapStatus translates legacy status codes to the engine's vocabulary.
func mapStatus(status string) (aggregate.DiagnosisStatus, error) {
	switch status {
	case "S", "suspected":
		return aggregate.StatusSuspected, nil
	case "C", "confirmed", "positive":
		return aggregate.StatusConfirmed, nil
	case "R", "recovered", "resolved":
		return aggregate.StatusRecovered, nil
	case "Q", "quarantined", "isolated":
		return aggregate.StatusQuarantined, nil
	default:
		return "", fmt.Errorf("unknown status %q", status)
	}
}
