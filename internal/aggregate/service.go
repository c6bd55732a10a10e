package aggregate

import (
	"context"
	"log"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/events"
	"github.com/yellyhaze23/prms-forecast/internal/shared/metrics"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// Store is the maintenance surface of the aggregate table. Satisfied by
// *Repository; tests use an in-memory implementation.
type Store interface {
	Increment(ctx context.Context, disease string, areaID *types.ID, year, month int) error
	Decrement(ctx context.Context, disease string, areaID *types.ID, year, month int) error
	Rebuild(ctx context.Context) error
}

// Service keeps the aggregate store consistent with the diagnosis event
// log. The hook methods run synchronously inside the CRUD write path that
// triggered them, so their failures are logged and absorbed: the event log
// is the source of truth and the table can always be rebuilt.
type Service struct {
	store Store
	bus   *events.Bus
}

// NewService creates a new aggregator service
func NewService(store Store, bus *events.Bus) *Service {
	return &Service{store: store, bus: bus}
}

// OnEventInserted maintains the aggregate rows for a newly recorded
// diagnosis event. Events without a disease name are ignored.
func (s *Service) OnEventInserted(ctx context.Context, e DiagnosisEvent) {
	if e.DiseaseName == "" {
		return
	}

	year, month := e.Bucket()

	// All-areas rollup row first, then the per-area row if the event
	// carries an area.
	err := s.store.Increment(ctx, e.DiseaseName, nil, year, month)
	if err == nil && e.AreaID != nil {
		err = s.store.Increment(ctx, e.DiseaseName, e.AreaID, year, month)
	}

	metrics.RecordAggregateOp("insert", err)
	if err != nil {
		log.Printf("aggregate: insert maintenance failed for %s %d-%02d: %v", e.DiseaseName, year, month, err)
		return
	}

	if s.bus != nil {
		event := events.NewEvent("diagnosis.recorded", "forecast-engine", map[string]any{
			"disease": e.DiseaseName,
			"year":    year,
			"month":   month,
		})
		if err := s.bus.Publish(ctx, event); err != nil {
			log.Printf("aggregate: failed to publish diagnosis event: %v", err)
		}
	}
}

// OnEventUpdated treats an edit as delete-of-old followed by insert-of-new.
// If the bucket and disease are unchanged it is a no-op.
func (s *Service) OnEventUpdated(ctx context.Context, old, updated DiagnosisEvent) {
	if sameBucket(old, updated) {
		return
	}

	s.OnEventDeleted(ctx, old)
	s.OnEventInserted(ctx, updated)
}

// OnEventDeleted decrements the matching rows; rows never go negative and
// are removed when they reach zero.
func (s *Service) OnEventDeleted(ctx context.Context, e DiagnosisEvent) {
	if e.DiseaseName == "" {
		return
	}

	year, month := e.Bucket()

	err := s.store.Decrement(ctx, e.DiseaseName, nil, year, month)
	if err == nil && e.AreaID != nil {
		err = s.store.Decrement(ctx, e.DiseaseName, e.AreaID, year, month)
	}

	metrics.RecordAggregateOp("delete", err)
	if err != nil {
		log.Printf("aggregate: delete maintenance failed for %s %d-%02d: %v", e.DiseaseName, year, month, err)
	}
}

// RebuildAll regenerates the whole aggregate table from the event log.
// Idempotent; used for backfill and repair. Readers may observe an empty
// table while the rebuild runs.
func (s *Service) RebuildAll(ctx context.Context) error {
	start := time.Now()
	err := s.store.Rebuild(ctx)
	metrics.RecordAggregateOp("rebuild", err)
	if err != nil {
		return err
	}
	metrics.RecordRebuildDuration(time.Since(start))

	if s.bus != nil {
		event := events.NewEvent("aggregate.rebuilt", "forecast-engine", map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if err := s.bus.Publish(ctx, event); err != nil {
			log.Printf("aggregate: failed to publish rebuild event: %v", err)
		}
	}

	return nil
}

// sameBucket reports whether two events land in the same aggregate rows.
func sameBucket(a, b DiagnosisEvent) bool {
	ay, am := a.Bucket()
	by, bm := b.Bucket()
	if a.DiseaseName != b.DiseaseName || ay != by || am != bm {
		return false
	}
	if (a.AreaID == nil) != (b.AreaID == nil) {
		return false
	}
	return a.AreaID == nil || *a.AreaID == *b.AreaID
}
