package aggregate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// memStore is an in-memory Store used to verify the maintenance hooks.
type memStore struct {
	counts   map[string]int
	rebuilds int
}

func newMemStore() *memStore {
	return &memStore{counts: make(map[string]int)}
}

func (m *memStore) key(disease string, areaID *types.ID, year, month int) string {
	area := "<all>"
	if areaID != nil {
		area = areaID.String()
	}
	return fmt.Sprintf("%s|%s|%d|%d", disease, area, year, month)
}

func (m *memStore) Increment(ctx context.Context, disease string, areaID *types.ID, year, month int) error {
	m.counts[m.key(disease, areaID, year, month)]++
	return nil
}

func (m *memStore) Decrement(ctx context.Context, disease string, areaID *types.ID, year, month int) error {
	k := m.key(disease, areaID, year, month)
	if m.counts[k] <= 0 {
		return nil
	}
	m.counts[k]--
	if m.counts[k] == 0 {
		delete(m.counts, k)
	}
	return nil
}

func (m *memStore) Rebuild(ctx context.Context) error {
	m.rebuilds++
	return nil
}

func (m *memStore) total() int {
	sum := 0
	for _, v := range m.counts {
		sum += v
	}
	return sum
}

func makeEvent(disease string, areaID *types.ID, occurred time.Time) DiagnosisEvent {
	return DiagnosisEvent{
		ID:          types.NewID(),
		PatientID:   types.NewID(),
		DiseaseName: disease,
		AreaID:      areaID,
		Status:      StatusConfirmed,
		OccurredAt:  occurred,
	}
}

func TestOnEventInserted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	area := types.NewID()
	occurred := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	svc.OnEventInserted(ctx, makeEvent("Dengue", &area, occurred))

	if got := store.counts[store.key("Dengue", nil, 2026, 3)]; got != 1 {
		t.Errorf("Expected rollup count 1, got %d", got)
	}
	if got := store.counts[store.key("Dengue", &area, 2026, 3)]; got != 1 {
		t.Errorf("Expected area count 1, got %d", got)
	}
}

func TestOnEventInsertedWithoutArea(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	occurred := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	svc.OnEventInserted(ctx, makeEvent("Cholera", nil, occurred))

	if got := store.counts[store.key("Cholera", nil, 2026, 3)]; got != 1 {
		t.Errorf("Expected rollup count 1, got %d", got)
	}
	if len(store.counts) != 1 {
		t.Errorf("Expected only the rollup row, got %d rows", len(store.counts))
	}
}

func TestOnEventInsertedEmptyDisease(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	svc.OnEventInserted(ctx, makeEvent("", nil, time.Now()))

	if len(store.counts) != 0 {
		t.Errorf("Expected no rows for empty disease, got %d", len(store.counts))
	}
}

func TestOnEventDeleted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	area := types.NewID()
	occurred := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	e := makeEvent("Dengue", &area, occurred)

	svc.OnEventInserted(ctx, e)
	svc.OnEventDeleted(ctx, e)

	if store.total() != 0 {
		t.Errorf("Expected all rows removed, got total %d", store.total())
	}
}

func TestOnEventDeletedNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	e := makeEvent("Dengue", nil, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	// Deleting an event that was never aggregated must leave zero, not -1.
	svc.OnEventDeleted(ctx, e)

	for k, v := range store.counts {
		if v < 0 {
			t.Errorf("Row %s went negative: %d", k, v)
		}
	}
	if store.total() != 0 {
		t.Errorf("Expected total 0, got %d", store.total())
	}
}

func TestOnEventUpdatedSameBucket(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	area := types.NewID()
	occurred := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	old := makeEvent("Dengue", &area, occurred)

	svc.OnEventInserted(ctx, old)
	before := len(store.counts)

	// Same disease, area and month: status edits must not touch counts.
	updated := old
	updated.Status = StatusRecovered
	updated.OccurredAt = occurred.Add(3 * time.Hour)
	svc.OnEventUpdated(ctx, old, updated)

	if len(store.counts) != before {
		t.Errorf("Expected row set unchanged, got %d rows (was %d)", len(store.counts), before)
	}
	if got := store.counts[store.key("Dengue", &area, 2026, 3)]; got != 1 {
		t.Errorf("Expected area count 1 after same-bucket update, got %d", got)
	}
}

func TestOnEventUpdatedMovesBucket(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	area := types.NewID()
	old := makeEvent("Dengue", &area, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))

	svc.OnEventInserted(ctx, old)

	updated := old
	updated.OccurredAt = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	svc.OnEventUpdated(ctx, old, updated)

	if got := store.counts[store.key("Dengue", &area, 2026, 3)]; got != 0 {
		t.Errorf("Expected March row gone, got %d", got)
	}
	if got := store.counts[store.key("Dengue", &area, 2026, 4)]; got != 1 {
		t.Errorf("Expected April count 1, got %d", got)
	}
	if got := store.counts[store.key("Dengue", nil, 2026, 4)]; got != 1 {
		t.Errorf("Expected April rollup 1, got %d", got)
	}
}

func TestOnEventUpdatedChangesDisease(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	occurred := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	old := makeEvent("Influenza", nil, occurred)

	svc.OnEventInserted(ctx, old)

	updated := old
	updated.DiseaseName = "COVID-19"
	svc.OnEventUpdated(ctx, old, updated)

	if got := store.counts[store.key("Influenza", nil, 2026, 5)]; got != 0 {
		t.Errorf("Expected Influenza row gone, got %d", got)
	}
	if got := store.counts[store.key("COVID-19", nil, 2026, 5)]; got != 1 {
		t.Errorf("Expected COVID-19 count 1, got %d", got)
	}
}

func TestAggregateInvariantOverSequence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	area1 := types.NewID()
	area2 := types.NewID()
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := []DiagnosisEvent{
		makeEvent("Dengue", &area1, march),
		makeEvent("Dengue", &area1, march.AddDate(0, 0, 5)),
		makeEvent("Dengue", &area2, march.AddDate(0, 0, 10)),
		makeEvent("Dengue", nil, march.AddDate(0, 0, 12)),
	}
	for _, e := range events {
		svc.OnEventInserted(ctx, e)
	}

	// Rollup carries every event; per-area rows only the located ones.
	if got := store.counts[store.key("Dengue", nil, 2026, 3)]; got != 4 {
		t.Errorf("Expected rollup 4, got %d", got)
	}
	if got := store.counts[store.key("Dengue", &area1, 2026, 3)]; got != 2 {
		t.Errorf("Expected area1 count 2, got %d", got)
	}

	svc.OnEventDeleted(ctx, events[1])

	if got := store.counts[store.key("Dengue", nil, 2026, 3)]; got != 3 {
		t.Errorf("Expected rollup 3 after delete, got %d", got)
	}
	if got := store.counts[store.key("Dengue", &area1, 2026, 3)]; got != 1 {
		t.Errorf("Expected area1 count 1 after delete, got %d", got)
	}
}

func TestRebuildAll(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, nil)

	if err := svc.RebuildAll(ctx); err != nil {
		t.Fatalf("RebuildAll failed: %v", err)
	}
	if err := svc.RebuildAll(ctx); err != nil {
		t.Fatalf("Second RebuildAll failed: %v", err)
	}

	if store.rebuilds != 2 {
		t.Errorf("Expected 2 rebuilds, got %d", store.rebuilds)
	}
}

func TestEventBucket(t *testing.T) {
	e := makeEvent("Dengue", nil, time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC))
	year, month := e.Bucket()
	if year != 2025 || month != 12 {
		t.Errorf("Expected 2025-12, got %d-%d", year, month)
	}
}

func TestMonthlyCountPeriod(t *testing.T) {
	tests := []struct {
		year, month int
		expected    string
	}{
		{2026, 1, "2026-01"},
		{2026, 12, "2026-12"},
		{999, 7, "0999-07"},
	}

	for _, tt := range tests {
		m := MonthlyCount{Year: tt.year, Month: tt.month}
		if got := m.Period(); got != tt.expected {
			t.Errorf("Period(%d, %d): expected %s, got %s", tt.year, tt.month, tt.expected, got)
		}
	}
}
