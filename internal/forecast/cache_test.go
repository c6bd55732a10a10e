package forecast

import (
	"testing"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

func TestCacheKeyStableWithinHour(t *testing.T) {
	req := Request{Disease: "Dengue", Horizon: 6, Type: TypeOverall}

	early := time.Date(2026, 8, 31, 14, 0, 5, 0, time.UTC)
	late := time.Date(2026, 8, 31, 14, 59, 59, 0, time.UTC)

	if CacheKey(req, early) != CacheKey(req, late) {
		t.Error("Expected identical keys within the same hour")
	}
}

func TestCacheKeyRotatesHourly(t *testing.T) {
	req := Request{Disease: "Dengue", Horizon: 6, Type: TypeOverall}

	at := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	next := at.Add(time.Hour)

	if CacheKey(req, at) == CacheKey(req, next) {
		t.Error("Expected a different key in the next hour")
	}
}

func TestCacheKeyDistinguishesRequests(t *testing.T) {
	at := time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	area := types.NewID()

	base := Request{Disease: "Dengue", Horizon: 6, Type: TypeOverall}
	variants := []Request{
		{Disease: "Cholera", Horizon: 6, Type: TypeOverall},
		{Disease: "Dengue", Horizon: 12, Type: TypeOverall},
		{Disease: "Dengue", Horizon: 6, Type: TypeBarangay},
		{Disease: "Dengue", Horizon: 6, Type: TypeOverall, AreaID: &area},
	}

	baseKey := CacheKey(base, at)
	for i, v := range variants {
		if CacheKey(v, at) == baseKey {
			t.Errorf("Variant %d produced the same key as the base request", i)
		}
	}
}

func TestCacheKeyNormalizesTimezone(t *testing.T) {
	req := Request{Disease: "Dengue", Horizon: 6, Type: TypeOverall}

	utc := time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC)
	manila := utc.In(time.FixedZone("PHT", 8*3600))

	if CacheKey(req, utc) != CacheKey(req, manila) {
		t.Error("Expected the key to be independent of the wall-clock timezone")
	}
}
