package legacy

import (
	"database/sql"
	"testing"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/aggregate"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		legacy   string
		expected aggregate.DiagnosisStatus
		wantErr  bool
	}{
		{"S", aggregate.StatusSuspected, false},
		{"suspected", aggregate.StatusSuspected, false},
		{"C", aggregate.StatusConfirmed, false},
		{"positive", aggregate.StatusConfirmed, false},
		{"R", aggregate.StatusRecovered, false},
		{"resolved", aggregate.StatusRecovered, false},
		{"Q", aggregate.StatusQuarantined, false},
		{"isolated", aggregate.StatusQuarantined, false},
		{"X", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := mapStatus(tt.legacy)
		if tt.wantErr {
			if err == nil {
				t.Errorf("mapStatus(%q): expected error", tt.legacy)
			}
			continue
		}
		if err != nil {
			t.Errorf("mapStatus(%q) failed: %v", tt.legacy, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("mapStatus(%q): expected %s, got %s", tt.legacy, tt.expected, got)
		}
	}
}

func TestMapRecordDeterministicIDs(t *testing.T) {
	recorded := time.Date(2024, 6, 10, 8, 30, 0, 0, time.UTC)

	first, err := mapRecord("REC-1001", "PAT-42", "Dengue", sql.NullString{}, "C", recorded)
	if err != nil {
		t.Fatalf("mapRecord failed: %v", err)
	}
	second, err := mapRecord("REC-1001", "PAT-42", "Dengue", sql.NullString{}, "C", recorded)
	if err != nil {
		t.Fatalf("mapRecord failed: %v", err)
	}

	// Re-importing the same legacy row must never mint a new event.
	if first.ID != second.ID {
		t.Errorf("Expected stable event ID, got %s and %s", first.ID, second.ID)
	}
	if first.PatientID != second.PatientID {
		t.Errorf("Expected stable patient ID, got %s and %s", first.PatientID, second.PatientID)
	}

	other, err := mapRecord("REC-1002", "PAT-42", "Dengue", sql.NullString{}, "C", recorded)
	if err != nil {
		t.Fatalf("mapRecord failed: %v", err)
	}
	if other.ID == first.ID {
		t.Error("Expected distinct records to map to distinct event IDs")
	}
	if other.PatientID != first.PatientID {
		t.Error("Expected the same patient to keep one ID across records")
	}
}

func TestMapRecordValidation(t *testing.T) {
	recorded := time.Now()

	if _, err := mapRecord("REC-1", "PAT-1", "", sql.NullString{}, "C", recorded); err == nil {
		t.Error("Expected error for empty disease")
	}

	if _, err := mapRecord("REC-1", "PAT-1", "Dengue", sql.NullString{String: "not-a-uuid", Valid: true}, "C", recorded); err == nil {
		t.Error("Expected error for malformed barangay id")
	}

	event, err := mapRecord("REC-1", "PAT-1", "Dengue", sql.NullString{String: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Valid: true}, "C", recorded)
	if err != nil {
		t.Fatalf("mapRecord failed: %v", err)
	}
	if event.AreaID == nil {
		t.Fatal("Expected the barangay id to be mapped")
	}
	if event.AreaID.String() != "7c9e6679-7425-40de-944b-e07fc1f90ae7" {
		t.Errorf("Unexpected area id %s", event.AreaID.String())
	}
}
