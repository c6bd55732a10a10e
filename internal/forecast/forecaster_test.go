package forecast

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			"valid output",
			`{"success": true, "forecast": [{"period": "2026-04", "cases": 12.5}], "summary": {"model": "arima(1,1,1)", "predicted_total": 12.5}}`,
			false,
		},
		{
			"reported failure",
			`{"success": false, "error": "series too short"}`,
			true,
		},
		{
			"failure without message",
			`{"success": false}`,
			true,
		},
		{
			"empty series",
			`{"success": true, "forecast": [], "summary": {"model": "ses"}}`,
			true,
		},
		{
			"python traceback",
			`Traceback (most recent call last):\n  File "arima_forecast.py", line 12`,
			true,
		},
		{
			"empty output",
			``,
			true,
		},
		{
			"partial json",
			`{"success": true, "forecast": [{"period":`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ParseOutput([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				if !errors.Is(err, errors.ErrForecastSubprocess) {
					t.Errorf("Expected ErrForecastSubprocess, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(out.Series) == 0 {
				t.Error("Expected a non-empty series")
			}
		})
	}
}

func TestParseOutputCarriesExcerpt(t *testing.T) {
	raw := strings.Repeat("x", 2000)
	_, err := ParseOutput([]byte(raw))
	if err == nil {
		t.Fatal("Expected error")
	}

	appErr, ok := err.(*errors.AppError)
	if !ok {
		t.Fatalf("Expected AppError, got %T", err)
	}

	excerpt := appErr.Details["output"]
	if excerpt == "" {
		t.Fatal("Expected raw output excerpt in details")
	}
	if !strings.HasSuffix(excerpt, "...(truncated)") {
		t.Error("Expected the excerpt to be marked truncated")
	}
	if len(excerpt) > 512+len("...(truncated)") {
		t.Errorf("Excerpt too long: %d bytes", len(excerpt))
	}
}

func TestTruncate(t *testing.T) {
	if got := errors.Truncate("short", 512); got != "short" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
	got := errors.Truncate(strings.Repeat("a", 600), 512)
	if len(got) != 512+len("...(truncated)") {
		t.Errorf("Expected bounded length, got %d", len(got))
	}
}

// writeScript drops an executable shell script for subprocess tests.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forecaster.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func TestProcessForecasterRun(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
echo '{"success": true, "forecast": [{"period": "2026-04", "cases": 9}], "summary": {"model": "ses", "predicted_total": 9}}'`)

	f := NewProcessForecaster(config.ForecasterConfig{
		Command:    "sh",
		ScriptPath: script,
		Timeout:    5 * time.Second,
	})

	out, err := f.Run(context.Background(), []SeriesPoint{{Disease: "Dengue", Period: "2026-03", Cases: 7}}, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Series) != 1 || out.Series[0].Cases != 9 {
		t.Errorf("Unexpected series: %+v", out.Series)
	}
	if out.Summary.Model != "ses" {
		t.Errorf("Expected model ses, got %s", out.Summary.Model)
	}
}

func TestProcessForecasterTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)

	f := NewProcessForecaster(config.ForecasterConfig{
		Command:    "sh",
		ScriptPath: script,
		Timeout:    100 * time.Millisecond,
	})

	start := time.Now()
	_, err := f.Run(context.Background(), nil, 1)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.Is(err, errors.ErrForecastSubprocess) {
		t.Errorf("Expected ErrForecastSubprocess, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Expected a timeout message, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Process outlived its deadline: %s", elapsed)
	}
}

func TestProcessForecasterCancellation(t *testing.T) {
	script := writeScript(t, `sleep 5`)

	f := NewProcessForecaster(config.ForecasterConfig{
		Command:    "sh",
		ScriptPath: script,
		Timeout:    time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := f.Run(ctx, nil, 1)
	if err == nil {
		t.Fatal("Expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Process outlived the cancelled context: %s", elapsed)
	}
}

func TestProcessForecasterExitFailure(t *testing.T) {
	script := writeScript(t, `echo "boom" >&2
exit 3`)

	f := NewProcessForecaster(config.ForecasterConfig{
		Command:    "sh",
		ScriptPath: script,
		Timeout:    5 * time.Second,
	})

	_, err := f.Run(context.Background(), nil, 1)
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if !errors.Is(err, errors.ErrForecastSubprocess) {
		t.Errorf("Expected ErrForecastSubprocess, got %v", err)
	}

	appErr, ok := err.(*errors.AppError)
	if !ok {
		t.Fatalf("Expected AppError, got %T", err)
	}
	if !strings.Contains(appErr.Details["output"], "boom") {
		t.Errorf("Expected stderr in excerpt, got %q", appErr.Details["output"])
	}
}
