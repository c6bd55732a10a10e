package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/metrics"
)

// Output is the structured result of one external forecaster run.
type Output struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Series  []ForecastPoint   `json:"forecast"`
	Summary SummaryIndicators `json:"summary"`
	// Areas maps area_id to its projected series on the barangay path.
	Areas map[string][]ForecastPoint `json:"areas,omitempty"`
}

// StatisticalForecaster is the boundary to the external ARIMA-family
// forecaster. Implementations may shell out, call a library, or be a test
// double.
type StatisticalForecaster interface {
	Run(ctx context.Context, series []SeriesPoint, horizon int) (*Output, error)
}

// ProcessForecaster runs the forecaster as an isolated subprocess. The
// historical series goes to stdin as JSON, the horizon as an argument, and
// combined stdout/stderr is parsed as JSON. The process is untrusted:
// arbitrary delay, garbage output and partial output are all handled.
type ProcessForecaster struct {
	command string
	script  string
	timeout time.Duration
}

// NewProcessForecaster creates a forecaster from config
func NewProcessForecaster(cfg config.ForecasterConfig) *ProcessForecaster {
	return &ProcessForecaster{
		command: cfg.Command,
		script:  cfg.ScriptPath,
		timeout: cfg.Timeout,
	}
}

// forecasterInput is the stdin payload handed to the subprocess.
type forecasterInput struct {
	Series  []SeriesPoint `json:"series"`
	Horizon int           `json:"horizon"`
}

// Run invokes the subprocess under the configured timeout. Caller
// cancellation propagates and terminates the process.
func (f *ProcessForecaster) Run(ctx context.Context, series []SeriesPoint, horizon int) (*Output, error) {
	input, err := json.Marshal(forecasterInput{Series: series, Horizon: horizon})
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize forecaster input")
	}

	runCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.command, f.script, "--horizon", strconv.Itoa(horizon))
	cmd.Stdin = bytes.NewReader(input)

	start := time.Now()
	raw, err := cmd.CombinedOutput()
	metrics.RecordSubprocessDuration(time.Since(start))

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errors.ForecastSubprocess(
			fmt.Sprintf("forecaster timed out after %s", f.timeout), raw)
	}
	if err != nil {
		return nil, errors.ForecastSubprocess(
			fmt.Sprintf("forecaster exited abnormally: %v", err), raw)
	}

	return ParseOutput(raw)
}

// ParseOutput deserializes and validates raw forecaster output. Anything
// that fails to parse, lacks the success flag, or reports failure becomes
// a subprocess error carrying a bounded excerpt of the raw output.
func ParseOutput(raw []byte) (*Output, error) {
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.ForecastSubprocess("forecaster produced unparseable output", raw)
	}

	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "forecaster reported failure without a message"
		}
		return nil, errors.ForecastSubprocess(msg, raw)
	}

	if len(out.Series) == 0 {
		return nil, errors.ForecastSubprocess("forecaster returned an empty forecast series", raw)
	}

	return &out, nil
}
