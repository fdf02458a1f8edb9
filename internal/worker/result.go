package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/openpolitica/proyectos-ley/internal/era"
)

// Mode names the job an era went through.
type Mode string

// Job modes, matching the CLI subcommands.
const (
	ModeExtract Mode = "extract"
	ModeLoad    Mode = "load"
	ModeRun     Mode = "run"
)

// Aggregation decides what happens to an era when some bills exhaust their
// retries.
type Aggregation string

// Aggregation policies.
const (
	// AggregateAbort fails the era and hands nothing to the sinks.
	AggregateAbort Aggregation = "abort"
	// AggregatePartial records the failed bills and persists the rest.
	AggregatePartial Aggregation = "partial"
)

// ParseAggregation validates a policy name. The empty string selects abort.
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AggregateAbort, nil
	case AggregateAbort, AggregatePartial:
		return a, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", s)
	}
}

// FailedBill is a bill whose detail could not be extracted.
type FailedBill struct {
	Number int    `json:"number"`
	BillID string `json:"bill_id"`
	Error  string `json:"error"`
}

// EraResult is the outcome of one era job.
type EraResult struct {
	RunID      string       `json:"run_id"`
	Era        era.Period   `json:"era"`
	Mode       Mode         `json:"mode"`
	References int          `json:"references"`
	Bills      int          `json:"bills"`
	SoftMisses int          `json:"soft_misses"`
	Failed     []FailedBill `json:"failed,omitempty"`
	// Output is the database path, or the cache URI for extract jobs.
	Output string `json:"output,omitempty"`
	// CacheURI is set whenever a cache snapshot was written.
	CacheURI string `json:"cache_uri,omitempty"`
	// Digest is the SHA-256 of the cache payload.
	Digest   string    `json:"digest,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Err      error     `json:"-"`
	// Error mirrors Err for serialized results.
	Error string `json:"error,omitempty"`
}

// OK reports whether the era completed.
func (r EraResult) OK() bool {
	return r.Err == nil
}

// Duration is the wall time of the job.
func (r EraResult) Duration() time.Duration {
	if r.Finished.Before(r.Started) {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Attributes are attached to published messages so subscribers can filter by
// era and outcome.
func (r EraResult) Attributes() map[string]string {
	result := "success"
	if !r.OK() {
		result = "failure"
	}
	return map[string]string{
		"era":    r.Era.String(),
		"mode":   string(r.Mode),
		"result": result,
	}
}

func (r *EraResult) fail(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}
