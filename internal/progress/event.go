package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageEraStart     Stage = "ERA_START"
	StageListDone     Stage = "LIST_DONE"
	StageBillDone     Stage = "BILL_DONE"
	StageBillSoftMiss Stage = "BILL_SOFT_MISS"
	StageBillRetry    Stage = "BILL_RETRY"
	StageBillFailed   Stage = "BILL_FAILED"
	StageEraDone      Stage = "ERA_DONE"
	StageEraError     Stage = "ERA_ERROR"
)

// EraLevel reports whether the stage describes a whole era rather than a
// single bill. Era-level events are never dropped.
func (s Stage) EraLevel() bool {
	switch s {
	case StageEraStart, StageListDone, StageEraDone, StageEraError:
		return true
	}
	return false
}

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageEraDone || s == StageEraError
}

// Event captures one pipeline milestone.
type Event struct {
	// RunID identifies the run in the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Era is the "from-to" label of the era.
	Era string
	// Mode is the job kind: extract, load or run.
	Mode string
	// BillID scopes bill stages.
	BillID string
	// Attempt is the failed attempt number for BILL_RETRY.
	Attempt int
	// Count is the number of references for LIST_DONE and of bills for
	// ERA_DONE.
	Count int
	// Dur is the latency of a bill or the wall time of an era.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Era == "" {
		return errors.New("era is required")
	}
	switch e.Stage {
	case StageEraStart, StageListDone, StageEraDone, StageEraError:
	case StageBillDone, StageBillSoftMiss, StageBillFailed:
		if e.BillID == "" {
			return fmt.Errorf("%s requires bill id", e.Stage)
		}
	case StageBillRetry:
		if e.BillID == "" {
			return fmt.Errorf("%s requires bill id", e.Stage)
		}
		if e.Attempt <= 0 {
			return errors.New("bill retry requires attempt")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID decodes a textual run id into the Event form.
func ParseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}
