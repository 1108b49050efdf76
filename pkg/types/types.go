package types

import (
	"fmt"
	"math"
	"path/filepath"
)

// MiB is the unit every size in a fill job is expressed in.
const MiB int64 = 1024 * 1024

// MaxChunkMiB is the largest chunk whose size in bytes fits an int64.
const MaxChunkMiB = math.MaxInt64 / MiB

// LowSpaceFloor is the free-space threshold that ends a run early.
const LowSpaceFloor = 10 * MiB

// DefaultDirName is the job directory created on the chosen volume.
const DefaultDirName = "filler"

// Job is the immutable configuration of one fill run.
type Job struct {
	Dir       string `validate:"required"`
	Volume    string `validate:"required"`
	TargetMiB int64  `validate:"gt=0"`
	ChunkMiB  int64  `validate:"gt=0"`
}

// NewJob places the job directory dirName at the root of volume.
func NewJob(volume, dirName string, targetMiB, chunkMiB int64) Job {
	if dirName == "" {
		dirName = DefaultDirName
	}
	return Job{
		Dir:       filepath.Join(volume, dirName),
		Volume:    volume,
		TargetMiB: targetMiB,
		ChunkMiB:  chunkMiB,
	}
}

// FileName returns the name of the filler file with sequence number seq.
func FileName(seq int) string {
	return fmt.Sprintf("filler_%d.txt", seq)
}

type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StatePaused
	StateStopping
	StateFinished
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseRunState is the inverse of RunState.String; unknown names map to
// StateIdle.
func ParseRunState(name string) RunState {
	for s := StateIdle; s <= StateFinished; s++ {
		if s.String() == name {
			return s
		}
	}
	return StateIdle
}

type EventKind int

const (
	EventProgress EventKind = iota
	EventLog
	EventCompleted
	EventStopped
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventLog:
		return "log"
	case EventCompleted:
		return "completed"
	case EventStopped:
		return "stopped"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Terminal reports whether the event ends a run.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventStopped || k == EventFailed
}

// Reason explains why a run ended in the completed state.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonTargetReached Reason = "target_reached"
	ReasonLowSpace      Reason = "low_space"
)

// Event is emitted by the worker in loop order.
type Event struct {
	Kind     EventKind
	Progress int64 // MiB written, capped at the target
	Message  string
	Reason   Reason
	Err      error
}

type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomeFailed    Outcome = "failed"
)

// Result summarizes a finished run. WrittenMiB is always
// FilesWritten * ChunkMiB of the job.
type Result struct {
	Outcome      Outcome
	Reason       Reason
	FilesWritten int
	WrittenMiB   int64
	Err          error
}
