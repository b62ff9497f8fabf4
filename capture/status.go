package capture

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/rgbd/workers"
)

var (
	// ErrRepeatedFrameFailure is the fatal error recorded when depth reads keep failing.
	ErrRepeatedFrameFailure = errors.New("repeated frame failure")
	// ErrWorkerTaskFailure marks a frame whose conversion tasks did not all succeed.
	ErrWorkerTaskFailure = workers.ErrWorkerTaskFailure
)

// State is the lifecycle state of a Pipeline.
type State int

// The pipeline states, in the only order they occur.
const (
	StateInitializing State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StopReason says why a pipeline left the running state.
type StopReason int

// The reasons a pipeline stops.
const (
	StopReasonNone StopReason = iota
	StopReasonShutdown
	StopReasonRepeatedFrameFailure
	StopReasonContextCanceled
)

func (r StopReason) String() string {
	switch r {
	case StopReasonNone:
		return "none"
	case StopReasonShutdown:
		return "shutdown"
	case StopReasonRepeatedFrameFailure:
		return "repeated_frame_failure"
	case StopReasonContextCanceled:
		return "context_canceled"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Status is a point in time view of a pipeline's health.
type Status struct {
	SessionID  string
	State      State
	StopReason StopReason
	// Err is the fatal error that stopped the pipeline, if any.
	Err error

	ConsecutiveFailures int
	FramesPublished     uint64
	DegradedFrames      uint64
	DepthTimeouts       uint64
	// LastTaskError is the most recent conversion failure. It is not cleared by later good frames.
	LastTaskError error
	LastPublished time.Time
}

// Metadata describes the published snapshot.
type Metadata struct {
	// DepthFrameNumber counts published snapshots, starting at 1. Zero means nothing has been
	// published yet.
	DepthFrameNumber uint64
	// ColorFrameNumber and IRFrameNumber count distinct color and IR frames used so far. They
	// stay put when a cycle reused the previous frame.
	ColorFrameNumber uint64
	IRFrameNumber    uint64

	// Device timestamps of the frames in the snapshot.
	DepthTimestamp time.Duration
	ColorTimestamp time.Duration
	IRTimestamp    time.Duration

	// PublishedAt is the pipeline clock at publication.
	PublishedAt time.Time
	// Degraded marks a snapshot whose conversion partly failed.
	Degraded bool
}
