package fake

import (
	"context"
	"sync"
	"time"

	"go.viam.com/rgbd/sensor"
)

// Stream delivers synthetic frames paced by the device clock at the mode's frame rate.
type Stream struct {
	dev    *Device
	kind   sensor.StreamKind
	mode   sensor.VideoMode
	period time.Duration

	closeOnce sync.Once
	closed    chan struct{}

	mu    sync.Mutex
	index uint64
	start time.Time
	next  time.Time
}

func newStream(dev *Device, kind sensor.StreamKind, mode sensor.VideoMode) *Stream {
	now := dev.clock.Now()
	s := &Stream{
		dev:    dev,
		kind:   kind,
		mode:   mode,
		closed: make(chan struct{}),
		start:  now,
		next:   now,
	}
	if mode.FPS > 0 {
		s.period = time.Second / time.Duration(mode.FPS)
	}
	return s
}

// Kind implements sensor.Stream.
func (s *Stream) Kind() sensor.StreamKind {
	return s.kind
}

// Mode implements sensor.Stream.
func (s *Stream) Mode() sensor.VideoMode {
	return s.mode
}

// FramesDelivered returns the number of frames read so far.
func (s *Stream) FramesDelivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Stream) sleep(ctx context.Context, d time.Duration) error {
	timer := s.dev.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return sensor.ErrStreamClosed
	case <-timer.C:
		return nil
	}
}

// ReadFrame implements sensor.Stream. Injected faults are returned first without waiting. A
// non-positive timeout waits for the next frame indefinitely.
func (s *Stream) ReadFrame(ctx context.Context, timeout time.Duration) (*sensor.RawFrame, error) {
	select {
	case <-s.closed:
		return nil, sensor.ErrStreamClosed
	default:
	}
	if err := s.dev.nextFault(s.kind); err != nil {
		return nil, err
	}

	s.mu.Lock()
	due := s.next
	s.mu.Unlock()
	if wait := due.Sub(s.dev.clock.Now()); wait > 0 {
		if timeout > 0 && wait > timeout {
			if err := s.sleep(ctx, timeout); err != nil {
				return nil, err
			}
			return nil, sensor.ErrFrameTimeout
		}
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	now := s.dev.clock.Now()
	index := s.index
	s.index++
	s.next = due.Add(s.period)
	if s.next.Before(now) {
		s.next = now
	}
	timestamp := now.Sub(s.start)
	s.mu.Unlock()

	return &sensor.RawFrame{
		Kind:      s.kind,
		Width:     s.mode.Width,
		Height:    s.mode.Height,
		Format:    s.mode.Format,
		Data:      render(s.kind, s.mode, index),
		Timestamp: timestamp,
		Index:     index,
	}, nil
}

// Close implements sensor.Stream.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.dev.closeStream(s.kind)
	})
	return nil
}
