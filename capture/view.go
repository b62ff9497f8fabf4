package capture

import (
	"image"

	"go.uber.org/atomic"

	"go.viam.com/rgbd/pointcloud"
	"go.viam.com/rgbd/rimage"
)

// A View is exclusive access to the published snapshot. While a View is held the capture
// goroutine cannot publish, so every buffer it returns belongs to the same frame. Buffers must
// not be retained past Unlock, and every accessor panics once the View has been unlocked.
type View struct {
	p        *Pipeline
	set      *bufferSet
	released atomic.Bool
}

// Lock blocks until the snapshot is free and returns a View of it. Call Unlock promptly:
// publication waits on it.
func (p *Pipeline) Lock() *View {
	p.snapshotMu.Lock()
	return &View{p: p, set: p.front}
}

// Unlock releases the snapshot. Unlocking twice panics.
func (v *View) Unlock() {
	if !v.released.CompareAndSwap(false, true) {
		panic("capture: View unlocked twice")
	}
	v.p.snapshotMu.Unlock()
}

func (v *View) snapshot() *bufferSet {
	if v.released.Load() {
		panic("capture: View used after Unlock")
	}
	return v.set
}

// Depth is the depth in millimeters. Zero means no reading.
func (v *View) Depth() *rimage.DepthMap {
	return v.snapshot().depth
}

// WorldPoints is the organized point cloud in world units. Points with no reading are (0, 0, 0).
func (v *View) WorldPoints() *pointcloud.Organized {
	return v.snapshot().world
}

// RegisteredColor is the color of each depth pixel, black where unknown. It is nil when the
// color stream is disabled.
func (v *View) RegisteredColor() *rimage.Image {
	return v.snapshot().registered
}

// RawColor is the last color frame as delivered by the sensor, or nil when color is disabled.
func (v *View) RawColor() *rimage.Image {
	return v.snapshot().color
}

// IR is the last infrared frame reduced to 8 bits, or nil when IR is disabled.
func (v *View) IR() *image.Gray {
	return v.snapshot().ir
}

// Labels has one byte per depth pixel for downstream labelers to write. It is zeroed for every
// new frame.
func (v *View) Labels() []uint8 {
	return v.snapshot().labels
}

// Metadata describes the frame in the snapshot.
func (v *View) Metadata() Metadata {
	return v.snapshot().meta
}
