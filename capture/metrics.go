package capture

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	framesPublished = stats.Int64("rgbd/frames_published", "snapshots published", stats.UnitDimensionless)
	frameTimeouts   = stats.Int64("rgbd/frame_timeouts", "depth reads that timed out", stats.UnitDimensionless)
	degradedFrames  = stats.Int64("rgbd/degraded_frames", "snapshots published with failed conversion tasks",
		stats.UnitDimensionless)
	cycleLatency = stats.Float64("rgbd/cycle_latency_ms", "time from depth frame arrival to publication",
		stats.UnitMilliseconds)
)

// Views aggregates the pipeline measures.
var Views = []*view.View{
	{Name: framesPublished.Name(), Description: framesPublished.Description(), Measure: framesPublished, Aggregation: view.Count()},
	{Name: frameTimeouts.Name(), Description: frameTimeouts.Description(), Measure: frameTimeouts, Aggregation: view.Count()},
	{Name: degradedFrames.Name(), Description: degradedFrames.Description(), Measure: degradedFrames, Aggregation: view.Count()},
	{
		Name:        cycleLatency.Name(),
		Description: cycleLatency.Description(),
		Measure:     cycleLatency,
		Aggregation: view.Distribution(1, 2, 5, 10, 20, 33, 50, 100, 200, 500),
	},
}

// RegisterViews registers Views with opencensus so exporters can pick them up.
func RegisterViews() error {
	return view.Register(Views...)
}

// UnregisterViews undoes RegisterViews.
func UnregisterViews() {
	view.Unregister(Views...)
}

func recordPublished(ctx context.Context, latencyMS float64, degraded bool) {
	ms := []stats.Measurement{framesPublished.M(1), cycleLatency.M(latencyMS)}
	if degraded {
		ms = append(ms, degradedFrames.M(1))
	}
	stats.Record(ctx, ms...)
}

func recordTimeout(ctx context.Context) {
	stats.Record(ctx, frameTimeouts.M(1))
}
