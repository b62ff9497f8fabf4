// Package capture runs an RGB-D capture pipeline. A single capture goroutine pulls frames from a
// sensor device, converts them in parallel on a worker pool and publishes the results into a
// double buffered snapshot that consumers read while holding a View.
package capture

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/rgbd/config"
	"go.viam.com/rgbd/logging"
	"go.viam.com/rgbd/pointcloud"
	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/rimage/transform"
	"go.viam.com/rgbd/sensor"
	"go.viam.com/rgbd/utils"
	"go.viam.com/rgbd/workers"
)

// bufferSet is one complete snapshot. The pipeline owns two: consumers see the front set while
// the capture goroutine fills the back set.
type bufferSet struct {
	depth      *rimage.DepthMap
	world      *pointcloud.Organized
	labels     []uint8
	registered *rimage.Image
	color      *rimage.Image
	ir         *image.Gray
	meta       Metadata
}

func (b *bufferSet) outputs() *transform.Outputs {
	return &transform.Outputs{
		Depth:           b.depth,
		World:           b.world,
		Labels:          b.labels,
		RegisteredColor: b.registered,
		Color:           b.color,
		IR:              b.ir,
	}
}

// A Pipeline owns an open sensor device, its streams, a worker pool and the capture goroutine.
type Pipeline struct {
	cfg       config.Pipeline
	logger    logging.Logger
	opts      options
	sessionID string

	device    sensor.Device
	depth     sensor.Stream
	color     sensor.Stream
	ir        sensor.Stream
	depthMode sensor.VideoMode
	colorMode sensor.VideoMode
	irMode    sensor.VideoMode

	conv          *transform.Converter
	pool          *workers.Pool
	barrier       *workers.Barrier
	worldParts    []transform.Partition
	colorParts    []transform.Partition
	irParts       []transform.Partition
	registerParts []transform.Partition

	// only touched by the capture goroutine
	back       *bufferSet
	lastColor  *sensor.RawFrame
	colorImage *rimage.Image
	lastIR     *sensor.RawFrame

	snapshotMu sync.Mutex
	front      *bufferSet

	statusMu    sync.Mutex
	status      Status
	teardownErr error

	shutdownRequested atomic.Bool
	shutdownOnce      sync.Once
	workers           utils.StoppableWorkers
}

// Start opens the device named by cfg, configures its streams and starts capturing. Errors are
// returned before any frame is captured and leave nothing open. The capture goroutine stops on
// Shutdown, on ctx cancellation or after too many failed depth reads.
func Start(
	ctx context.Context,
	registry *sensor.Registry,
	cfg *config.Pipeline,
	logger logging.Logger,
	opts ...Option,
) (*Pipeline, error) {
	conf := *cfg
	if err := conf.Validate(conf.ConfigFilePath); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       conf,
		logger:    logger,
		opts:      newOptions(opts),
		sessionID: uuid.NewString(),
	}
	p.status = Status{SessionID: p.sessionID, State: StateInitializing}

	dev, err := registry.Open(ctx, conf.DeviceURI)
	if err != nil {
		return nil, err
	}
	p.device = dev
	guard := utils.NewGuard(func() {
		goutils.UncheckedErrorFunc(func() error { return dev.Close(context.Background()) })
	})
	defer guard.OnFail()

	if err := p.configureStreams(ctx, guard); err != nil {
		return nil, err
	}

	calib, err := p.resolveCalibration()
	if err != nil {
		return nil, err
	}
	p.conv, err = transform.NewConverter(calib, transform.ConverterOptions{
		Mirror:     conf.Mirror,
		MaxDepthMM: rimage.Depth(conf.MaxDepthMM),
		WorldScale: conf.WorldScale,
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid calibration")
	}

	p.pool, err = workers.NewPool(conf.Workers, logger.Sublogger("workers"))
	if err != nil {
		return nil, err
	}
	guard.Add(p.pool.Stop)
	p.barrier = workers.NewBarrier(p.pool)

	p.worldParts = transform.PartitionRows(p.depthMode.Height, conf.Workers, transform.BufferWorld)
	if p.color != nil {
		p.colorParts = transform.PartitionRows(p.colorMode.Height, conf.Workers, transform.BufferColor)
		p.registerParts = transform.PartitionRows(p.depthMode.Height, conf.Workers, transform.BufferRegisteredColor)
	}
	if p.ir != nil {
		p.irParts = transform.PartitionRows(p.irMode.Height, conf.Workers, transform.BufferIR)
	}

	p.front = p.newBufferSet()
	p.back = p.newBufferSet()

	logger.Infow("capture pipeline starting",
		"session", p.sessionID,
		"device", dev.Descriptor().URI,
		"depth_mode", p.depthMode.String(),
		"color_mode", modeString(p.color, p.colorMode),
		"ir_mode", modeString(p.ir, p.irMode),
		"workers", conf.Workers,
		"mirror", conf.Mirror,
	)
	p.setState(StateRunning)
	p.workers = utils.NewStoppableWorkers(ctx, p.run)
	guard.Success()
	return p, nil
}

func modeString(s sensor.Stream, mode sensor.VideoMode) string {
	if s == nil {
		return "disabled"
	}
	return mode.String()
}

func (p *Pipeline) configureStreams(ctx context.Context, guard *utils.Guard) error {
	modes, err := p.device.SupportedModes(sensor.DepthStream)
	if err != nil {
		return errors.Wrap(err, "cannot list depth modes")
	}
	var pinned *sensor.VideoMode
	if m := p.cfg.DepthMode; m != nil {
		pinned = &sensor.VideoMode{Width: m.Width, Height: m.Height, FPS: m.FPS}
	}
	if p.depthMode, err = sensor.SelectDepthMode(modes, pinned); err != nil {
		return err
	}

	if p.cfg.Streams.ColorEnabled() {
		modes, err := p.device.SupportedModes(sensor.ColorStream)
		if err != nil {
			return errors.Wrap(err, "cannot configure color stream")
		}
		if p.colorMode, err = sensor.SelectMatchingMode(modes, p.depthMode, rimage.RGB888); err != nil {
			return errors.Wrap(err, "cannot configure color stream")
		}
	}
	if p.cfg.Streams.IR {
		modes, err := p.device.SupportedModes(sensor.IRStream)
		if err != nil {
			return errors.Wrap(err, "cannot configure ir stream")
		}
		if p.irMode, err = sensor.SelectMatchingMode(modes, p.depthMode, sensor.IRFormats...); err != nil {
			return errors.Wrap(err, "cannot configure ir stream")
		}
	}

	open := func(kind sensor.StreamKind, mode sensor.VideoMode) (sensor.Stream, error) {
		s, err := p.device.OpenStream(ctx, kind, mode)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open %v stream", kind)
		}
		guard.Add(func() { goutils.UncheckedError(s.Close()) })
		return s, nil
	}
	if p.depth, err = open(sensor.DepthStream, p.depthMode); err != nil {
		return err
	}
	if p.cfg.Streams.ColorEnabled() {
		if p.color, err = open(sensor.ColorStream, p.colorMode); err != nil {
			return err
		}
	}
	if p.cfg.Streams.IR {
		if p.ir, err = open(sensor.IRStream, p.irMode); err != nil {
			return err
		}
	}
	return nil
}

// resolveCalibration prefers the configured calibration over the device's and checks that it
// describes the negotiated resolutions.
func (p *Pipeline) resolveCalibration() (*transform.DepthColorIntrinsicsExtrinsics, error) {
	calib, err := p.cfg.Calibration()
	if err != nil {
		return nil, err
	}
	if calib == nil {
		if calib, err = p.device.Calibration(); err != nil {
			return nil, errors.Wrap(err, "cannot read device calibration")
		}
	}
	depth := calib.DepthCamera
	if depth.Width != p.depthMode.Width || depth.Height != p.depthMode.Height {
		return nil, errors.Wrap(sensor.ErrStreamConfigurationUnsupported, utils.NewDimensionMismatchError(
			"depth intrinsics", p.depthMode.Width, p.depthMode.Height, depth.Width, depth.Height).Error())
	}
	if p.color != nil {
		color := calib.ColorCamera
		if color.Width != p.colorMode.Width || color.Height != p.colorMode.Height {
			return nil, errors.Wrap(sensor.ErrStreamConfigurationUnsupported, utils.NewDimensionMismatchError(
				"color intrinsics", p.colorMode.Width, p.colorMode.Height, color.Width, color.Height).Error())
		}
	}
	return calib, nil
}

func (p *Pipeline) newBufferSet() *bufferSet {
	w, h := p.depthMode.Width, p.depthMode.Height
	b := &bufferSet{
		depth:  rimage.NewEmptyDepthMap(w, h),
		world:  pointcloud.NewOrganized(w, h),
		labels: make([]uint8, w*h),
	}
	if p.color != nil {
		b.registered = rimage.NewImage(w, h)
		b.color = rimage.NewImage(p.colorMode.Width, p.colorMode.Height)
	}
	if p.ir != nil {
		b.ir = image.NewGray(image.Rect(0, 0, p.irMode.Width, p.irMode.Height))
	}
	return b
}

func (p *Pipeline) setState(state State) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.State = state
}

func (p *Pipeline) stopReason(ctx context.Context) (StopReason, bool) {
	if p.shutdownRequested.Load() {
		return StopReasonShutdown, true
	}
	if ctx.Err() != nil {
		return StopReasonContextCanceled, true
	}
	return StopReasonNone, false
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.teardown()
	for {
		if reason, stop := p.stopReason(ctx); stop {
			p.markStopping(reason, nil)
			return
		}
		if err := p.cycle(ctx); err != nil {
			if errors.Is(err, ErrRepeatedFrameFailure) {
				p.markStopping(StopReasonRepeatedFrameFailure, err)
				return
			}
			reason, _ := p.stopReason(ctx)
			p.markStopping(reason, nil)
			return
		}
	}
}

// cycle captures, converts and publishes one frame. It returns an error only when the pipeline
// must stop.
func (p *Pipeline) cycle(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "capture::cycle")
	defer span.End()

	depth, err := p.depth.ReadFrame(ctx, p.cfg.ReadTimeout)
	if err == nil {
		err = depth.Validate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.recordReadFailure(ctx, err)
	}
	arrived := p.opts.clock.Now()
	p.statusMu.Lock()
	p.status.ConsecutiveFailures = 0
	p.statusMu.Unlock()

	newColor := p.readColor(ctx)
	newIR := p.readIR(ctx)

	in := &transform.Inputs{
		Depth:       depth.Data,
		DepthFormat: depth.Format,
		Color:       p.colorImage,
	}
	if p.lastIR != nil {
		in.IR = p.lastIR.Data
		in.IRFormat = p.lastIR.Format
	}
	out := p.back.outputs()
	task := func(part transform.Partition) error {
		return p.opts.convert(p.conv, part, in, out)
	}

	stage1 := make([]transform.Partition, 0, len(p.worldParts)+len(p.colorParts)+len(p.irParts))
	stage1 = append(stage1, p.worldParts...)
	if in.Color != nil {
		stage1 = append(stage1, p.colorParts...)
	}
	if in.IR != nil {
		stage1 = append(stage1, p.irParts...)
	}
	taskErr := p.barrier.DispatchAndWait(stage1, task)
	if len(p.registerParts) > 0 {
		taskErr = multierr.Combine(taskErr, p.barrier.DispatchAndWait(p.registerParts, task))
	}
	if taskErr != nil {
		p.logger.Warnw("frame conversion failed, publishing degraded frame", "frame_index", depth.Index, "error", taskErr)
	}

	meta := p.publish(depth, newColor, newIR, taskErr != nil)

	latency := p.opts.clock.Now().Sub(arrived)
	p.statusMu.Lock()
	p.status.FramesPublished = meta.DepthFrameNumber
	p.status.LastPublished = meta.PublishedAt
	if taskErr != nil {
		p.status.DegradedFrames++
		p.status.LastTaskError = taskErr
	}
	p.statusMu.Unlock()

	recordPublished(ctx, float64(latency.Microseconds())/1000, meta.Degraded)
	span.AddAttributes(
		trace.Int64Attribute("frame", int64(meta.DepthFrameNumber)),
		trace.BoolAttribute("degraded", meta.Degraded),
	)
	return nil
}

// readColor refreshes the color frame used for registration. On failure the previous frame is
// kept.
func (p *Pipeline) readColor(ctx context.Context) bool {
	if p.color == nil {
		return false
	}
	frame, ok := p.readOptional(ctx, p.color)
	if !ok {
		return false
	}
	img, err := frame.RGB()
	if err != nil {
		p.logger.Warnw("dropping malformed color frame", "error", err)
		return false
	}
	p.lastColor = frame
	p.colorImage = img
	return true
}

func (p *Pipeline) readIR(ctx context.Context) bool {
	if p.ir == nil {
		return false
	}
	frame, ok := p.readOptional(ctx, p.ir)
	if !ok {
		return false
	}
	p.lastIR = frame
	return true
}

func (p *Pipeline) readOptional(ctx context.Context, s sensor.Stream) (*sensor.RawFrame, bool) {
	frame, err := s.ReadFrame(ctx, p.cfg.ReadTimeout)
	if err == nil {
		err = frame.Validate()
	}
	switch {
	case err == nil:
		return frame, true
	case ctx.Err() != nil:
	case errors.Is(err, sensor.ErrFrameTimeout):
		p.logger.Debugw("frame timed out, reusing previous frame", "stream", s.Kind().String())
	default:
		p.logger.Warnw("frame read failed, reusing previous frame", "stream", s.Kind().String(), "error", err)
	}
	return nil, false
}

func (p *Pipeline) recordReadFailure(ctx context.Context, err error) error {
	timeout := errors.Is(err, sensor.ErrFrameTimeout)
	p.statusMu.Lock()
	p.status.ConsecutiveFailures++
	failures := p.status.ConsecutiveFailures
	if timeout {
		p.status.DepthTimeouts++
	}
	p.statusMu.Unlock()

	if timeout {
		recordTimeout(ctx)
		p.logger.Debugw("depth frame timed out, skipping cycle", "consecutive_failures", failures)
	} else {
		p.logger.Warnw("depth frame read failed", "consecutive_failures", failures, "error", err)
	}
	if failures >= p.cfg.MaxConsecutiveFailures {
		return errors.Wrapf(ErrRepeatedFrameFailure, "%d consecutive depth reads failed, last error: %v", failures, err)
	}
	return nil
}

// publish swaps the back buffers in under the snapshot lock and returns the new metadata.
func (p *Pipeline) publish(depth *sensor.RawFrame, newColor, newIR, degraded bool) Metadata {
	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()

	meta := p.front.meta
	meta.DepthFrameNumber++
	meta.DepthTimestamp = depth.Timestamp
	if newColor {
		meta.ColorFrameNumber++
		meta.ColorTimestamp = p.lastColor.Timestamp
	}
	if newIR {
		meta.IRFrameNumber++
		meta.IRTimestamp = p.lastIR.Timestamp
	}
	meta.PublishedAt = p.opts.clock.Now()
	meta.Degraded = degraded

	p.back.meta = meta
	p.front, p.back = p.back, p.front
	return meta
}

func (p *Pipeline) markStopping(reason StopReason, err error) {
	p.statusMu.Lock()
	p.status.State = StateShuttingDown
	p.status.StopReason = reason
	p.status.Err = err
	p.statusMu.Unlock()

	if err != nil {
		p.logger.Errorw("capture pipeline stopping", "session", p.sessionID, "reason", reason.String(), "error", err)
		return
	}
	p.logger.Infow("capture pipeline stopping", "session", p.sessionID, "reason", reason.String())
}

// teardown releases everything Start acquired. The published snapshot stays readable.
func (p *Pipeline) teardown() {
	p.pool.Stop()
	var err error
	for _, s := range []sensor.Stream{p.ir, p.color, p.depth} {
		if s != nil {
			err = multierr.Combine(err, s.Close())
		}
	}
	err = multierr.Combine(err, p.device.Close(context.Background()))

	p.statusMu.Lock()
	p.status.State = StateStopped
	p.teardownErr = err
	published := p.status.FramesPublished
	p.statusMu.Unlock()

	if err != nil {
		p.logger.Warnw("error releasing sensor device", "error", err)
	}
	p.logger.Infow("capture pipeline stopped", "session", p.sessionID, "frames_published", published)
}

// Shutdown asks the capture goroutine to stop at the top of its next cycle and blocks until it
// has, the worker pool is joined and the device is released. It may be called any number of
// times, including after the pipeline stopped on its own.
func (p *Pipeline) Shutdown() error {
	p.shutdownOnce.Do(func() {
		p.shutdownRequested.Store(true)
		p.statusMu.Lock()
		if p.status.State == StateRunning {
			p.status.State = StateShuttingDown
		}
		p.statusMu.Unlock()
	})
	p.workers.Stop()

	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.teardownErr
}

// Status returns the pipeline's current health.
func (p *Pipeline) Status() Status {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.status
}

// SessionID identifies this run in logs.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// DepthDims returns the size of the depth, world, label and registered color buffers.
func (p *Pipeline) DepthDims() (int, int) {
	return p.depthMode.Width, p.depthMode.Height
}

// ColorDims returns the size of the raw color buffer, or zeros when color is disabled.
func (p *Pipeline) ColorDims() (int, int) {
	if p.color == nil {
		return 0, 0
	}
	return p.colorMode.Width, p.colorMode.Height
}

// IRDims returns the size of the IR buffer, or zeros when IR is disabled.
func (p *Pipeline) IRDims() (int, int) {
	if p.ir == nil {
		return 0, 0
	}
	return p.irMode.Width, p.irMode.Height
}

// Calibration returns the calibration used for conversion.
func (p *Pipeline) Calibration() transform.DepthColorIntrinsicsExtrinsics {
	return p.conv.Calibration()
}
