package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/rgbd/capture"
	"go.viam.com/rgbd/config"
	"go.viam.com/rgbd/logging"
	"go.viam.com/rgbd/pointcloud"
	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/sensor"
	"go.viam.com/rgbd/sensor/fake"
)

const (
	// Flags.
	flagDebug        = "debug"
	flagLogFile      = "log-file"
	flagConfig       = "config"
	flagDuration     = "duration"
	flagPollInterval = "poll-interval"
	flagDump         = "dump"
)

type runner struct {
	logger logging.Logger
}

func newApp(out io.Writer) *cli.App {
	r := &runner{}
	configFlag := &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "load pipeline configuration from `FILE`",
	}
	return &cli.App{
		Name:   "rgbd",
		Usage:  "capture depth, color and point clouds from a structured light sensor",
		Writer: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotating it as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			debug := c.Bool(flagDebug)
			switch {
			case c.String(flagLogFile) != "":
				r.logger = logging.NewFileLogger("rgbd", c.String(flagLogFile), debug)
			case debug:
				r.logger = logging.NewDebugLogger("rgbd")
			default:
				r.logger = logging.NewLogger("rgbd")
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if r.logger != nil {
				goutils.UncheckedErrorFunc(r.logger.Sync)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "devices",
				Usage:  "list connected devices",
				Flags:  []cli.Flag{configFlag},
				Action: r.listDevices,
			},
			{
				Name:  "run",
				Usage: "run the capture pipeline",
				Flags: []cli.Flag{
					configFlag,
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "stop after this long; zero runs until interrupted",
					},
					&cli.DurationFlag{
						Name:  flagPollInterval,
						Value: 10 * time.Millisecond,
						Usage: "how often to check for a new snapshot",
					},
					&cli.StringFlag{
						Name:  flagDump,
						Usage: "write the last snapshot to `DIR`",
					},
				},
				Action: r.run,
			},
		},
	}
}

func (r *runner) loadConfig(c *cli.Context) (*config.Pipeline, error) {
	path := c.String(flagConfig)
	if path == "" {
		cfg := &config.Pipeline{}
		return cfg, cfg.Validate("")
	}
	return config.Read(c.Context, path, r.logger)
}

// newDriver builds the driver devices are opened through. Only the synthetic device is built in.
func newDriver(cfg *config.Pipeline) (sensor.Driver, error) {
	opts := fake.DeviceOptions{URI: cfg.DeviceURI}
	if f := cfg.Fake; f != nil {
		format, err := f.PixelFormat()
		if err != nil {
			return nil, err
		}
		opts.Width, opts.Height, opts.FPS = f.Width, f.Height, f.FPS
		opts.DepthFormat = format
		opts.HasIR = f.IR
	}
	return fake.NewDriver(nil, fake.NewDevice(opts)), nil
}

func (r *runner) listDevices(c *cli.Context) error {
	cfg, err := r.loadConfig(c)
	if err != nil {
		return err
	}
	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	devices, err := sensor.NewRegistry(driver, r.logger.Sublogger("sensor")).Enumerate(c.Context)
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "URI", "Name", "Vendor", "Serial", "USB ID"})
	for i, d := range devices {
		t.AppendRow(table.Row{i, d.URI, d.Name, d.Vendor, d.Serial, fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func (r *runner) run(c *cli.Context) (err error) {
	cfg, err := r.loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Debug {
		r.logger.SetLevel(logging.DEBUG)
	}
	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	if err := capture.RegisterViews(); err != nil {
		return err
	}
	defer capture.UnregisterViews()

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if d := c.Duration(flagDuration); d > 0 {
		var cancelTimeout func()
		ctx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	registry := sensor.NewRegistry(driver, r.logger.Sublogger("sensor"))
	p, err := capture.Start(context.Background(), registry, cfg, r.logger.Sublogger("capture"))
	if err != nil {
		return err
	}
	samples := pollSnapshots(ctx, p, c.Duration(flagPollInterval))
	err = p.Shutdown()

	status := p.Status()
	printSummary(c.App.Writer, status, samples)
	if dir := c.String(flagDump); dir != "" {
		err = multierr.Combine(err, dumpSnapshot(c.App.Writer, p, dir, rimage.Depth(cfg.MaxDepthMM)))
	}
	if status.Err != nil {
		err = multierr.Combine(err, status.Err)
	}
	return err
}

type frameSamples struct {
	// intervals between consecutive depth frames seen, from device timestamps
	intervals []float64
	// how old each new snapshot was when first seen
	ages []float64
}

// pollSnapshots watches the pipeline until ctx is done or the pipeline stops.
func pollSnapshots(ctx context.Context, p *capture.Pipeline, every time.Duration) frameSamples {
	var (
		samples frameSamples
		last    capture.Metadata
	)
	for goutils.SelectContextOrWait(ctx, every) {
		if p.Status().State == capture.StateStopped {
			break
		}
		v := p.Lock()
		meta := v.Metadata()
		v.Unlock()
		if meta.DepthFrameNumber == last.DepthFrameNumber {
			continue
		}
		samples.ages = append(samples.ages, ms(time.Since(meta.PublishedAt)))
		if last.DepthFrameNumber != 0 && meta.DepthFrameNumber == last.DepthFrameNumber+1 {
			samples.intervals = append(samples.intervals, ms(meta.DepthTimestamp-last.DepthTimestamp))
		}
		last = meta
	}
	return samples
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func printSummary(out io.Writer, status capture.Status, samples frameSamples) {
	fmt.Fprintf(out, "session %s: %d frames published, %d degraded, %d depth timeouts, stopped (%v)\n",
		status.SessionID, status.FramesPublished, status.DegradedFrames, status.DepthTimeouts, status.StopReason)
	printDistribution(out, "frame interval", samples.intervals)
	printDistribution(out, "snapshot age", samples.ages)
}

func printDistribution(out io.Writer, name string, data []float64) {
	if len(data) == 0 {
		fmt.Fprintf(out, "%s: no samples\n", name)
		return
	}
	mean, err := stats.Mean(data)
	p50, err2 := stats.Percentile(data, 50)
	p95, err3 := stats.Percentile(data, 95)
	if err := multierr.Combine(err, err2, err3); err != nil {
		fmt.Fprintf(out, "%s: %v\n", name, err)
		return
	}
	fmt.Fprintf(out, "%s: mean %.2fms p50 %.2fms p95 %.2fms over %d samples\n", name, mean, p50, p95, len(data))
}

// dumpSnapshot writes the published snapshot: depth as 16 bit and visualized PNGs, color as PPM
// and the world points, colored when possible, as PCD.
func dumpSnapshot(out io.Writer, p *capture.Pipeline, dir string, maxDepth rimage.Depth) (err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	v := p.Lock()
	defer v.Unlock()

	meta := v.Metadata()
	if meta.DepthFrameNumber == 0 {
		return errors.New("no snapshot was published")
	}
	prefix := filepath.Join(dir, fmt.Sprintf("frame_%06d", meta.DepthFrameNumber))
	written := []string{prefix + "_depth.png", prefix + "_depth_gray.png"}
	err = multierr.Combine(
		rimage.WritePNG(written[0], v.Depth()),
		rimage.WritePNG(written[1], rimage.DepthToGray(v.Depth(), maxDepth)),
	)

	var colors image.Image
	if registered := v.RegisteredColor(); registered != nil {
		colors = registered
		written = append(written, prefix+"_registered.ppm", prefix+"_color.ppm")
		err = multierr.Combine(err,
			rimage.WritePPM(prefix+"_registered.ppm", registered),
			rimage.WritePPM(prefix+"_color.ppm", v.RawColor()),
		)
	}
	if ir := v.IR(); ir != nil {
		written = append(written, prefix+"_ir.png")
		err = multierr.Combine(err, rimage.WritePNG(prefix+"_ir.png", ir))
	}
	written = append(written, prefix+".pcd")
	err = multierr.Combine(err, pointcloud.WriteToPCDFile(v.WorldPoints(), colors, prefix+".pcd"))
	if err != nil {
		return err
	}
	for _, f := range written {
		fmt.Fprintf(out, "wrote %s\n", f)
	}
	return nil
}
