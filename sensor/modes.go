package sensor

import (
	"github.com/pkg/errors"

	"go.viam.com/rgbd/rimage"
)

// FindMaxResolutionMode returns the mode with the given format that has the most rows, breaking
// ties by the highest frame rate.
func FindMaxResolutionMode(modes []VideoMode, format rimage.PixelFormat) (VideoMode, error) {
	best := -1
	for i, m := range modes {
		if m.Format != format {
			continue
		}
		if best == -1 || m.Height > modes[best].Height ||
			(m.Height == modes[best].Height && m.FPS > modes[best].FPS) {
			best = i
		}
	}
	if best == -1 {
		return VideoMode{}, errors.Wrapf(ErrStreamConfigurationUnsupported, "no %v mode", format)
	}
	return modes[best], nil
}

// FindMatchingMode returns the mode with exactly the given size, format and frame rate. A zero
// fps matches any rate and picks the fastest.
func FindMatchingMode(modes []VideoMode, width, height, fps int, format rimage.PixelFormat) (VideoMode, error) {
	best := -1
	for i, m := range modes {
		if m.Format != format || m.Width != width || m.Height != height {
			continue
		}
		if fps != 0 && m.FPS != fps {
			continue
		}
		if best == -1 || m.FPS > modes[best].FPS {
			best = i
		}
	}
	if best == -1 {
		return VideoMode{}, errors.Wrapf(ErrStreamConfigurationUnsupported,
			"no %v mode at %dx%d@%d", format, width, height, fps)
	}
	return modes[best], nil
}

// DepthFormats lists the depth layouts in order of preference.
var DepthFormats = []rimage.PixelFormat{rimage.Depth1MM, rimage.Depth100UM}

// IRFormats lists the IR layouts in order of preference.
var IRFormats = []rimage.PixelFormat{rimage.Gray16, rimage.Gray8}

// SelectDepthMode picks the depth mode. With a nil pinned mode it takes the highest resolution
// available, otherwise the mode matching pinned's size and rate. Formats are tried in
// DepthFormats order.
func SelectDepthMode(modes []VideoMode, pinned *VideoMode) (VideoMode, error) {
	var lastErr error
	for _, format := range DepthFormats {
		var (
			mode VideoMode
			err  error
		)
		if pinned != nil {
			mode, err = FindMatchingMode(modes, pinned.Width, pinned.Height, pinned.FPS, format)
		} else {
			mode, err = FindMaxResolutionMode(modes, format)
		}
		if err == nil {
			return mode, nil
		}
		lastErr = err
	}
	return VideoMode{}, errors.Wrap(lastErr, "cannot configure depth stream")
}

// SelectMatchingMode picks a mode of one of formats, in order, with the same size and rate as
// depth.
func SelectMatchingMode(modes []VideoMode, depth VideoMode, formats ...rimage.PixelFormat) (VideoMode, error) {
	var lastErr error
	for _, format := range formats {
		mode, err := FindMatchingMode(modes, depth.Width, depth.Height, depth.FPS, format)
		if err == nil {
			return mode, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.Wrap(ErrStreamConfigurationUnsupported, "no formats requested")
	}
	return VideoMode{}, lastErr
}
