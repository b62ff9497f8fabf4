package rimage

import "fmt"

// PixelFormat describes how a raw frame's bytes are laid out.
type PixelFormat int

// The supported raw frame layouts.
const (
	PixelFormatUnknown PixelFormat = iota
	// Depth1MM is 16 bit depth in millimeters.
	Depth1MM
	// Depth100UM is 16 bit depth in units of 100 micrometers.
	Depth100UM
	RGB888
	Gray8
	Gray16
)

func (f PixelFormat) String() string {
	switch f {
	case Depth1MM:
		return "depth_1mm"
	case Depth100UM:
		return "depth_100um"
	case RGB888:
		return "rgb888"
	case Gray8:
		return "gray8"
	case Gray16:
		return "gray16"
	case PixelFormatUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// BytesPerPixel returns the size of one pixel in a raw frame.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Depth1MM, Depth100UM, Gray16:
		return 2
	case RGB888:
		return 3
	case Gray8:
		return 1
	case PixelFormatUnknown:
		return 0
	default:
		return 0
	}
}

// IsDepth reports whether the format carries depth.
func (f PixelFormat) IsDepth() bool {
	return f == Depth1MM || f == Depth100UM
}
