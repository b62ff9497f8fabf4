package fake

import (
	"encoding/binary"
	"math"

	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/sensor"
)

// focal length in pixels of the 640 pixel wide depth camera.
const focalLength640 = 570.3

var checkerColors = [][3]uint8{
	{200, 40, 40},
	{40, 200, 40},
	{40, 40, 200},
	{220, 220, 60},
}

func render(kind sensor.StreamKind, mode sensor.VideoMode, index uint64) []byte {
	switch kind {
	case sensor.DepthStream:
		return renderDepth(mode, index)
	case sensor.ColorStream:
		return renderColor(mode, index)
	case sensor.IRStream:
		return renderIR(mode, index)
	default:
		return nil
	}
}

// SceneDepth returns the depth in millimeters of the synthetic scene at pixel (x, y) of a
// width x height frame. The leftmost 1/32 of the frame is a shadow without depth.
func SceneDepth(x, y, width, height int, index uint64) rimage.Depth {
	if x < width/32 {
		return 0
	}
	v := float64(y) / float64(height)
	depth := 1200 + 1600*v

	cx := (0.3 + 0.4*float64(index%60)/60) * float64(width)
	cy := 0.5 * float64(height)
	r := 0.15 * float64(height)
	dx, dy := float64(x)-cx, float64(y)-cy
	if d2 := dx*dx + dy*dy; d2 < r*r {
		depth = 900 - 300*math.Sqrt(1-d2/(r*r))
	}
	return rimage.Depth(depth)
}

func renderDepth(mode sensor.VideoMode, index uint64) []byte {
	data := make([]byte, mode.FrameSize())
	for y := 0; y < mode.Height; y++ {
		for x := 0; x < mode.Width; x++ {
			d := uint16(SceneDepth(x, y, mode.Width, mode.Height, index))
			if mode.Format == rimage.Depth100UM {
				d *= 10
			}
			binary.LittleEndian.PutUint16(data[2*(y*mode.Width+x):], d)
		}
	}
	return data
}

// SceneColor returns the checkerboard color at pixel (x, y).
func SceneColor(x, y, width, height int, index uint64) [3]uint8 {
	cell := width / 8
	if cell < 1 {
		cell = 1
	}
	c := checkerColors[(x/cell+y/cell+int(index/30))%len(checkerColors)]
	shade := uint8(40 * y / height)
	return [3]uint8{c[0] - shade/2, c[1] - shade/2, c[2] - shade/2}
}

func renderColor(mode sensor.VideoMode, index uint64) []byte {
	data := make([]byte, mode.FrameSize())
	for y := 0; y < mode.Height; y++ {
		for x := 0; x < mode.Width; x++ {
			c := SceneColor(x, y, mode.Width, mode.Height, index)
			copy(data[3*(y*mode.Width+x):], c[:])
		}
	}
	return data
}

func renderIR(mode sensor.VideoMode, index uint64) []byte {
	data := make([]byte, mode.FrameSize())
	for y := 0; y < mode.Height; y++ {
		for x := 0; x < mode.Width; x++ {
			h := uint32(x)*73856093 ^ uint32(y)*19349663 ^ uint32(index)*83492791
			binary.LittleEndian.PutUint16(data[2*(y*mode.Width+x):], uint16(h&1023))
		}
	}
	return data
}
