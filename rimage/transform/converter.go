package transform

import (
	"encoding/binary"
	"image"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/rgbd/pointcloud"
	"go.viam.com/rgbd/rimage"
	"go.viam.com/rgbd/utils"
)

// ConverterOptions control how raw frames are converted.
type ConverterOptions struct {
	// Mirror flips every output horizontally: output column x reads source column W-1-x and
	// world X is negated.
	Mirror bool
	// MaxDepthMM is the first depth treated as invalid. Zero means no limit.
	MaxDepthMM rimage.Depth
	// WorldScale multiplies millimeters to produce world units.
	WorldScale float64
}

// Inputs are the raw frames of one capture cycle. Color may be nil when no color frame has been
// received yet.
type Inputs struct {
	Depth       []byte
	DepthFormat rimage.PixelFormat
	Color       *rimage.Image
	IR          []byte
	IRFormat    rimage.PixelFormat
}

// Outputs are the snapshot buffers of one capture cycle. Labels has one byte per depth pixel.
type Outputs struct {
	Depth           *rimage.DepthMap
	World           *pointcloud.Organized
	Labels          []uint8
	RegisteredColor *rimage.Image
	Color           *rimage.Image
	IR              *image.Gray
}

// A Converter turns raw sensor frames into depth, world points and registered color. It is
// immutable after construction and safe to share between workers; each call only writes the rows
// named by its partition.
type Converter struct {
	calib    DepthColorIntrinsicsExtrinsics
	rotation *mat.Dense
	opts     ConverterOptions
}

// NewConverter validates the calibration and options and returns a Converter.
func NewConverter(calib *DepthColorIntrinsicsExtrinsics, opts ConverterOptions) (*Converter, error) {
	if err := calib.CheckValid(); err != nil {
		return nil, err
	}
	if opts.WorldScale <= 0 {
		return nil, errors.Errorf("world scale must be positive, got %v", opts.WorldScale)
	}
	if opts.MaxDepthMM == 0 {
		opts.MaxDepthMM = rimage.MaxDepth
	}
	c := &Converter{calib: *calib, opts: opts}
	c.calib.ExtrinsicD2C = Extrinsics{
		RotationMatrix:    append([]float64(nil), calib.ExtrinsicD2C.RotationMatrix...),
		TranslationVector: append([]float64(nil), calib.ExtrinsicD2C.TranslationVector...),
	}
	c.rotation = mat.NewDense(3, 3, c.calib.ExtrinsicD2C.RotationMatrix)
	return c, nil
}

// Calibration returns a copy of the calibration in use.
func (c *Converter) Calibration() DepthColorIntrinsicsExtrinsics {
	out := c.calib
	out.ExtrinsicD2C = Extrinsics{
		RotationMatrix:    append([]float64(nil), c.calib.ExtrinsicD2C.RotationMatrix...),
		TranslationVector: append([]float64(nil), c.calib.ExtrinsicD2C.TranslationVector...),
	}
	return out
}

// Options returns the options in use.
func (c *Converter) Options() ConverterOptions {
	return c.opts
}

// Convert runs the conversion for one partition, picking the operation from its kind.
func (c *Converter) Convert(p Partition, in *Inputs, out *Outputs) error {
	switch p.Kind {
	case BufferWorld:
		return c.DepthToWorld(p, in.Depth, in.DepthFormat, out.Depth, out.World, out.Labels)
	case BufferRegisteredColor:
		return c.RegisterColor(p, out.World, in.Color, out.RegisteredColor)
	case BufferColor:
		return c.CopyColor(p, in.Color, out.Color)
	case BufferIR:
		return c.CopyIR(p, in.IR, in.IRFormat, out.IR)
	default:
		return errors.Errorf("unknown partition kind %v", p.Kind)
	}
}

func checkRows(p Partition, height int) error {
	if p.StartRow < 0 || p.EndRow > height || p.StartRow > p.EndRow {
		return errors.Errorf("partition %v outside of %d rows", p, height)
	}
	return nil
}

func (c *Converter) sourceColumn(x, width int) int {
	if c.opts.Mirror {
		return width - 1 - x
	}
	return x
}

// DepthToWorld converts the partition's rows of a raw depth frame. It writes the millimeter depth
// into depthOut and the world point into worldOut, and zeroes the same rows of labels. Depth that
// is zero or at least MaxDepthMM produces the invalid point (0, 0, 0).
func (c *Converter) DepthToWorld(
	p Partition,
	raw []byte,
	format rimage.PixelFormat,
	depthOut *rimage.DepthMap,
	worldOut *pointcloud.Organized,
	labels []uint8,
) error {
	if !format.IsDepth() {
		return errors.Errorf("cannot convert %v as depth", format)
	}
	w, h := depthOut.Width(), depthOut.Height()
	if worldOut.Width() != w || worldOut.Height() != h {
		return utils.NewDimensionMismatchError("world", w, h, worldOut.Width(), worldOut.Height())
	}
	if len(raw) < 2*w*h {
		return errors.Errorf("depth frame has %d bytes, expected %d", len(raw), 2*w*h)
	}
	if labels != nil && len(labels) != w*h {
		return errors.Errorf("labels have %d entries, expected %d", len(labels), w*h)
	}
	if err := checkRows(p, h); err != nil {
		return err
	}

	intrinsics := &c.calib.DepthCamera
	scale := c.opts.WorldScale
	for y := p.StartRow; y < p.EndRow; y++ {
		depthRow := depthOut.Row(y)
		worldRow := worldOut.Row(y)
		for x := 0; x < w; x++ {
			sx := c.sourceColumn(x, w)
			v := binary.LittleEndian.Uint16(raw[2*(y*w+sx):])
			if format == rimage.Depth100UM {
				v /= 10
			}
			d := rimage.Depth(v)
			depthRow[x] = d
			if d == 0 || d >= c.opts.MaxDepthMM {
				worldRow[x] = r3.Vector{}
				continue
			}
			px, py, pz := intrinsics.PixelToPoint(float64(sx), float64(y), float64(d))
			if c.opts.Mirror {
				px = -px
			}
			worldRow[x] = r3.Vector{X: px * scale, Y: py * scale, Z: pz * scale}
		}
		if labels != nil {
			clear(labels[y*w : (y+1)*w])
		}
	}
	return nil
}

// RegisterColor samples the color frame for every world point in the partition's rows. Points
// without depth, points that project outside the color frame, and every point when color is nil
// get black.
func (c *Converter) RegisterColor(
	p Partition,
	world *pointcloud.Organized,
	color *rimage.Image,
	out *rimage.Image,
) error {
	w, h := world.Width(), world.Height()
	if out.Width() != w || out.Height() != h {
		return utils.NewDimensionMismatchError("registered color", w, h, out.Width(), out.Height())
	}
	if err := checkRows(p, h); err != nil {
		return err
	}

	toMM := 1 / c.opts.WorldScale
	translation := c.calib.ExtrinsicD2C.TranslationVector
	colorCam := &c.calib.ColorCamera
	var src, dst mat.VecDense
	src.ReuseAsVec(3)
	dst.ReuseAsVec(3)

	for y := p.StartRow; y < p.EndRow; y++ {
		row := out.Row(y)
		worldRow := world.Row(y)
		for x := 0; x < w; x++ {
			pix := row[3*x : 3*x+3]
			pt := worldRow[x]
			if color == nil || !pointcloud.IsValidPoint(pt) {
				pix[0], pix[1], pix[2] = 0, 0, 0
				continue
			}
			px := pt.X
			if c.opts.Mirror {
				px = -px
			}
			src.SetVec(0, px*toMM)
			src.SetVec(1, pt.Y*toMM)
			src.SetVec(2, pt.Z*toMM)
			dst.MulVec(c.rotation, &src)
			cx := dst.AtVec(0) + translation[0]
			cy := dst.AtVec(1) + translation[1]
			cz := dst.AtVec(2) + translation[2]
			if cz <= 0 {
				pix[0], pix[1], pix[2] = 0, 0, 0
				continue
			}
			u, v := colorCam.PointToPixel(cx, cy, cz)
			ix, iy := int(u), int(v)
			if u < 0 || v < 0 || !color.In(ix, iy) {
				pix[0], pix[1], pix[2] = 0, 0, 0
				continue
			}
			sample := color.GetXY(ix, iy)
			pix[0], pix[1], pix[2] = sample.R, sample.G, sample.B
		}
	}
	return nil
}

// CopyColor copies the partition's rows of the raw color frame into dst, mirrored if configured.
func (c *Converter) CopyColor(p Partition, src, dst *rimage.Image) error {
	if src == nil {
		return errors.New("no color frame to copy")
	}
	w, h := dst.Width(), dst.Height()
	if src.Width() != w || src.Height() != h {
		return utils.NewDimensionMismatchError("color", w, h, src.Width(), src.Height())
	}
	if err := checkRows(p, h); err != nil {
		return err
	}
	for y := p.StartRow; y < p.EndRow; y++ {
		srcRow, dstRow := src.Row(y), dst.Row(y)
		if !c.opts.Mirror {
			copy(dstRow, srcRow)
			continue
		}
		for x := 0; x < w; x++ {
			sx := w - 1 - x
			copy(dstRow[3*x:3*x+3], srcRow[3*sx:3*sx+3])
		}
	}
	return nil
}

// CopyIR copies the partition's rows of a raw IR frame into dst, mirrored if configured. 16 bit IR
// is reduced to 8 bits by dropping the two low bits and clamping.
func (c *Converter) CopyIR(p Partition, raw []byte, format rimage.PixelFormat, dst *image.Gray) error {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	bpp := format.BytesPerPixel()
	if format != rimage.Gray8 && format != rimage.Gray16 {
		return errors.Errorf("cannot copy %v as ir", format)
	}
	if len(raw) < bpp*w*h {
		return errors.Errorf("ir frame has %d bytes, expected %d", len(raw), bpp*w*h)
	}
	if err := checkRows(p, h); err != nil {
		return err
	}
	for y := p.StartRow; y < p.EndRow; y++ {
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			k := y*w + c.sourceColumn(x, w)
			if format == rimage.Gray8 {
				dstRow[x] = raw[k]
				continue
			}
			v := binary.LittleEndian.Uint16(raw[2*k:]) >> 2
			if v > 255 {
				v = 255
			}
			dstRow[x] = uint8(v)
		}
	}
	return nil
}
