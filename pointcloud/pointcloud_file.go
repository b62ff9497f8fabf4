package pointcloud

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// ToPCD writes the cloud as a structured PCD (WIDTH and HEIGHT match the image grid). Invalid
// points are written as NaN. When colors is non-nil it must have the cloud's dimensions and an
// rgb field is added.
func ToPCD(cloud *Organized, colors image.Image, out io.Writer, outputType PCDType) error {
	if colors != nil {
		b := colors.Bounds()
		if b.Dx() != cloud.Width() || b.Dy() != cloud.Height() {
			return errors.Errorf("color image is %dx%d but cloud is %dx%d", b.Dx(), b.Dy(), cloud.Width(), cloud.Height())
		}
	}

	var err error
	if _, err = fmt.Fprintf(out, "VERSION .7\n"); err != nil {
		return err
	}
	if colors != nil {
		_, err = fmt.Fprintf(out, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Width(),
		cloud.Height(),
		cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	default:
		return errors.Errorf("unsupported pcd type %d", outputType)
	}
	if err != nil {
		return err
	}
	return writePCDData(cloud, colors, out, outputType)
}

// WriteToPCDFile writes the cloud to a binary PCD file.
func WriteToPCDFile(cloud *Organized, colors image.Image, fn string) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ToPCD(cloud, colors, f, PCDBinary)
}

func colorToPCDInt(colors image.Image, x, y int) uint32 {
	b := colors.Bounds()
	r, g, bl, _ := colors.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return (r>>8)<<16 | (g>>8)<<8 | (bl >> 8)
}

func writePCDData(cloud *Organized, colors image.Image, out io.Writer, pcdtype PCDType) error {
	buf := make([]byte, 16)
	for y := 0; y < cloud.Height(); y++ {
		for x := 0; x < cloud.Width(); x++ {
			pos := cloud.At(x, y)
			px, py, pz := float32(pos.X), float32(pos.Y), float32(pos.Z)
			if !IsValidPoint(pos) {
				nan := float32(math.NaN())
				px, py, pz = nan, nan, nan
			}
			var err error
			switch pcdtype {
			case PCDBinary:
				binary.LittleEndian.PutUint32(buf, math.Float32bits(px))
				binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(py))
				binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(pz))
				n := 12
				if colors != nil {
					binary.LittleEndian.PutUint32(buf[12:], colorToPCDInt(colors, x, y))
					n = 16
				}
				_, err = out.Write(buf[:n])
			case PCDAscii:
				line := formatPCDFloat(px) + " " + formatPCDFloat(py) + " " + formatPCDFloat(pz)
				if colors != nil {
					line += fmt.Sprintf(" %d", colorToPCDInt(colors, x, y))
				}
				_, err = fmt.Fprintln(out, line)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func formatPCDFloat(f float32) string {
	if math.IsNaN(float64(f)) {
		return "nan"
	}
	return fmt.Sprintf("%f", f)
}
