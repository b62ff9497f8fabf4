package rimage

import (
	"image"
	"image/png"
	"os"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// WritePPM writes img to path as a binary PPM.
func WritePPM(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return ppm.Encode(f, img)
}

// ReadPPM reads a PPM image from path.
func ReadPPM(path string) (*Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := ppm.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", path)
	}
	return ConvertImage(img), nil
}

// WritePNG writes img to path as a PNG. A *DepthMap is written as 16 bit grayscale.
func WritePNG(path string, img image.Image) (err error) {
	if dm, ok := img.(*DepthMap); ok {
		img = dm.ToGray16Picture()
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return png.Encode(f, img)
}
