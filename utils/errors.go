package utils

import (
	"github.com/pkg/errors"
)

// NewDimensionMismatchError is used when two buffers that must share a shape do not.
func NewDimensionMismatchError(what string, expectedW, expectedH, actualW, actualH int) error {
	return errors.Errorf("%s dimensions mismatch: expected %dx%d but got %dx%d",
		what, expectedW, expectedH, actualW, actualH)
}
