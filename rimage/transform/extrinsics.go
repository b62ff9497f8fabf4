package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Extrinsics holds the rigid body transform from one camera frame to another. The rotation is a
// row-major 3x3 matrix and the translation is in millimeters.
type Extrinsics struct {
	RotationMatrix    []float64 `json:"rotation_rads"`
	TranslationVector []float64 `json:"translation_mm"`
}

// IdentityExtrinsics is the transform between two coincident cameras.
func IdentityExtrinsics() *Extrinsics {
	return &Extrinsics{
		RotationMatrix:    []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		TranslationVector: []float64{0, 0, 0},
	}
}

// CheckValid verifies the matrix shapes.
func (params *Extrinsics) CheckValid() error {
	if params == nil {
		return errors.New("extrinsic parameters do not exist")
	}
	if len(params.RotationMatrix) != 9 {
		return errors.Errorf("rotation matrix must have 9 elements, got %d", len(params.RotationMatrix))
	}
	if len(params.TranslationVector) != 3 {
		return errors.Errorf("translation vector must have 3 elements, got %d", len(params.TranslationVector))
	}
	return nil
}

// TransformPointToPoint applies the rigid body transform to the point (x, y, z).
func (params *Extrinsics) TransformPointToPoint(x, y, z float64) r3.Vector {
	rot := mat.NewDense(3, 3, params.RotationMatrix)
	var out mat.VecDense
	out.MulVec(rot, mat.NewVecDense(3, []float64{x, y, z}))
	out.AddVec(&out, mat.NewVecDense(3, params.TranslationVector))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
