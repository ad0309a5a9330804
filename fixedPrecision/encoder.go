package fixedPrecision

import (
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

var ErrOverflow = errors.New("value does not fit the field")

// Encoder maps x to round(x * 2^FracBits) mod q.
type Encoder struct {
	FracBits int
	Field    *Field
	scale    float64
}

func NewEncoder(fracBits int, field *Field) (*Encoder, error) {
	if fracBits <= 0 || fracBits > 30 {
		return nil, errors.Newf("fractional bits must be in [1,30] (got %d)", fracBits)
	}
	if field == nil {
		return nil, errors.New("nil field")
	}
	return &Encoder{FracBits: fracBits, Field: field, scale: math.Ldexp(1, fracBits)}, nil
}

func (e *Encoder) Scale() float64 {
	return e.scale
}

// Resolution is the smallest representable step, 2^-FracBits.
func (e *Encoder) Resolution() float64 {
	return 1 / e.scale
}

// MaxValue is the largest magnitude that encodes without wrapping.
func (e *Encoder) MaxValue() float64 {
	return float64(e.Field.Q/2) / e.scale
}

func (e *Encoder) Encode(x float64) (uint64, error) {
	return e.encodeAt(x, e.FracBits)
}

func (e *Encoder) encodeAt(x float64, fracBits int) (uint64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, errors.Wrapf(ErrOverflow, "%v", x)
	}
	v := math.Round(math.Ldexp(x, fracBits))
	if math.Abs(v) >= float64(e.Field.Q/2) {
		return 0, errors.Wrapf(ErrOverflow, "%g at %d fractional bits", x, fracBits)
	}
	return e.Field.FromSigned(int64(v)), nil
}

func (e *Encoder) Decode(v uint64) float64 {
	return e.DecodeAt(v, e.FracBits)
}

// DecodeAt decodes a value carrying fracBits fractional bits, e.g. 2*FracBits after an untruncated product.
func (e *Encoder) DecodeAt(v uint64, fracBits int) float64 {
	return math.Ldexp(float64(e.Field.ToSigned(v)), -fracBits)
}

func (e *Encoder) EncodeMatrix(m mat.Matrix) (*FieldMatrix, error) {
	return e.EncodeMatrixAt(m, e.FracBits)
}

func (e *Encoder) EncodeMatrixAt(m mat.Matrix, fracBits int) (*FieldMatrix, error) {
	r, c := m.Dims()
	res := NewFieldMatrix(r, c)
	var err error
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if res.Data[i*c+j], err = e.encodeAt(m.At(i, j), fracBits); err != nil {
				return nil, errors.Wrapf(err, "entry (%d,%d)", i, j)
			}
		}
	}
	return res, nil
}

func (e *Encoder) EncodeVector(v []float64) ([]uint64, error) {
	res, err := e.EncodeMatrix(mat.NewDense(1, len(v), append([]float64(nil), v...)))
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (e *Encoder) DecodeMatrixAt(m *FieldMatrix, fracBits int) *mat.Dense {
	res := mat.NewDense(m.Rows, m.Cols, nil)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			res.Set(i, j, e.DecodeAt(m.At(i, j), fracBits))
		}
	}
	return res
}
