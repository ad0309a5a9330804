// Package fixedPrecision encodes real numbers as integers of a prime field
// using a fixed number of fractional bits.
package fixedPrecision

import (
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/tuneinsight/lattigo/v4/ring"
)

// DefaultModulus is the Mersenne prime 2^61 - 1.
const DefaultModulus uint64 = 0x1fffffffffffffff

var ErrShape = errors.New("shape mismatch")

// Field is Z_q for a prime q below 2^62, with Barrett reduction for products.
type Field struct {
	Q    uint64
	bred []uint64
}

func NewField(q uint64) (*Field, error) {
	if q < 3 || q&1 == 0 {
		return nil, errors.Newf("modulus %d must be an odd prime", q)
	}
	if bits.Len64(q) > 62 {
		return nil, errors.Newf("modulus %d exceeds 62 bits", q)
	}
	return &Field{Q: q, bred: ring.BRedParams(q)}, nil
}

func DefaultField() *Field {
	f, err := NewField(DefaultModulus)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Field) Add(a, b uint64) uint64 {
	return ring.CRed(a+b, f.Q)
}

func (f *Field) Sub(a, b uint64) uint64 {
	return ring.CRed(a+f.Q-b, f.Q)
}

func (f *Field) Neg(a uint64) uint64 {
	if a == 0 {
		return 0
	}
	return f.Q - a
}

func (f *Field) Mul(a, b uint64) uint64 {
	return ring.BRed(a, b, f.Q, f.bred)
}

// Reduce maps any uint64 into [0, q).
func (f *Field) Reduce(a uint64) uint64 {
	return ring.BRedAdd(a, f.Q, f.bred)
}

// FromSigned maps v to its field representative; negatives become q - |v|.
func (f *Field) FromSigned(v int64) uint64 {
	if v >= 0 {
		return f.Reduce(uint64(v))
	}
	return f.Neg(f.Reduce(uint64(-v)))
}

// ToSigned is the inverse of FromSigned on the centered range (-q/2, q/2].
func (f *Field) ToSigned(a uint64) int64 {
	if a > f.Q/2 {
		return -int64(f.Q - a)
	}
	return int64(a)
}

// FieldMatrix is a row-major matrix over Z_q.
type FieldMatrix struct {
	Rows, Cols int
	Data       []uint64
}

func NewFieldMatrix(rows, cols int) *FieldMatrix {
	return &FieldMatrix{Rows: rows, Cols: cols, Data: make([]uint64, rows*cols)}
}

func (m *FieldMatrix) At(i, j int) uint64 {
	return m.Data[i*m.Cols+j]
}

func (m *FieldMatrix) Set(i, j int, v uint64) {
	m.Data[i*m.Cols+j] = v
}

func (m *FieldMatrix) Dims() (int, int) {
	return m.Rows, m.Cols
}

func (m *FieldMatrix) Equal(o *FieldMatrix) bool {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

func sameShape(a, b *FieldMatrix) error {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return errors.Wrapf(ErrShape, "%dx%d vs %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	return nil
}

func (f *Field) AddMat(a, b *FieldMatrix) (*FieldMatrix, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	res := NewFieldMatrix(a.Rows, a.Cols)
	for i := range res.Data {
		res.Data[i] = f.Add(a.Data[i], b.Data[i])
	}
	return res, nil
}

func (f *Field) SubMat(a, b *FieldMatrix) (*FieldMatrix, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	res := NewFieldMatrix(a.Rows, a.Cols)
	for i := range res.Data {
		res.Data[i] = f.Sub(a.Data[i], b.Data[i])
	}
	return res, nil
}

// MulElem is the Hadamard product.
func (f *Field) MulElem(a, b *FieldMatrix) (*FieldMatrix, error) {
	if err := sameShape(a, b); err != nil {
		return nil, err
	}
	res := NewFieldMatrix(a.Rows, a.Cols)
	for i := range res.Data {
		res.Data[i] = f.Mul(a.Data[i], b.Data[i])
	}
	return res, nil
}

func (f *Field) MulScalar(a *FieldMatrix, c uint64) *FieldMatrix {
	res := NewFieldMatrix(a.Rows, a.Cols)
	for i := range res.Data {
		res.Data[i] = f.Mul(a.Data[i], c)
	}
	return res
}

// MatMul computes a (r x k) times b (k x c).
func (f *Field) MatMul(a, b *FieldMatrix) (*FieldMatrix, error) {
	if a.Cols != b.Rows {
		return nil, errors.Wrapf(ErrShape, "cannot multiply %dx%d by %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	res := NewFieldMatrix(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		rowA := a.Data[i*a.Cols : (i+1)*a.Cols]
		rowR := res.Data[i*b.Cols : (i+1)*b.Cols]
		for k, av := range rowA {
			if av == 0 {
				continue
			}
			rowB := b.Data[k*b.Cols : (k+1)*b.Cols]
			for j, bv := range rowB {
				rowR[j] = f.Add(rowR[j], f.Mul(av, bv))
			}
		}
	}
	return res, nil
}

// AddRow adds the 1 x cols vector v to every row of a.
func (f *Field) AddRow(a *FieldMatrix, v []uint64) (*FieldMatrix, error) {
	if len(v) != a.Cols {
		return nil, errors.Wrapf(ErrShape, "row of %d values for %d columns", len(v), a.Cols)
	}
	res := NewFieldMatrix(a.Rows, a.Cols)
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			res.Data[i*a.Cols+j] = f.Add(a.Data[i*a.Cols+j], v[j])
		}
	}
	return res, nil
}
