package sharing

import (
	"context"

	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"gonum.org/v1/gonum/mat"
)

// Comm counts the interactive openings between the two participants.
type Comm struct {
	Rounds   int
	Elements int //field elements sent, both directions
}

// Evaluator runs the two-party protocol. Both participants live in the same
// process; every open is a synchronous exchange of their masked shares.
type Evaluator struct {
	Field   *fp.Field
	Encoder *fp.Encoder
	Triples TripleSource

	sampler *Sampler
	comm    Comm
}

func NewEvaluator(encoder *fp.Encoder, triples TripleSource, sampler *Sampler) *Evaluator {
	return &Evaluator{
		Field:   encoder.Field,
		Encoder: encoder,
		Triples: triples,
		sampler: sampler,
	}
}

func (ev *Evaluator) Comm() Comm {
	return ev.comm
}

func (ev *Evaluator) ResetComm() {
	ev.comm = Comm{}
}

// Share encodes m at the encoder precision and splits it.
func (ev *Evaluator) Share(m mat.Matrix) (*Tensor, error) {
	x, err := ev.Encoder.EncodeMatrix(m)
	if err != nil {
		return nil, errors.Wrap(err, "encoding before sharing")
	}
	return Split(ev.Field, x, ev.Encoder.FracBits, ev.sampler), nil
}

// Reveal reconstructs t and decodes it to floating point.
func (ev *Evaluator) Reveal(t *Tensor) (*mat.Dense, error) {
	x, err := Reconstruct(ev.Field, t)
	if err != nil {
		return nil, err
	}
	return ev.Encoder.DecodeMatrixAt(x, t.FracBits), nil
}

//exchange of shares: both participants learn a - b
func (ev *Evaluator) open(shares [NumParties]*fp.FieldMatrix) (*fp.FieldMatrix, error) {
	res, err := ev.Field.AddMat(shares[0], shares[1])
	if err != nil {
		return nil, err
	}
	ev.comm.Rounds++
	ev.comm.Elements += NumParties * len(res.Data)
	return res, nil
}

func (ev *Evaluator) Add(a, b *Tensor) (*Tensor, error) {
	if a.FracBits != b.FracBits {
		return nil, errors.Newf("adding tensors at %d and %d fractional bits", a.FracBits, b.FracBits)
	}
	res := &Tensor{FracBits: a.FracBits}
	for p := 0; p < NumParties; p++ {
		var err error
		if res.Shares[p], err = ev.Field.AddMat(a.Shares[p], b.Shares[p]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// AddRow adds a shared 1 x cols row (e.g. a bias) to every row of a.
func (ev *Evaluator) AddRow(a, row *Tensor) (*Tensor, error) {
	if a.FracBits != row.FracBits {
		return nil, errors.Newf("adding row at %d fractional bits to tensor at %d", row.FracBits, a.FracBits)
	}
	if r, _ := row.Dims(); r != 1 {
		return nil, errors.Wrapf(fp.ErrShape, "row tensor has %d rows", r)
	}
	res := &Tensor{FracBits: a.FracBits}
	for p := 0; p < NumParties; p++ {
		var err error
		if res.Shares[p], err = ev.Field.AddRow(a.Shares[p], row.Shares[p].Data); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// MatMul multiplies x by w with a Beaver triple and truncates back to the encoder precision.
func (ev *Evaluator) MatMul(ctx context.Context, x, w *Tensor) (*Tensor, error) {
	r, k := x.Dims()
	k2, c := w.Dims()
	if k != k2 {
		return nil, errors.Wrapf(fp.ErrShape, "cannot multiply %dx%d by %dx%d", r, k, k2, c)
	}
	tr, err := ev.Triples.MatMulTriple(ctx, r, k, c)
	if err != nil {
		return nil, errors.Wrap(err, "fetching matmul triple")
	}
	f := ev.Field

	var maskedX, maskedW [NumParties]*fp.FieldMatrix
	for p := 0; p < NumParties; p++ {
		if maskedX[p], err = f.SubMat(x.Shares[p], tr.A[p]); err != nil {
			return nil, err
		}
		if maskedW[p], err = f.SubMat(w.Shares[p], tr.B[p]); err != nil {
			return nil, err
		}
	}
	E, err := ev.open(maskedX)
	if err != nil {
		return nil, err
	}
	F, err := ev.open(maskedW)
	if err != nil {
		return nil, err
	}

	// z_p = c_p + E b_p + a_p F (+ E F for participant 0)
	res := &Tensor{FracBits: x.FracBits + w.FracBits}
	for p := 0; p < NumParties; p++ {
		z := tr.C[p]
		EB, err := f.MatMul(E, tr.B[p])
		if err != nil {
			return nil, err
		}
		AF, err := f.MatMul(tr.A[p], F)
		if err != nil {
			return nil, err
		}
		if z, err = f.AddMat(z, EB); err != nil {
			return nil, err
		}
		if z, err = f.AddMat(z, AF); err != nil {
			return nil, err
		}
		if p == 0 {
			EF, err := f.MatMul(E, F)
			if err != nil {
				return nil, err
			}
			if z, err = f.AddMat(z, EF); err != nil {
				return nil, err
			}
		}
		res.Shares[p] = z
	}
	return ev.Truncate(res, res.FracBits-ev.Encoder.FracBits), nil
}

// Square computes x o x with a square pair and truncates back to the encoder precision.
func (ev *Evaluator) Square(ctx context.Context, x *Tensor) (*Tensor, error) {
	r, c := x.Dims()
	pair, err := ev.Triples.SquarePair(ctx, r, c)
	if err != nil {
		return nil, errors.Wrap(err, "fetching square pair")
	}
	f := ev.Field

	var masked [NumParties]*fp.FieldMatrix
	for p := 0; p < NumParties; p++ {
		if masked[p], err = f.SubMat(x.Shares[p], pair.A[p]); err != nil {
			return nil, err
		}
	}
	E, err := ev.open(masked)
	if err != nil {
		return nil, err
	}

	// (E + a)^2 = E^2 + 2 E a + a^2
	res := &Tensor{FracBits: 2 * x.FracBits}
	for p := 0; p < NumParties; p++ {
		EA, err := f.MulElem(E, pair.A[p])
		if err != nil {
			return nil, err
		}
		z, err := f.AddMat(pair.A2[p], f.MulScalar(EA, 2))
		if err != nil {
			return nil, err
		}
		if p == 0 {
			EE, err := f.MulElem(E, E)
			if err != nil {
				return nil, err
			}
			if z, err = f.AddMat(z, EE); err != nil {
				return nil, err
			}
		}
		res.Shares[p] = z
	}
	return ev.Truncate(res, res.FracBits-ev.Encoder.FracBits), nil
}

// Truncate drops shift fractional bits locally on each share. The result is off by at
// most one unit, except with probability about |x|/q when the shares do not wrap around q.
func (ev *Evaluator) Truncate(t *Tensor, shift int) *Tensor {
	if shift <= 0 {
		return t
	}
	res := &Tensor{FracBits: t.FracBits - shift}
	s0 := fp.NewFieldMatrix(t.Shares[0].Rows, t.Shares[0].Cols)
	s1 := fp.NewFieldMatrix(t.Shares[1].Rows, t.Shares[1].Cols)
	for i, v := range t.Shares[0].Data {
		s0.Data[i] = v >> shift
	}
	for i, v := range t.Shares[1].Data {
		s1.Data[i] = ev.Field.Neg(ev.Field.Neg(v) >> shift)
	}
	res.Shares[0], res.Shares[1] = s0, s1
	return res
}
