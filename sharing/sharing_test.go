package sharing

import (
	"context"
	"testing"

	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/plainUtils"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestEvaluator(t *testing.T, fracBits int) *Evaluator {
	field := fp.DefaultField()
	enc, err := fp.NewEncoder(fracBits, field)
	require.NoError(t, err)
	s, err := NewKeyedSampler(field, []byte("participants"))
	require.NoError(t, err)
	ps, err := NewKeyedSampler(field, []byte("crypto provider"))
	require.NoError(t, err)
	return NewEvaluator(enc, NewProvider(field, ps), s)
}

func TestSplitReconstructExact(t *testing.T) {
	field := fp.DefaultField()
	s, err := NewKeyedSampler(field, []byte("k"))
	require.NoError(t, err)
	x := s.Matrix(4, 7)
	sh := Split(field, x, 0, s)
	require.False(t, sh.Shares[0].Equal(x))
	require.False(t, sh.Shares[1].Equal(x))

	back, err := Reconstruct(field, sh)
	require.NoError(t, err)
	require.True(t, back.Equal(x))

	//reconstruction is a copy
	back.Data[0]++
	again, err := Reconstruct(field, sh)
	require.NoError(t, err)
	require.True(t, again.Equal(x))

	_, err = Combine(field, sh.Share(0), sh.Share(0))
	require.Error(t, err)
	_, err = Combine(field, sh.Share(1))
	require.Error(t, err)
}

func TestShareReveal(t *testing.T) {
	ev := newTestEvaluator(t, 16)
	X := mat.NewDense(2, 3, []float64{0.5, -1.25, 3, -7.75, 0, 1e-3})
	sh, err := ev.Share(X)
	require.NoError(t, err)
	res, err := ev.Reveal(sh)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(X, res, ev.Encoder.Resolution()))
}

func TestAddAndRows(t *testing.T) {
	ev := newTestEvaluator(t, 12)
	X := mat.NewDense(2, 2, []float64{1, 2, -3, 4})
	b := []float64{0.5, -0.5}
	x, err := ev.Share(X)
	require.NoError(t, err)
	bias, err := ev.Share(mat.NewDense(1, 2, b))
	require.NoError(t, err)

	sum, err := ev.Add(x, x)
	require.NoError(t, err)
	res, err := ev.Reveal(sum)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4, -6, 8}, plainUtils.RowFlatten(res))

	withBias, err := ev.AddRow(x, bias)
	require.NoError(t, err)
	res, err = ev.Reveal(withBias)
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 1.5, -2.5, 3.5}, plainUtils.RowFlatten(res))

	_, err = ev.AddRow(x, x)
	require.ErrorIs(t, err, fp.ErrShape)
}

func TestMatMulMatchesPlain(t *testing.T) {
	ev := newTestEvaluator(t, 16)
	X := mat.NewDense(3, 4, []float64{0.1, -0.2, 0.3, 0.4, 1, 0, -1, 0.5, -0.7, 0.25, 0.125, 2})
	W := mat.NewDense(4, 2, []float64{1, -1, 0.5, 0.5, -0.25, 2, 3, -0.1})
	x, err := ev.Share(X)
	require.NoError(t, err)
	w, err := ev.Share(W)
	require.NoError(t, err)

	z, err := ev.MatMul(context.Background(), x, w)
	require.NoError(t, err)
	require.Equal(t, ev.Encoder.FracBits, z.FracBits)
	res, err := ev.Reveal(z)
	require.NoError(t, err)

	var expected mat.Dense
	expected.Mul(X, W)
	require.True(t, mat.EqualApprox(&expected, res, 1e-3))

	require.Equal(t, 2, ev.Comm().Rounds)
	require.Equal(t, 2*(12+8), ev.Comm().Elements)

	_, err = ev.MatMul(context.Background(), x, x)
	require.ErrorIs(t, err, fp.ErrShape)
}

func TestSquareMatchesPlain(t *testing.T) {
	ev := newTestEvaluator(t, 16)
	X := mat.NewDense(2, 3, []float64{-1.5, 0.25, 3, 0, -0.01, 2.5})
	x, err := ev.Share(X)
	require.NoError(t, err)
	z, err := ev.Square(context.Background(), x)
	require.NoError(t, err)
	res, err := ev.Reveal(z)
	require.NoError(t, err)

	var expected mat.Dense
	expected.MulElem(X, X)
	require.True(t, mat.EqualApprox(&expected, res, 1e-3))
}

func TestProviderTriplesAreConsistent(t *testing.T) {
	field := fp.DefaultField()
	s, err := NewKeyedSampler(field, []byte("dealer"))
	require.NoError(t, err)
	p := NewProvider(field, s)

	tr, err := p.MatMulTriple(context.Background(), 2, 3, 4)
	require.NoError(t, err)
	a, err := Combine(field, Share{0, tr.A[0]}, Share{1, tr.A[1]})
	require.NoError(t, err)
	b, err := Combine(field, Share{0, tr.B[0]}, Share{1, tr.B[1]})
	require.NoError(t, err)
	c, err := Combine(field, Share{0, tr.C[0]}, Share{1, tr.C[1]})
	require.NoError(t, err)
	ab, err := field.MatMul(a, b)
	require.NoError(t, err)
	require.True(t, ab.Equal(c))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SquarePair(ctx, 1, 1)
	require.ErrorIs(t, err, context.Canceled)
	_, err = p.MatMulTriple(context.Background(), 0, 1, 1)
	require.ErrorIs(t, err, fp.ErrShape)
}
