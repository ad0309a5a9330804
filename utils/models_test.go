package utils

import (
	"testing"

	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLayerBuild(t *testing.T) {
	l := Layer{
		Weight: Kernel{W: []float64{1, 2, 3, 4, 5, 6}, Rows: 2, Cols: 3},
		Bias:   Bias{B: []float64{1, 1}, Len: 2},
	}
	w, b, err := l.Build()
	require.NoError(t, err)
	require.Equal(t, 6.0, w.At(1, 2))
	require.Equal(t, []float64{1, 1, 0}, b)

	back := NewLayer(w, b)
	require.Equal(t, l.Weight, back.Weight)

	l.Weight.Rows = 3
	_, _, err = l.Build()
	require.Error(t, err)

	//dimensions whose product matches the weights are still checked for sign
	l.Weight.Rows, l.Weight.Cols = -2, -3
	require.NotPanics(t, func() { _, _, err = l.Build() })
	require.ErrorIs(t, err, fp.ErrShape)

	_, _, err = (&Layer{}).Build()
	require.ErrorIs(t, err, fp.ErrShape)
}

func TestThrowErr(t *testing.T) {
	require.NotPanics(t, func() { ThrowErr(nil) })
	require.Panics(t, func() { ThrowErr(fp.ErrShape) })
}

func TestPredictAndStats(t *testing.T) {
	res := mat.NewDense(3, 2, []float64{-1, -2, -3, -0.5, 4, 4})
	corrects, acc, preds := Predict([]int{0, 1, 1}, [][]float64{res.RawRowView(0), res.RawRowView(1), res.RawRowView(2)})
	require.Equal(t, []int{0, 1, 0}, preds)
	require.Equal(t, 2, corrects)
	require.InDelta(t, 2.0/3.0, acc, 1e-12)

	s := NewStats(3)
	s.Accumulate(Stats{Corrects: corrects, Total: 3, Accuracy: acc, Time: 10})
	s.Accumulate(Stats{Corrects: 3, Total: 3, Accuracy: 1, Time: 20})
	require.Equal(t, 2, s.Iters)
	require.InDelta(t, 5.0/6.0, s.Overall(), 1e-12)
	require.Equal(t, int64(30), s.Time)
}
