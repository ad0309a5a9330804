package models

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/plainUtils"
	"github.com/ldsec/collateral-learning/sharing"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomInputs(rows, cols int, seed int64) *mat.Dense {
	r := rand.New(rand.NewSource(seed))
	X := mat.NewDense(rows, cols, nil)
	X.Apply(func(_, _ int, _ float64) float64 { return r.Float64() }, X)
	return X
}

func TestRawIsFullBeforeNormalization(t *testing.T) {
	qn := NewQuadNet(16, 8, 4, 1)
	X := randomInputs(5, 16, 2)
	raw, err := qn.ForwardRaw(X)
	require.NoError(t, err)
	full, err := qn.Forward(X)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(plainUtils.LogSoftmax(raw), full, 1e-12))
	require.Equal(t, plainUtils.ArgMaxRows(raw), plainUtils.ArgMaxRows(full))

	_, err = qn.Forward(randomInputs(1, 3, 1))
	require.ErrorIs(t, err, ErrShape)
	require.ErrorIs(t, err, fp.ErrShape)
}

func TestQuadNetSaveLoad(t *testing.T) {
	qn := NewQuadNet(6, 3, 2, 7)
	path := filepath.Join(t.TempDir(), "quadnet.json")
	require.NoError(t, qn.Save(path))

	back, err := LoadQuadNet(path)
	require.NoError(t, err)
	require.True(t, mat.Equal(qn.W1, back.W1))
	require.True(t, mat.Equal(qn.W2, back.W2))
	require.Equal(t, qn.B1, back.B1)
	require.Equal(t, qn.B2, back.B2)

	j := qn.ToJ()
	j.Layers = j.Layers[:1]
	_, err = FromJ(j)
	require.Error(t, err)

	_, err = LoadQuadNet(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	//layers without dimensions are rejected, not built
	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"layers":[{},{}]}`), 0o644))
	require.NotPanics(t, func() {
		_, err = LoadQuadNet(empty)
	})
	require.ErrorIs(t, err, fp.ErrShape)
}

func TestQuadNetTrainStepReducesLoss(t *testing.T) {
	qn := NewQuadNet(4, 6, 3, 1)
	X := mat.NewDense(3, 4, []float64{
		0.1, 0.2, 0.3, 0.4,
		0.4, 0.3, 0.2, 0.1,
		0.9, 0.0, 0.9, 0.0,
	})
	Y := []int{0, 1, 2}
	first, err := qn.TrainStep(X, Y, 0.05)
	require.NoError(t, err)
	var last float64
	for i := 0; i < 50; i++ {
		last, err = qn.TrainStep(X, Y, 0.05)
		require.NoError(t, err)
	}
	require.Less(t, last, first)

	_, err = qn.TrainStep(X, []int{0, 1, 5}, 0.05)
	require.Error(t, err)
}

func TestSharedForwardMatchesPlain(t *testing.T) {
	field := fp.DefaultField()
	enc, err := fp.NewEncoder(16, field)
	require.NoError(t, err)
	ps, err := sharing.NewKeyedSampler(field, []byte("provider"))
	require.NoError(t, err)
	s, err := sharing.NewKeyedSampler(field, []byte("parties"))
	require.NoError(t, err)
	ev := sharing.NewEvaluator(enc, sharing.NewProvider(field, ps), s)

	qn := NewQuadNet(16, 8, 4, 3)
	X := randomInputs(10, 16, 4)
	plain, err := qn.ForwardRaw(X)
	require.NoError(t, err)

	sq, err := qn.ShareWeights(ev)
	require.NoError(t, err)
	x, err := ev.Share(X)
	require.NoError(t, err)
	res, err := sq.ForwardShared(context.Background(), ev, x)
	require.NoError(t, err)
	secure, err := ev.Reveal(res)
	require.NoError(t, err)

	require.True(t, mat.EqualApprox(plain, secure, 1e-2))
	require.Equal(t, plainUtils.ArgMaxRows(plain), plainUtils.ArgMaxRows(secure))
	//two matmuls open two values each, the square opens one
	require.Equal(t, 5, ev.Comm().Rounds)
}
