package experiment

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/data"
	"github.com/ldsec/collateral-learning/distributed"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/models"
	"github.com/ldsec/collateral-learning/plainUtils"
	"github.com/ldsec/collateral-learning/sharing"
	"github.com/ldsec/collateral-learning/utils"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	features = 16
	classes  = 4
	fonts    = 2
)

// samples of class y are a class prototype shifted by a font-dependent offset
func synthetic(n int, seed int64) *data.Data {
	r := rand.New(rand.NewSource(seed))
	protos := plainUtils.RandMatrix(classes, features, 1, rand.New(rand.NewSource(100)))
	shifts := plainUtils.RandMatrix(fonts, features, 0.3, rand.New(rand.NewSource(200)))
	d := &data.Data{}
	for i := 0; i < n; i++ {
		y, z := r.Intn(classes), r.Intn(fonts)
		x := make([]float64, features)
		for j := range x {
			x[j] = protos.At(y, j) + shifts.At(z, j) + 0.05*r.NormFloat64()
		}
		d.X = append(d.X, x)
		d.Y = append(d.Y, y)
		d.Z = append(d.Z, z)
	}
	return d
}

func trainedModel(t *testing.T, ds *data.Data) *models.QuadNet {
	qn := models.NewQuadNet(features, 8, classes, 1)
	X := plainUtils.NewDense(ds.X)
	for i := 0; i < 200; i++ {
		_, err := qn.TrainStep(X, ds.Y, 0.01)
		require.NoError(t, err)
	}
	return qn
}

func newEvaluator(t *testing.T, triples sharing.TripleSource) *sharing.Evaluator {
	field := fp.DefaultField()
	enc, err := fp.NewEncoder(16, field)
	utils.ThrowErr(err)
	s, err := sharing.NewKeyedSampler(field, []byte("parties"))
	utils.ThrowErr(err)
	if triples == nil {
		ps, err := sharing.NewKeyedSampler(field, []byte("provider"))
		utils.ThrowErr(err)
		triples = sharing.NewProvider(field, ps)
	}
	return sharing.NewEvaluator(enc, triples, s)
}

func TestPlainAndSecureAgreeOnTenItems(t *testing.T) {
	ds := synthetic(40, 1)
	qn := trainedModel(t, ds)
	ev := newEvaluator(t, nil)

	cmp, err := CompareEval(context.Background(), qn, ds, ev, Options{BatchSize: 10, MaxBatches: 1})
	require.NoError(t, err)
	require.Len(t, cmp.Plain.Predictions, 10)
	require.Equal(t, cmp.Plain.Predictions, cmp.Secure.Predictions)
	require.Equal(t, 10, cmp.Agreement)
	require.Equal(t, 1.0, cmp.AgreementRate())
	require.Equal(t, cmp.Plain.Corrects, cmp.Secure.Corrects)
	require.Positive(t, cmp.Comm.Rounds)
}

func TestEvalCountsEveryCompleteBatch(t *testing.T) {
	ds := synthetic(25, 2)
	qn := trainedModel(t, ds)
	stats, err := PlainEval(context.Background(), qn, ds, Options{BatchSize: 10})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Iters)
	require.Equal(t, 20, stats.Total)
	require.Len(t, stats.Predictions, 20)
	require.InDelta(t, float64(stats.Corrects)/20, stats.Overall(), 1e-12)
}

func TestEvalAbortsOnFailure(t *testing.T) {
	ds := synthetic(30, 3)
	calls := 0
	failing := func(_ context.Context, X mat.Matrix) (*mat.Dense, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("interrupted")
		}
		return mat.NewDense(plainUtils.NumRows(X), classes, nil), nil
	}
	_, err := Eval(context.Background(), failing, ds, Options{BatchSize: 10})
	require.Error(t, err)
	require.Equal(t, 2, calls)

	_, err = Eval(context.Background(), failing, ds, Options{})
	require.Error(t, err)
}

func TestSecureEvalWithRemoteDealer(t *testing.T) {
	ds := synthetic(20, 4)
	qn := trainedModel(t, ds)

	field := fp.DefaultField()
	ps, err := sharing.NewKeyedSampler(field, []byte("remote provider"))
	require.NoError(t, err)
	dealer, err := distributed.NewDealer(sharing.NewProvider(field, ps), "127.0.0.1:0", &distributed.Lan)
	require.NoError(t, err)
	defer dealer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cl, err := distributed.Dial(ctx, dealer.Addr.String(), &distributed.Lan)
	require.NoError(t, err)
	defer cl.Close()

	secure, err := SecureEval(ctx, qn, ds, newEvaluator(t, cl), Options{BatchSize: 10})
	require.NoError(t, err)
	plain, err := PlainEval(ctx, qn, ds, Options{BatchSize: 10})
	require.NoError(t, err)
	require.Equal(t, plain.Predictions, secure.Predictions)
}

func TestCollateralLearning(t *testing.T) {
	all := synthetic(60, 5)
	train, test, err := all.Split(0.75)
	require.NoError(t, err)
	qn := trainedModel(t, train)

	net := models.DefaultCollateralConfig(classes, fonts)
	net.Side = 12
	net.Kernel = 3
	net.Channels = [2]int{2, 4}
	net.Hidden = 16
	net.Seed = 1

	zBefore := append([]int(nil), train.Z...)
	res, err := Collateral(context.Background(), PlainScorer(qn), train, test, CollateralOptions{
		Epochs:       8,
		BatchSize:    5,
		LearningRate: 0.01,
		Seed:         1,
		Net:          net,
	})
	require.NoError(t, err)
	require.Len(t, res.Losses, 8)
	require.Less(t, res.Losses[7], res.Losses[0])
	require.GreaterOrEqual(t, res.TestAcc, 0.0)
	require.LessOrEqual(t, res.TestAcc, 1.0)
	require.Positive(t, res.Baseline)

	//the training set labels are left untouched
	require.Equal(t, zBefore, train.Z)

	_, err = Collateral(context.Background(), PlainScorer(qn), train, test, CollateralOptions{})
	require.Error(t, err)
}

func TestTrainQuadNet(t *testing.T) {
	ds := synthetic(40, 6)
	qn := models.NewQuadNet(features, 8, classes, 2)
	losses, err := TrainQuadNet(context.Background(), qn, ds, TrainOptions{Epochs: 20, BatchSize: 10, LearningRate: 0.01, Seed: 1})
	require.NoError(t, err)
	require.Len(t, losses, 20)
	require.Less(t, losses[19], losses[0])

	_, err = TrainQuadNet(context.Background(), qn, ds, TrainOptions{Epochs: 1, BatchSize: 50, LearningRate: 0.01})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = TrainQuadNet(ctx, qn, ds, TrainOptions{Epochs: 1, BatchSize: 10, LearningRate: 0.01})
	require.ErrorIs(t, err, context.Canceled)
}
