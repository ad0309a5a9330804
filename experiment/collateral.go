package experiment

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/data"
	"github.com/ldsec/collateral-learning/models"
	"github.com/ldsec/collateral-learning/plainUtils"
	"go.dedis.ch/onet/v3/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type CollateralOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	Net          models.CollateralConfig
}

type CollateralResult struct {
	Losses   []float64 //mean training loss per epoch
	TrainAcc float64
	TestAcc  float64
	Baseline float64 //test accuracy of always predicting the most frequent training font
}

func (r *CollateralResult) PrintResult() {
	fmt.Println("---------------------------------------------------------------------------------")
	fmt.Println("[!] Collateral results: ")
	for i, l := range r.Losses {
		fmt.Printf("Epoch %d loss: %f\n", i+1, l)
	}
	fmt.Printf("Font accuracy (train): %.2f%%\n", 100*r.TrainAcc)
	fmt.Printf("Font accuracy (test): %.2f%%\n", 100*r.TestAcc)
	fmt.Printf("Majority baseline: %.2f%%\n", 100*r.Baseline)
}

// leaked computes the scores the adversary observes for every sample of ds.
func leaked(ctx context.Context, scorer Scorer, ds *data.Data, batchSize int) (*mat.Dense, error) {
	classes := 0
	var rows [][]float64
	for i := 0; i < ds.Len(); i += batchSize {
		j := i + batchSize
		if j > ds.Len() {
			j = ds.Len()
		}
		s, err := scorer(ctx, plainUtils.NewDense(ds.X[i:j]))
		if err != nil {
			return nil, errors.Wrapf(err, "scoring samples %d-%d", i, j)
		}
		classes = plainUtils.NumCols(s)
		rows = append(rows, plainUtils.MatToArray(s)...)
	}
	if classes == 0 {
		return nil, errors.New("no samples to score")
	}
	return plainUtils.NewDense(rows), nil
}

func columnStats(m *mat.Dense) ([]float64, []float64) {
	r, c := m.Dims()
	mean, std := make([]float64, c), make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, m)
		mean[j], std[j] = stat.MeanStdDev(col, nil)
		if std[j] == 0 || r < 2 {
			std[j] = 1
		}
	}
	return mean, std
}

//scores are standardized with the training statistics before entering the collateral net
func standardize(m *mat.Dense, mean, std []float64) {
	m.Apply(func(_, j int, v float64) float64 { return (v - mean[j]) / std[j] }, m)
}

func accuracy(pred, labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	c := 0
	for i := range labels {
		if pred[i] == labels[i] {
			c++
		}
	}
	return float64(c) / float64(len(labels))
}

func majority(labels []int) int {
	counts := map[int]int{}
	best := 0
	for _, l := range labels {
		counts[l]++
		if counts[l] > counts[best] || (counts[l] == counts[best] && l < best) {
			best = l
		}
	}
	return best
}

// Collateral trains a CollateralNet to recover the font (Z) of each sample from the
// primary model scores alone, then measures how much it leaks on the test set.
func Collateral(ctx context.Context, scorer Scorer, train, test *data.Data, opt CollateralOptions) (*CollateralResult, error) {
	if opt.Epochs <= 0 || opt.BatchSize <= 0 || opt.LearningRate <= 0 {
		return nil, errors.Newf("epochs, batch size and learning rate must be > 0 (got %d, %d, %f)", opt.Epochs, opt.BatchSize, opt.LearningRate)
	}
	trainX, err := leaked(ctx, scorer, train, opt.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "train set")
	}
	testX, err := leaked(ctx, scorer, test, opt.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "test set")
	}
	mean, std := columnStats(trainX)
	standardize(trainX, mean, std)
	standardize(testX, mean, std)

	cfg := opt.Net
	cfg.Classes = plainUtils.NumCols(trainX)
	if cfg.Fonts <= 0 {
		cfg.Fonts = train.NumAttributes()
	}
	net, err := models.NewCollateralNet(cfg)
	if err != nil {
		return nil, err
	}

	leakedTrain := &data.Data{
		X: plainUtils.MatToArray(trainX),
		Y: append([]int(nil), train.Y...),
		Z: append([]int(nil), train.Z...),
	}
	res := &CollateralResult{}
	for epoch := 0; epoch < opt.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		leakedTrain.Shuffle(opt.Seed + int64(epoch))
		if err := leakedTrain.Init(opt.BatchSize); err != nil {
			return nil, err
		}
		total, n := 0.0, 0
		for {
			batch, err := leakedTrain.Batch()
			if errors.Is(err, data.ErrNoMoreBatches) {
				break
			}
			loss, err := net.TrainStep(plainUtils.NewDense(batch.X), batch.Z, opt.LearningRate)
			if err != nil {
				return nil, errors.Wrapf(err, "epoch %d", epoch+1)
			}
			total += loss
			n++
		}
		if n == 0 {
			return nil, errors.Newf("training set of %d samples is smaller than a batch of %d", leakedTrain.Len(), opt.BatchSize)
		}
		res.Losses = append(res.Losses, total/float64(n))
		log.Lvlf1("collateral epoch %d: loss %f", epoch+1, total/float64(n))
	}

	pred, err := net.Predict(plainUtils.NewDense(leakedTrain.X))
	if err != nil {
		return nil, err
	}
	res.TrainAcc = accuracy(pred, leakedTrain.Z)
	if pred, err = net.Predict(testX); err != nil {
		return nil, err
	}
	res.TestAcc = accuracy(pred, test.Z)

	guess := majority(train.Z)
	baseline := make([]int, test.Len())
	for i := range baseline {
		baseline[i] = guess
	}
	res.Baseline = accuracy(baseline, test.Z)
	return res, nil
}
