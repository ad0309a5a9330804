package experiment

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/data"
	"github.com/ldsec/collateral-learning/models"
	"github.com/ldsec/collateral-learning/plainUtils"
	"go.dedis.ch/onet/v3/log"
)

type TrainOptions struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
}

// TrainQuadNet fits qn on the primary label of ds with minibatch SGD.
// Returns the mean loss of every epoch. ds is reshuffled between epochs.
func TrainQuadNet(ctx context.Context, qn *models.QuadNet, ds *data.Data, opt TrainOptions) ([]float64, error) {
	if opt.Epochs <= 0 || opt.LearningRate <= 0 {
		return nil, errors.Newf("epochs (%d) and learning rate (%f) must be positive", opt.Epochs, opt.LearningRate)
	}
	losses := make([]float64, 0, opt.Epochs)
	for e := 0; e < opt.Epochs; e++ {
		ds.Shuffle(opt.Seed + int64(e))
		if err := ds.Init(opt.BatchSize); err != nil {
			return losses, err
		}
		sum, n := 0.0, 0
		for {
			if err := ctx.Err(); err != nil {
				return losses, err
			}
			b, err := ds.Batch()
			if errors.Is(err, data.ErrNoMoreBatches) {
				break
			}
			if err != nil {
				return losses, err
			}
			loss, err := qn.TrainStep(plainUtils.NewDense(b.X), b.Y, opt.LearningRate)
			if err != nil {
				return losses, errors.Wrapf(err, "epoch %d batch %d", e+1, n+1)
			}
			sum += loss
			n++
		}
		if n == 0 {
			return losses, errors.Newf("no complete batch of size %d in %d samples", opt.BatchSize, ds.Len())
		}
		losses = append(losses, sum/float64(n))
		log.Lvlf2("quadnet epoch %d: loss %f", e+1, sum/float64(n))
	}
	return losses, nil
}
