package models

import (
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/plainUtils"
	"gonum.org/v1/gonum/mat"
)

// CollateralConfig shapes the collateral network.
type CollateralConfig struct {
	Classes  int    //input: raw scores of the primary model
	Fonts    int    //output: secondary labels
	Side     int    //scores are expanded to a Side x Side image
	Kernel   int    //square kernel of both convolutions
	Channels [2]int //output channels of the two convolutions
	Hidden   int
	Seed     int64
}

func DefaultCollateralConfig(classes, fonts int) CollateralConfig {
	return CollateralConfig{
		Classes:  classes,
		Fonts:    fonts,
		Side:     28,
		Kernel:   5,
		Channels: [2]int{10, 20},
		Hidden:   100,
	}
}

// CollateralNet predicts a secondary attribute from the raw scores of a QuadNet:
// linear expansion to an image, conv -> pool -> relu twice, linear -> relu -> linear.
type CollateralNet struct {
	Config CollateralConfig
	layers []layer
}

func NewCollateralNet(cfg CollateralConfig) (*CollateralNet, error) {
	if cfg.Classes <= 0 || cfg.Fonts <= 0 || cfg.Hidden <= 0 {
		return nil, errors.Newf("classes, fonts and hidden units must be > 0 (got %d, %d, %d)", cfg.Classes, cfg.Fonts, cfg.Hidden)
	}
	if cfg.Channels[0] <= 0 || cfg.Channels[1] <= 0 || cfg.Kernel <= 0 {
		return nil, errors.Newf("invalid convolution shape: kernel %d, channels %v", cfg.Kernel, cfg.Channels)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	expand := newLinear(cfg.Classes, cfg.Side*cfg.Side, rng)
	conv1, err := newConv2d(1, cfg.Channels[0], cfg.Kernel, cfg.Side, cfg.Side, rng)
	if err != nil {
		return nil, errors.Wrap(err, "conv1")
	}
	pool1, err := newMaxPool(cfg.Channels[0], conv1.outH, conv1.outW)
	if err != nil {
		return nil, errors.Wrap(err, "pool1")
	}
	conv2, err := newConv2d(cfg.Channels[0], cfg.Channels[1], cfg.Kernel, pool1.outH, pool1.outW, rng)
	if err != nil {
		return nil, errors.Wrap(err, "conv2")
	}
	pool2, err := newMaxPool(cfg.Channels[1], conv2.outH, conv2.outW)
	if err != nil {
		return nil, errors.Wrap(err, "pool2")
	}
	fc1 := newLinear(pool2.outSize(), cfg.Hidden, rng)
	fc2 := newLinear(cfg.Hidden, cfg.Fonts, rng)

	return &CollateralNet{
		Config: cfg,
		layers: []layer{expand, conv1, pool1, &relu{}, conv2, pool2, &relu{}, fc1, &relu{}, fc2},
	}, nil
}

func (cn *CollateralNet) logits(X mat.Matrix) (*mat.Dense, error) {
	if c := plainUtils.NumCols(X); c != cn.Config.Classes {
		return nil, errors.Wrapf(ErrShape, "input has %d scores, model expects %d", c, cn.Config.Classes)
	}
	out := mat.DenseCopyOf(X)
	for _, l := range cn.layers {
		out = l.forward(out)
	}
	return out, nil
}

// Forward returns log-probabilities over the secondary labels.
func (cn *CollateralNet) Forward(X mat.Matrix) (*mat.Dense, error) {
	z, err := cn.logits(X)
	if err != nil {
		return nil, err
	}
	return plainUtils.LogSoftmax(z), nil
}

func (cn *CollateralNet) Predict(X mat.Matrix) ([]int, error) {
	z, err := cn.logits(X)
	if err != nil {
		return nil, err
	}
	return plainUtils.ArgMaxRows(z), nil
}

// TrainStep runs one SGD step on the mean NLL of Z and returns the loss before the update.
func (cn *CollateralNet) TrainStep(X mat.Matrix, Z []int, lr float64) (float64, error) {
	z, err := cn.logits(X)
	if err != nil {
		return 0, err
	}
	loss, grad, err := nllLoss(z, Z)
	if err != nil {
		return 0, err
	}
	for i := len(cn.layers) - 1; i >= 0; i-- {
		grad = cn.layers[i].backward(grad)
	}
	for _, l := range cn.layers {
		l.update(lr)
	}
	return loss, nil
}
