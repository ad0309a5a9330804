package models

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/plainUtils"
	"github.com/ldsec/collateral-learning/sharing"
	"github.com/ldsec/collateral-learning/utils"
	"gonum.org/v1/gonum/mat"
)

// QuadNetJ is the on-disk form: two dense layers.
type QuadNetJ struct {
	Layers []utils.Layer `json:"layers"`
}

// QuadNet computes (x W1 + b1)^2 W2 + b2.
type QuadNet struct {
	W1, W2 *mat.Dense
	B1, B2 []float64
}

func NewQuadNet(in, hidden, classes int, seed int64) *QuadNet {
	rng := rand.New(rand.NewSource(seed))
	return &QuadNet{
		W1: initWeights(in, hidden, in, rng),
		B1: make([]float64, hidden),
		W2: initWeights(hidden, classes, hidden, rng),
		B2: make([]float64, classes),
	}
}

func LoadQuadNet(path string) (*QuadNet, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading model %s", path)
	}
	var j QuadNetJ
	if err := json.Unmarshal(buf, &j); err != nil {
		return nil, errors.Wrapf(err, "decoding model %s", path)
	}
	qn, err := FromJ(j)
	return qn, errors.Wrapf(err, "model %s", path)
}

func FromJ(j QuadNetJ) (*QuadNet, error) {
	if len(j.Layers) != 2 {
		return nil, errors.Newf("quadratic network has 2 layers, found %d", len(j.Layers))
	}
	qn := new(QuadNet)
	var err error
	if qn.W1, qn.B1, err = j.Layers[0].Build(); err != nil {
		return nil, errors.Wrap(err, "layer 1")
	}
	if qn.W2, qn.B2, err = j.Layers[1].Build(); err != nil {
		return nil, errors.Wrap(err, "layer 2")
	}
	if plainUtils.NumCols(qn.W1) != plainUtils.NumRows(qn.W2) {
		return nil, errors.Wrapf(ErrShape, "layer 1 outputs %d units, layer 2 expects %d", plainUtils.NumCols(qn.W1), plainUtils.NumRows(qn.W2))
	}
	return qn, nil
}

func (qn *QuadNet) ToJ() QuadNetJ {
	return QuadNetJ{Layers: []utils.Layer{utils.NewLayer(qn.W1, qn.B1), utils.NewLayer(qn.W2, qn.B2)}}
}

func (qn *QuadNet) Save(path string) error {
	buf, err := json.Marshal(qn.ToJ())
	if err != nil {
		return errors.Wrap(err, "encoding model")
	}
	return errors.Wrapf(os.WriteFile(path, buf, 0o644), "writing model %s", path)
}

// Dims returns input features, hidden units and classes.
func (qn *QuadNet) Dims() (int, int, int) {
	in, hidden := qn.W1.Dims()
	_, classes := qn.W2.Dims()
	return in, hidden, classes
}

func (qn *QuadNet) hidden(X mat.Matrix) (*mat.Dense, *mat.Dense) {
	var h mat.Dense
	h.Mul(X, qn.W1)
	plainUtils.AddBias(&h, qn.B1)
	var a mat.Dense
	a.MulElem(&h, &h)
	return &h, &a
}

func (qn *QuadNet) checkInput(X mat.Matrix) error {
	in, _, _ := qn.Dims()
	if c := plainUtils.NumCols(X); c != in {
		return errors.Wrapf(ErrShape, "input has %d features, model expects %d", c, in)
	}
	return nil
}

// ForwardRaw returns the unnormalized class scores.
func (qn *QuadNet) ForwardRaw(X mat.Matrix) (*mat.Dense, error) {
	if err := qn.checkInput(X); err != nil {
		return nil, err
	}
	_, a := qn.hidden(X)
	var s mat.Dense
	s.Mul(a, qn.W2)
	plainUtils.AddBias(&s, qn.B2)
	return &s, nil
}

// Forward returns log-probabilities, i.e. LogSoftmax(ForwardRaw(X)).
func (qn *QuadNet) Forward(X mat.Matrix) (*mat.Dense, error) {
	s, err := qn.ForwardRaw(X)
	if err != nil {
		return nil, err
	}
	return plainUtils.LogSoftmax(s), nil
}

// TrainStep runs one SGD step on the mean NLL and returns the loss before the update.
func (qn *QuadNet) TrainStep(X mat.Matrix, Y []int, lr float64) (float64, error) {
	if err := qn.checkInput(X); err != nil {
		return 0, err
	}
	h, a := qn.hidden(X)
	var s mat.Dense
	s.Mul(a, qn.W2)
	plainUtils.AddBias(&s, qn.B2)
	loss, dS, err := nllLoss(&s, Y)
	if err != nil {
		return 0, err
	}

	var dW2 mat.Dense
	dW2.Mul(a.T(), dS)
	dB2 := colSums(dS)

	var dA mat.Dense
	dA.Mul(dS, qn.W2.T())
	//d(h^2)/dh = 2h
	var dH mat.Dense
	dH.MulElem(&dA, h)
	dH.Scale(2, &dH)

	var dW1 mat.Dense
	dW1.Mul(X.T(), &dH)
	dB1 := colSums(&dH)

	dW1.Scale(-lr, &dW1)
	qn.W1.Add(qn.W1, &dW1)
	dW2.Scale(-lr, &dW2)
	qn.W2.Add(qn.W2, &dW2)
	for j := range qn.B1 {
		qn.B1[j] -= lr * dB1[j]
	}
	for j := range qn.B2 {
		qn.B2[j] -= lr * dB2[j]
	}
	return loss, nil
}

// SharedQuadNet holds the network parameters as shared tensors.
type SharedQuadNet struct {
	W1, B1, W2, B2 *sharing.Tensor
}

// ShareWeights encodes and splits every parameter between the participants.
func (qn *QuadNet) ShareWeights(ev *sharing.Evaluator) (*SharedQuadNet, error) {
	sq := new(SharedQuadNet)
	params := []struct {
		dst **sharing.Tensor
		m   mat.Matrix
	}{
		{&sq.W1, qn.W1},
		{&sq.B1, mat.NewDense(1, len(qn.B1), qn.B1)},
		{&sq.W2, qn.W2},
		{&sq.B2, mat.NewDense(1, len(qn.B2), qn.B2)},
	}
	for i, p := range params {
		t, err := ev.Share(p.m)
		if err != nil {
			return nil, errors.Wrapf(err, "sharing parameter %d", i)
		}
		*p.dst = t
	}
	return sq, nil
}

// ForwardShared evaluates the raw scores over shares. The result stays shared.
func (sq *SharedQuadNet) ForwardShared(ctx context.Context, ev *sharing.Evaluator, x *sharing.Tensor) (*sharing.Tensor, error) {
	h, err := ev.MatMul(ctx, x, sq.W1)
	if err != nil {
		return nil, errors.Wrap(err, "layer 1")
	}
	if h, err = ev.AddRow(h, sq.B1); err != nil {
		return nil, err
	}
	if h, err = ev.Square(ctx, h); err != nil {
		return nil, errors.Wrap(err, "activation")
	}
	s, err := ev.MatMul(ctx, h, sq.W2)
	if err != nil {
		return nil, errors.Wrap(err, "layer 2")
	}
	return ev.AddRow(s, sq.B2)
}
