package models

import (
	"math"
	"math/rand"

	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/plainUtils"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is the shape sentinel shared with the field arithmetic.
var ErrShape = fp.ErrShape

// a differentiable stage. Activations are batch x features, one sample per row
type layer interface {
	forward(X *mat.Dense) *mat.Dense
	backward(dY *mat.Dense) *mat.Dense
	update(lr float64)
}

// he-normal initialization
func initWeights(rows, cols, fanIn int, rng *rand.Rand) *mat.Dense {
	return plainUtils.RandMatrix(rows, cols, math.Sqrt(2/float64(fanIn)), rng)
}

func colSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	res := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			res[j] += m.At(i, j)
		}
	}
	return res
}

/*
LINEAR
*/
type linear struct {
	W  *mat.Dense //in x out
	B  []float64
	dW *mat.Dense
	dB []float64
	x  *mat.Dense
}

func newLinear(in, out int, rng *rand.Rand) *linear {
	return &linear{W: initWeights(in, out, in, rng), B: make([]float64, out)}
}

func (l *linear) forward(X *mat.Dense) *mat.Dense {
	l.x = X
	var y mat.Dense
	y.Mul(X, l.W)
	plainUtils.AddBias(&y, l.B)
	return &y
}

func (l *linear) backward(dY *mat.Dense) *mat.Dense {
	l.dW = new(mat.Dense)
	l.dW.Mul(l.x.T(), dY)
	l.dB = colSums(dY)
	var dX mat.Dense
	dX.Mul(dY, l.W.T())
	return &dX
}

func (l *linear) update(lr float64) {
	l.dW.Scale(-lr, l.dW)
	l.W.Add(l.W, l.dW)
	for j := range l.B {
		l.B[j] -= lr * l.dB[j]
	}
}

/*
RELU
*/
type relu struct {
	x *mat.Dense
}

func (r *relu) forward(X *mat.Dense) *mat.Dense {
	r.x = X
	y := mat.DenseCopyOf(X)
	y.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, y)
	return y
}

func (r *relu) backward(dY *mat.Dense) *mat.Dense {
	dX := mat.DenseCopyOf(dY)
	dX.Apply(func(i, j int, v float64) float64 {
		if r.x.At(i, j) <= 0 {
			return 0
		}
		return v
	}, dX)
	return dX
}

func (r *relu) update(float64) {}

/*
CONVOLUTION
valid padding, stride 1. A sample is stored channel-major: ch*H*W + y*W + x
*/
type conv2d struct {
	inC, outC, k         int
	inH, inW, outH, outW int
	W                    *mat.Dense //outC x (inC*k*k)
	B                    []float64
	dW                   *mat.Dense
	dB                   []float64
	cols                 []*mat.Dense
}

func newConv2d(inC, outC, k, inH, inW int, rng *rand.Rand) (*conv2d, error) {
	outH, outW := inH-k+1, inW-k+1
	if outH <= 0 || outW <= 0 {
		return nil, errors.Wrapf(ErrShape, "kernel %d larger than input %dx%d", k, inH, inW)
	}
	fanIn := inC * k * k
	return &conv2d{
		inC: inC, outC: outC, k: k,
		inH: inH, inW: inW, outH: outH, outW: outW,
		W: initWeights(outC, fanIn, fanIn, rng),
		B: make([]float64, outC),
	}, nil
}

func (c *conv2d) outSize() int {
	return c.outC * c.outH * c.outW
}

// patches of a sample, one row per output position
func (c *conv2d) im2col(row []float64) *mat.Dense {
	cols := mat.NewDense(c.outH*c.outW, c.inC*c.k*c.k, nil)
	for oy := 0; oy < c.outH; oy++ {
		for ox := 0; ox < c.outW; ox++ {
			dst := cols.RawRowView(oy*c.outW + ox)
			idx := 0
			for ch := 0; ch < c.inC; ch++ {
				base := ch * c.inH * c.inW
				for ky := 0; ky < c.k; ky++ {
					for kx := 0; kx < c.k; kx++ {
						dst[idx] = row[base+(oy+ky)*c.inW+ox+kx]
						idx++
					}
				}
			}
		}
	}
	return cols
}

// inverse scatter of im2col, accumulating into dst
func (c *conv2d) col2im(dcols *mat.Dense, dst []float64) {
	for oy := 0; oy < c.outH; oy++ {
		for ox := 0; ox < c.outW; ox++ {
			src := dcols.RawRowView(oy*c.outW + ox)
			idx := 0
			for ch := 0; ch < c.inC; ch++ {
				base := ch * c.inH * c.inW
				for ky := 0; ky < c.k; ky++ {
					for kx := 0; kx < c.k; kx++ {
						dst[base+(oy+ky)*c.inW+ox+kx] += src[idx]
						idx++
					}
				}
			}
		}
	}
}

func (c *conv2d) forward(X *mat.Dense) *mat.Dense {
	batch := plainUtils.NumRows(X)
	positions := c.outH * c.outW
	out := mat.NewDense(batch, c.outSize(), nil)
	c.cols = make([]*mat.Dense, batch)
	for b := 0; b < batch; b++ {
		c.cols[b] = c.im2col(mat.Row(nil, b, X))
		var y mat.Dense
		y.Mul(c.cols[b], c.W.T()) //positions x outC
		dst := out.RawRowView(b)
		for p := 0; p < positions; p++ {
			for o := 0; o < c.outC; o++ {
				dst[o*positions+p] = y.At(p, o) + c.B[o]
			}
		}
	}
	return out
}

func (c *conv2d) backward(dY *mat.Dense) *mat.Dense {
	batch := plainUtils.NumRows(dY)
	positions := c.outH * c.outW
	c.dW = mat.NewDense(c.outC, c.inC*c.k*c.k, nil)
	c.dB = make([]float64, c.outC)
	dX := mat.NewDense(batch, c.inC*c.inH*c.inW, nil)
	for b := 0; b < batch; b++ {
		g := mat.NewDense(positions, c.outC, nil)
		src := dY.RawRowView(b)
		for o := 0; o < c.outC; o++ {
			for p := 0; p < positions; p++ {
				v := src[o*positions+p]
				g.Set(p, o, v)
				c.dB[o] += v
			}
		}
		var dw mat.Dense
		dw.Mul(g.T(), c.cols[b])
		c.dW.Add(c.dW, &dw)

		var dcols mat.Dense
		dcols.Mul(g, c.W)
		c.col2im(&dcols, dX.RawRowView(b))
	}
	return dX
}

func (c *conv2d) update(lr float64) {
	c.dW.Scale(-lr, c.dW)
	c.W.Add(c.W, c.dW)
	for o := range c.B {
		c.B[o] -= lr * c.dB[o]
	}
}

/*
MAX POOLING 2x2, stride 2. Odd trailing rows/cols are dropped
*/
type maxPool struct {
	ch, inH, inW, outH, outW int
	argmax                   [][]int
}

func newMaxPool(ch, inH, inW int) (*maxPool, error) {
	if inH < 2 || inW < 2 {
		return nil, errors.Wrapf(ErrShape, "cannot pool %dx%d", inH, inW)
	}
	return &maxPool{ch: ch, inH: inH, inW: inW, outH: inH / 2, outW: inW / 2}, nil
}

func (m *maxPool) outSize() int {
	return m.ch * m.outH * m.outW
}

func (m *maxPool) forward(X *mat.Dense) *mat.Dense {
	batch := plainUtils.NumRows(X)
	out := mat.NewDense(batch, m.outSize(), nil)
	m.argmax = make([][]int, batch)
	for b := 0; b < batch; b++ {
		src := mat.Row(nil, b, X)
		dst := out.RawRowView(b)
		m.argmax[b] = make([]int, len(dst))
		for ch := 0; ch < m.ch; ch++ {
			for oy := 0; oy < m.outH; oy++ {
				for ox := 0; ox < m.outW; ox++ {
					best := -1
					for dy := 0; dy < 2; dy++ {
						for dx := 0; dx < 2; dx++ {
							i := ch*m.inH*m.inW + (2*oy+dy)*m.inW + 2*ox + dx
							if best < 0 || src[i] > src[best] {
								best = i
							}
						}
					}
					o := ch*m.outH*m.outW + oy*m.outW + ox
					dst[o] = src[best]
					m.argmax[b][o] = best
				}
			}
		}
	}
	return out
}

func (m *maxPool) backward(dY *mat.Dense) *mat.Dense {
	batch := plainUtils.NumRows(dY)
	dX := mat.NewDense(batch, m.ch*m.inH*m.inW, nil)
	for b := 0; b < batch; b++ {
		dst := dX.RawRowView(b)
		for o, i := range m.argmax[b] {
			dst[i] += dY.At(b, o)
		}
	}
	return dX
}

func (m *maxPool) update(float64) {}

// mean negative log-likelihood of logits under labels, and its gradient w.r.t. the logits
func nllLoss(logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	r, c := logits.Dims()
	if len(labels) != r {
		return 0, nil, errors.Wrapf(ErrShape, "%d labels for %d samples", len(labels), r)
	}
	logp := plainUtils.LogSoftmax(logits)
	grad := mat.NewDense(r, c, nil)
	loss := 0.0
	n := float64(r)
	for i := 0; i < r; i++ {
		if labels[i] < 0 || labels[i] >= c {
			return 0, nil, errors.Newf("label %d out of range [0,%d)", labels[i], c)
		}
		loss -= logp.At(i, labels[i])
		for j := 0; j < c; j++ {
			g := math.Exp(logp.At(i, j))
			if j == labels[i] {
				g -= 1
			}
			grad.Set(i, j, g/n)
		}
	}
	return loss / n, grad, nil
}
