package utils

import (
	"fmt"

	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/plainUtils"
	"gonum.org/v1/gonum/mat"
)

/*
	Define layer type for the various models
*/
type Bias struct {
	B   []float64 `json:"b"`
	Len int       `json:"len"`
}

/*
	Matrix M s.t X @ M = dense(X, layer) where X is a row-flattened data sample
*/
type Kernel struct {
	W    []float64 `json:"w"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
}

//A Kernel and A Bias
type Layer struct {
	Weight Kernel `json:"weight"`
	Bias   Bias   `json:"bias"`
}

//Returns weight matrix and bias vector of layer
func (l *Layer) Build() (*mat.Dense, []float64, error) {
	if l.Weight.Rows <= 0 || l.Weight.Cols <= 0 {
		return nil, nil, errors.Wrapf(fp.ErrShape, "kernel of %dx%d", l.Weight.Rows, l.Weight.Cols)
	}
	if l.Weight.Rows*l.Weight.Cols != len(l.Weight.W) {
		return nil, nil, errors.Newf("kernel has %d values, expected %dx%d", len(l.Weight.W), l.Weight.Rows, l.Weight.Cols)
	}
	if len(l.Bias.B) > l.Weight.Cols {
		return nil, nil, errors.Newf("bias has %d values for %d output units", len(l.Bias.B), l.Weight.Cols)
	}
	w := mat.NewDense(l.Weight.Rows, l.Weight.Cols, append([]float64(nil), l.Weight.W...))
	b := plainUtils.Pad(l.Bias.B, l.Weight.Cols-len(l.Bias.B))
	return w, b, nil
}

//Inverse of Build
func NewLayer(w *mat.Dense, b []float64) Layer {
	r, c := w.Dims()
	return Layer{
		Weight: Kernel{W: plainUtils.RowFlatten(w), Rows: r, Cols: c},
		Bias:   Bias{B: append([]float64(nil), b...), Len: len(b)},
	}
}

type Stats struct {
	Iters       int
	Batch       int
	Predictions []int
	Corrects    int
	Total       int
	Accuracy    float64
	Time        int64 //ms
}

func NewStats(batch int) Stats {
	return Stats{Batch: batch}
}

func (s *Stats) Accumulate(other Stats) {
	s.Iters++
	s.Corrects += other.Corrects
	s.Total += other.Total
	s.Accuracy += other.Accuracy
	s.Time += other.Time
}

//Accuracy over all accumulated samples
func (s *Stats) Overall() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Corrects) / float64(s.Total)
}

func (s *Stats) PrintResult() {
	fmt.Println("---------------------------------------------------------------------------------")
	fmt.Println("[!] Results: ")
	if s.Iters == 0 {
		fmt.Println("No batches evaluated")
		return
	}
	fmt.Printf("Accuracy: %.2f%%\n", 100*s.Overall())
	fmt.Printf("Mean batch accuracy: %.2f%%\n", 100*s.Accuracy/float64(s.Iters))
	fmt.Printf("Corrects / tot: %d / %d \n", s.Corrects, s.Total)
	fmt.Printf("Avg Time for Eval: %f ms\n", float64(s.Time)/float64(s.Iters))
}

//Returns number of correct values, accuracy and predicted values
func Predict(Y []int, result [][]float64) (int, float64, []int) {
	batchSize := len(Y)
	predictions := make([]int, batchSize)
	corrects := 0
	for i := 0; i < batchSize; i++ {
		predictions[i] = plainUtils.ArgMax(result[i])
		if predictions[i] == Y[i] {
			corrects += 1
		}
	}
	accuracy := 0.0
	if batchSize > 0 {
		accuracy = float64(corrects) / float64(batchSize)
	}
	return corrects, accuracy, predictions
}
