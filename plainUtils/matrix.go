package plainUtils

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func NewDense(X [][]float64) *mat.Dense {
	return mat.NewDense(len(X), len(X[0]), Vectorize(X, true))
}

func MatToArray(m *mat.Dense) [][]float64 {
	v := make([][]float64, NumRows(m))
	for i := 0; i < NumRows(m); i++ {
		v[i] = mat.Row(nil, i, m)
	}
	return v
}

func RowFlatten(m mat.Matrix) []float64 {
	r, c := m.Dims()
	v := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		v = append(v, mat.Row(nil, i, m)...)
	}
	return v
}

func NumRows(m mat.Matrix) int {
	rows, _ := m.Dims()
	return rows
}

func NumCols(m mat.Matrix) int {
	_, cols := m.Dims()
	return cols
}

//returns a r x c matrix with entries drawn from N(0, std^2)
func RandMatrix(r, c int, std float64, rng *rand.Rand) *mat.Dense {
	m := make([]float64, r*c)
	for i := range m {
		m[i] = rng.NormFloat64() * std
	}
	return mat.NewDense(r, c, m)
}

//adds the row vector b to every row of m, in place
func AddBias(m *mat.Dense, b []float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		floats.Add(row[:c], b)
	}
}

//returns index of the largest entry. Ties resolve to the first index
func ArgMax(v []float64) int {
	return floats.MaxIdx(v)
}

//row-wise argmax
func ArgMaxRows(m mat.Matrix) []int {
	r, _ := m.Dims()
	res := make([]int, r)
	for i := 0; i < r; i++ {
		res[i] = ArgMax(mat.Row(nil, i, m))
	}
	return res
}

//row-wise log(softmax(x)), stabilized with log-sum-exp
func LogSoftmax(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	res := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, m)
		lse := floats.LogSumExp(row)
		floats.AddConst(-lse, row)
		res.SetRow(i, row)
	}
	return res
}
