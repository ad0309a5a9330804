package plainUtils

/*
	Input: matrix X
	Output: column array of vectorized X
	Example:

	X = |a b|
		|c d|

	if tranpose false:
		output = [a ,c, b, d] column vector
	else:
		output = [a ,b, c, d] (row flattening)
*/
func Vectorize(X [][]float64, transpose bool) []float64 {
	rows := len(X)
	cols := len(X[0])
	flat := make([]float64, rows*cols)
	if !transpose {
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				flat[j*rows+i] = X[i][j]
			}
		}
	} else {
		for i := 0; i < rows; i++ {
			copy(flat[i*cols:(i+1)*cols], X[i])
		}
	}
	return flat
}

//right-pads v with n zeros
func Pad(v []float64, n int) []float64 {
	res := make([]float64, len(v)+n)
	copy(res, v)
	return res
}
