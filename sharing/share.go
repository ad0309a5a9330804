// Package sharing implements two-party additive secret sharing over a prime
// field, with multiplications assisted by a crypto provider handing out
// Beaver triples.
package sharing

import (
	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
)

// NumParties is the number of computing participants. The crypto provider is not one of them.
const NumParties = 2

// Share is the fragment of a Tensor held by a single participant.
type Share struct {
	Party int
	Value *fp.FieldMatrix
}

// Tensor is a matrix additively shared between the computing participants.
// FracBits is the fixed-point precision of the shared value.
type Tensor struct {
	Shares   [NumParties]*fp.FieldMatrix
	FracBits int
}

func (t *Tensor) Dims() (int, int) {
	return t.Shares[0].Rows, t.Shares[0].Cols
}

func (t *Tensor) Share(party int) Share {
	return Share{Party: party, Value: t.Shares[party]}
}

// Split shares x as (r, x - r) with r uniform.
func Split(field *fp.Field, x *fp.FieldMatrix, fracBits int, s *Sampler) *Tensor {
	r := s.Matrix(x.Rows, x.Cols)
	other := fp.NewFieldMatrix(x.Rows, x.Cols)
	for i := range x.Data {
		other.Data[i] = field.Sub(x.Data[i], r.Data[i])
	}
	return &Tensor{Shares: [NumParties]*fp.FieldMatrix{r, other}, FracBits: fracBits}
}

// Combine sums one share from each participant.
func Combine(field *fp.Field, shares ...Share) (*fp.FieldMatrix, error) {
	if len(shares) != NumParties {
		return nil, errors.Newf("need %d shares, got %d", NumParties, len(shares))
	}
	seen := map[int]bool{}
	res := fp.NewFieldMatrix(shares[0].Value.Rows, shares[0].Value.Cols)
	for _, s := range shares {
		if seen[s.Party] {
			return nil, errors.Newf("duplicate share from party %d", s.Party)
		}
		seen[s.Party] = true
		var err error
		if res, err = field.AddMat(res, s.Value); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Reconstruct returns a fresh plaintext matrix, independent of t.
func Reconstruct(field *fp.Field, t *Tensor) (*fp.FieldMatrix, error) {
	return Combine(field, t.Share(0), t.Share(1))
}
