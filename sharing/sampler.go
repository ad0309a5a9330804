package sharing

import (
	"encoding/binary"
	"math/bits"

	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/tuneinsight/lattigo/v4/utils"
)

// Sampler draws uniform elements of Z_q from a keyed PRNG.
type Sampler struct {
	field *fp.Field
	prng  utils.PRNG
	mask  uint64
	buf   [8]byte
}

// NewSampler seeds the PRNG from crypto/rand.
func NewSampler(field *fp.Field) (*Sampler, error) {
	prng, err := utils.NewPRNG()
	if err != nil {
		return nil, errors.Wrap(err, "seeding prng")
	}
	return newSampler(field, prng), nil
}

// NewKeyedSampler is deterministic for a given key.
func NewKeyedSampler(field *fp.Field, key []byte) (*Sampler, error) {
	prng, err := utils.NewKeyedPRNG(key)
	if err != nil {
		return nil, errors.Wrap(err, "keying prng")
	}
	return newSampler(field, prng), nil
}

func newSampler(field *fp.Field, prng utils.PRNG) *Sampler {
	return &Sampler{
		field: field,
		prng:  prng,
		mask:  (1 << bits.Len64(field.Q)) - 1,
	}
}

func (s *Sampler) Uniform() uint64 {
	for {
		if _, err := s.prng.Read(s.buf[:]); err != nil {
			panic(err)
		}
		v := binary.LittleEndian.Uint64(s.buf[:]) & s.mask
		if v < s.field.Q {
			return v
		}
	}
}

func (s *Sampler) Matrix(rows, cols int) *fp.FieldMatrix {
	m := fp.NewFieldMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = s.Uniform()
	}
	return m
}
