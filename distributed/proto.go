package distributed

import (
	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/sharing"
)

var ErrProtocol = errors.New("protocol error")

type ProtocolType int16

const (
	MATMUL ProtocolType = iota
	SQUARE
	END
	FAILURE
)

var TYPES = []string{"MatMulTriple", "SquarePair", "End", "Failure"}

func (p ProtocolType) String() string {
	if int(p) < len(TYPES) && p >= 0 {
		return TYPES[p]
	}
	return "Unknown"
}

//Party to dealer
type ProtocolMsg struct {
	Type ProtocolType `json:"type"`
	Id   int          `json:"id"`
	Dims []int        `json:"dims"` //rows, inner, cols for MATMUL; rows, cols for SQUARE
}

//Used by dealer for replying to party
type ProtocolResp struct {
	ProtoId int          `json:"protoId"`
	Type    ProtocolType `json:"type"`
	Error   string       `json:"error,omitempty"`
	//one matrix per share, in the order of the triple fields
	Shares []*fp.FieldMatrix `json:"shares,omitempty"`
}

func packTriple(tr *sharing.MatMulTriple) []*fp.FieldMatrix {
	return []*fp.FieldMatrix{tr.A[0], tr.A[1], tr.B[0], tr.B[1], tr.C[0], tr.C[1]}
}

func unpackTriple(m []*fp.FieldMatrix) (*sharing.MatMulTriple, error) {
	if len(m) != 6 {
		return nil, errors.Wrapf(ErrProtocol, "triple with %d shares", len(m))
	}
	return &sharing.MatMulTriple{
		A: [sharing.NumParties]*fp.FieldMatrix{m[0], m[1]},
		B: [sharing.NumParties]*fp.FieldMatrix{m[2], m[3]},
		C: [sharing.NumParties]*fp.FieldMatrix{m[4], m[5]},
	}, nil
}

func packPair(p *sharing.SquarePair) []*fp.FieldMatrix {
	return []*fp.FieldMatrix{p.A[0], p.A[1], p.A2[0], p.A2[1]}
}

func unpackPair(m []*fp.FieldMatrix) (*sharing.SquarePair, error) {
	if len(m) != 4 {
		return nil, errors.Wrapf(ErrProtocol, "square pair with %d shares", len(m))
	}
	return &sharing.SquarePair{
		A:  [sharing.NumParties]*fp.FieldMatrix{m[0], m[1]},
		A2: [sharing.NumParties]*fp.FieldMatrix{m[2], m[3]},
	}, nil
}
