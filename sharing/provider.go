package sharing

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
)

// MatMulTriple is a Beaver triple (A, B, C = A x B), shared between the participants.
type MatMulTriple struct {
	A, B, C [NumParties]*fp.FieldMatrix
}

// SquarePair is (A, A o A), shared between the participants.
type SquarePair struct {
	A, A2 [NumParties]*fp.FieldMatrix
}

// TripleSource is the auxiliary participant. Calls block until the material is delivered.
type TripleSource interface {
	MatMulTriple(ctx context.Context, rows, inner, cols int) (*MatMulTriple, error)
	SquarePair(ctx context.Context, rows, cols int) (*SquarePair, error)
}

// Provider is an in-process crypto provider.
type Provider struct {
	field *fp.Field

	mu      sync.Mutex
	sampler *Sampler
}

func NewProvider(field *fp.Field, sampler *Sampler) *Provider {
	return &Provider{field: field, sampler: sampler}
}

func (p *Provider) MatMulTriple(ctx context.Context, rows, inner, cols int) (*MatMulTriple, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 || inner <= 0 || cols <= 0 {
		return nil, errors.Wrapf(fp.ErrShape, "triple %dx%dx%d", rows, inner, cols)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.sampler.Matrix(rows, inner)
	b := p.sampler.Matrix(inner, cols)
	c, err := p.field.MatMul(a, b)
	if err != nil {
		return nil, err
	}
	A := Split(p.field, a, 0, p.sampler)
	B := Split(p.field, b, 0, p.sampler)
	C := Split(p.field, c, 0, p.sampler)
	return &MatMulTriple{A: A.Shares, B: B.Shares, C: C.Shares}, nil
}

func (p *Provider) SquarePair(ctx context.Context, rows, cols int) (*SquarePair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, errors.Wrapf(fp.ErrShape, "square pair %dx%d", rows, cols)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	a := p.sampler.Matrix(rows, cols)
	a2, err := p.field.MulElem(a, a)
	if err != nil {
		return nil, err
	}
	A := Split(p.field, a, 0, p.sampler)
	A2 := Split(p.field, a2, 0, p.sampler)
	return &SquarePair{A: A.Shares, A2: A2.Shares}, nil
}
