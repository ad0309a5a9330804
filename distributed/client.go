package distributed

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	fp "github.com/ldsec/collateral-learning/fixedPrecision"
	"github.com/ldsec/collateral-learning/sharing"
	"google.golang.org/grpc/benchmark/latency"
)

// Client fetches correlated randomness from a remote Dealer.
// It implements sharing.TripleSource; requests are serialized on one connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextId int
}

var _ sharing.TripleSource = (*Client)(nil)

func Dial(ctx context.Context, addr string, network *latency.Network) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing dealer at %s", addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.SetDeadline(deadline); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "setting dial deadline")
		}
	}
	lc, err := network.Conn(c)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "wrapping dealer connection")
	}
	if err := lc.SetDeadline(time.Time{}); err != nil {
		lc.Close()
		return nil, errors.Wrap(err, "clearing dial deadline")
	}
	return &Client{conn: lc}, nil
}

func (cl *Client) request(ctx context.Context, typ ProtocolType, dims ...int) ([]*fp.FieldMatrix, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn == nil {
		return nil, errors.Wrap(ErrProtocol, "client closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := cl.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	cl.nextId++
	msg := ProtocolMsg{Type: typ, Id: cl.nextId, Dims: dims}
	if err := writeMsg(cl.conn, msg); err != nil {
		return nil, errors.Wrapf(err, "sending %s request", typ)
	}
	var resp ProtocolResp
	if err := readMsg(cl.conn, &resp); err != nil {
		return nil, errors.Wrapf(err, "reading %s response", typ)
	}
	if resp.Type == FAILURE {
		return nil, errors.Wrapf(ErrProtocol, "dealer: %s", resp.Error)
	}
	if resp.ProtoId != msg.Id || resp.Type != typ {
		return nil, errors.Wrapf(ErrProtocol, "response %s/%d for request %s/%d", resp.Type, resp.ProtoId, typ, msg.Id)
	}
	for _, m := range resp.Shares {
		if m == nil || len(m.Data) != m.Rows*m.Cols {
			return nil, errors.Wrap(ErrProtocol, "malformed share")
		}
	}
	return resp.Shares, nil
}

func hasDims(m *fp.FieldMatrix, rows, cols int) bool {
	return m.Rows == rows && m.Cols == cols
}

func (cl *Client) MatMulTriple(ctx context.Context, rows, inner, cols int) (*sharing.MatMulTriple, error) {
	m, err := cl.request(ctx, MATMUL, rows, inner, cols)
	if err != nil {
		return nil, err
	}
	tr, err := unpackTriple(m)
	if err != nil {
		return nil, err
	}
	for p := 0; p < sharing.NumParties; p++ {
		if !hasDims(tr.A[p], rows, inner) || !hasDims(tr.B[p], inner, cols) || !hasDims(tr.C[p], rows, cols) {
			return nil, errors.Wrapf(ErrProtocol, "triple share %d does not match %dx%dx%d", p, rows, inner, cols)
		}
	}
	return tr, nil
}

func (cl *Client) SquarePair(ctx context.Context, rows, cols int) (*sharing.SquarePair, error) {
	m, err := cl.request(ctx, SQUARE, rows, cols)
	if err != nil {
		return nil, err
	}
	p, err := unpackPair(m)
	if err != nil {
		return nil, err
	}
	for i := 0; i < sharing.NumParties; i++ {
		if !hasDims(p.A[i], rows, cols) || !hasDims(p.A2[i], rows, cols) {
			return nil, errors.Wrapf(ErrProtocol, "square pair share %d does not match %dx%d", i, rows, cols)
		}
	}
	return p, nil
}

// Close tells the dealer we are done and closes the connection.
func (cl *Client) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn == nil {
		return nil
	}
	werr := writeMsg(cl.conn, ProtocolMsg{Type: END})
	err := cl.conn.Close()
	cl.conn = nil
	if werr != nil {
		return errors.Wrap(werr, "sending END")
	}
	return err
}
