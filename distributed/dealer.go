package distributed

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ldsec/collateral-learning/sharing"
	"go.dedis.ch/onet/v3/log"
	"google.golang.org/grpc/benchmark/latency"
)

// Dealer serves Beaver triples to the computing participants over TCP.
// It never receives inputs, only the shapes of the products to prepare.
type Dealer struct {
	provider *sharing.Provider
	Addr     *net.TCPAddr
	Conn     net.Listener

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func NewDealer(provider *sharing.Provider, addr string, network *latency.Network) (*Dealer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	d := &Dealer{
		provider: provider,
		Addr:     listener.Addr().(*net.TCPAddr),
		Conn:     network.Listener(listener),
		conns:    map[net.Conn]struct{}{},
	}
	d.wg.Add(1)
	go d.listen()
	log.Lvl2("dealer listening on", d.Addr)
	return d, nil
}

func (d *Dealer) listen() {
	defer d.wg.Done()
	for {
		c, err := d.Conn.Accept()
		if err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if !closed {
				log.Error("dealer accept:", err)
			}
			return
		}
		d.mu.Lock()
		if d.closed {
			//Close already swept the open connections
			d.mu.Unlock()
			c.Close()
			return
		}
		d.conns[c] = struct{}{}
		d.wg.Add(1)
		d.mu.Unlock()
		go d.serve(c)
	}
}

//serves requests on c until END or disconnection
func (d *Dealer) serve(c net.Conn) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.conns, c)
		d.mu.Unlock()
		c.Close()
	}()
	for {
		var msg ProtocolMsg
		err := readMsg(c, &msg)
		if errors.Is(err, ErrProtocol) {
			log.Error("dealer: malformed request:", err)
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Lvl2("dealer read:", err)
			}
			return
		}
		if msg.Type == END {
			log.Lvl3("dealer: party hung up")
			return
		}
		if err := writeMsg(c, d.dispatch(msg)); err != nil {
			log.Lvl2("dealer write:", err)
			return
		}
	}
}

func (d *Dealer) dispatch(msg ProtocolMsg) ProtocolResp {
	resp := ProtocolResp{ProtoId: msg.Id, Type: msg.Type}
	ctx := context.Background()
	switch msg.Type {
	case MATMUL:
		if len(msg.Dims) != 3 {
			return failure(msg, errors.Newf("matmul triple needs 3 dims, got %d", len(msg.Dims)))
		}
		tr, err := d.provider.MatMulTriple(ctx, msg.Dims[0], msg.Dims[1], msg.Dims[2])
		if err != nil {
			return failure(msg, err)
		}
		resp.Shares = packTriple(tr)
	case SQUARE:
		if len(msg.Dims) != 2 {
			return failure(msg, errors.Newf("square pair needs 2 dims, got %d", len(msg.Dims)))
		}
		p, err := d.provider.SquarePair(ctx, msg.Dims[0], msg.Dims[1])
		if err != nil {
			return failure(msg, err)
		}
		resp.Shares = packPair(p)
	default:
		return failure(msg, errors.Newf("unknown protocol %d", msg.Type))
	}
	log.Lvlf3("dealer: served %s %v (id %d)", msg.Type, msg.Dims, msg.Id)
	return resp
}

func failure(msg ProtocolMsg, err error) ProtocolResp {
	return ProtocolResp{ProtoId: msg.Id, Type: FAILURE, Error: err.Error()}
}

// Close stops accepting, drops open connections and waits for the handlers.
func (d *Dealer) Close() error {
	d.mu.Lock()
	d.closed = true
	err := d.Conn.Close()
	for c := range d.conns {
		c.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
	return err
}
