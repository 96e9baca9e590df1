// Package remote distributes density evaluations across network-separated
// workers over net/rpc.  Each worker binds its own copy of the model; the
// client fans a batch out in contiguous shards and reassembles the results
// in order, satisfying the same Evaler contract as the in-process
// implementations.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"

	"github.com/Tibbersx/emcee3"
)

// ErrNoWorkers is returned when a client is constructed without any worker
// connections.
var ErrNoWorkers = errors.New("remote: no workers")

// svcName is the rpc service name shared by Serve and Client.
const svcName = "Evaler"

// Batch is the rpc request: a shard of coordinate vectors.
type Batch struct {
	Xs [][]float64
}

// Results is the rpc reply: results aligned with the request shard plus the
// failed-evaluation count.
type Results struct {
	Res   []emcee3.Result
	Nfail int
}

type service struct {
	m emcee3.Model
}

// Eval evaluates one shard.  Per-point failures become -Inf results; a
// fully-failed shard is not an rpc error because only the client can see
// whether the whole batch failed.
func (s *service) Eval(b *Batch, out *Results) error {
	res, nfail, err := emcee3.SerialEvaler{}.Eval(context.Background(), s.m, b.Xs)
	if err != nil && !errors.Is(err, emcee3.ErrAllEvalsFailed) {
		return err
	}
	out.Res, out.Nfail = res, nfail
	return nil
}

// Serve accepts connections on lis and evaluates shards against m until lis
// is closed.  Run one Serve per worker process.
func Serve(lis net.Listener, m emcee3.Model) error {
	srv := rpc.NewServer()
	if err := srv.RegisterName(svcName, &service{m: m}); err != nil {
		return err
	}
	for {
		conn, err := lis.Accept()
		if err != nil {
			return err
		}
		go srv.ServeConn(conn)
	}
}

// ServeConn evaluates shards against m over a single connection.  It is
// useful for in-process wiring and tests.
func ServeConn(conn io.ReadWriteCloser, m emcee3.Model) error {
	srv := rpc.NewServer()
	if err := srv.RegisterName(svcName, &service{m: m}); err != nil {
		return err
	}
	srv.ServeConn(conn)
	return nil
}

// Client is an Evaler backed by one or more remote workers.  It is a scoped
// resource: Close releases the worker connections.
type Client struct {
	clients []*rpc.Client
}

// Dial connects to the given worker addresses over tcp.  On any failure the
// already-opened connections are closed before returning.
func Dial(addrs ...string) (*Client, error) {
	if len(addrs) == 0 {
		return nil, ErrNoWorkers
	}
	c := &Client{}
	for _, addr := range addrs {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("remote: dialing worker %v: %w", addr, err)
		}
		c.clients = append(c.clients, rpc.NewClient(conn))
	}
	return c, nil
}

// NewClient wraps already-established worker connections.
func NewClient(conns ...io.ReadWriteCloser) (*Client, error) {
	if len(conns) == 0 {
		return nil, ErrNoWorkers
	}
	c := &Client{}
	for _, conn := range conns {
		c.clients = append(c.clients, rpc.NewClient(conn))
	}
	return c, nil
}

// Eval splits xs into contiguous shards, one per worker, dispatches them
// concurrently, and reassembles the replies positionally.  The m argument is
// ignored: remote workers bind their own model at Serve time.  On
// cancellation outstanding calls are abandoned and ctx.Err() is returned.
func (c *Client) Eval(ctx context.Context, m emcee3.Model, xs [][]float64) ([]emcee3.Result, int, error) {
	if len(xs) == 0 {
		return nil, 0, nil
	}

	nw := len(c.clients)
	shard := (len(xs) + nw - 1) / nw

	type pending struct {
		call  *rpc.Call
		reply *Results
		lo    int
	}
	var calls []pending
	for i, lo := 0, 0; lo < len(xs); i, lo = i+1, lo+shard {
		hi := lo + shard
		if hi > len(xs) {
			hi = len(xs)
		}
		reply := &Results{}
		call := c.clients[i%nw].Go(svcName+".Eval", &Batch{Xs: xs[lo:hi]}, reply, nil)
		calls = append(calls, pending{call: call, reply: reply, lo: lo})
	}

	results := make([]emcee3.Result, len(xs))
	nfail := 0
	for _, p := range calls {
		select {
		case <-p.call.Done:
			if p.call.Error != nil {
				return nil, nfail, fmt.Errorf("remote: worker shard at %v: %w", p.lo, p.call.Error)
			}
			copy(results[p.lo:], p.reply.Res)
			nfail += p.reply.Nfail
		case <-ctx.Done():
			return nil, nfail, ctx.Err()
		}
	}

	if nfail == len(xs) {
		return results, nfail, emcee3.ErrAllEvalsFailed
	}
	return results, nfail, nil
}

// Close releases all worker connections.
func (c *Client) Close() error {
	var first error
	for _, cl := range c.clients {
		if cl == nil {
			continue
		}
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ emcee3.Evaler = (*Client)(nil)
