// Package llp implements the lossy link protocol: an unreliable,
// unordered datagram endpoint over UDP. It may silently drop an outgoing
// datagram with a configured probability and performs no framing,
// ordering, or deduplication — reliability is the job of the layer above.
package llp

import (
	stderrors "errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Recv once the endpoint has been closed.
var ErrClosed = errors.New("llp: endpoint closed")

// MaxDatagramSize bounds a single read from the socket.
const MaxDatagramSize = 65535

// Endpoint is one end of the link. Either side of the address pair may
// be left unset: an empty local address binds an ephemeral port (the
// usual sending side), and with an empty remote address the peer is
// learned from the first datagram received (the usual receiving side).
type Endpoint struct {
	conn            *net.UDPConn
	lossProbability float64

	mu     sync.Mutex
	remote *net.UDPAddr
	rng    *rand.Rand
}

// NewEndpoint binds a UDP endpoint. lossProbability in [0,1) is the
// chance any single outgoing datagram is silently dropped.
func NewEndpoint(localAddr, remoteAddr string, lossProbability float64) (*Endpoint, error) {
	if lossProbability < 0 || lossProbability >= 1 {
		return nil, errors.Errorf("loss probability %v out of range [0,1)", lossProbability)
	}
	var local *net.UDPAddr
	var err error
	if localAddr != "" {
		local, err = net.ResolveUDPAddr("udp", localAddr)
		if err != nil {
			return nil, errors.Wrap(err, "resolve local address")
		}
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, errors.Wrap(err, "bind")
	}

	e := &Endpoint{
		conn:            conn,
		lossProbability: lossProbability,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if remoteAddr != "" {
		remote, err := net.ResolveUDPAddr("udp", remoteAddr)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "resolve remote address")
		}
		e.remote = remote
	}
	return e, nil
}

// Send transmits one datagram, best effort: a loss roll below the
// configured probability drops it without touching the socket, and the
// caller cannot tell the difference.
func (e *Endpoint) Send(b []byte) error {
	e.mu.Lock()
	remote := e.remote
	drop := e.lossProbability > 0 && e.rng.Float64() < e.lossProbability
	e.mu.Unlock()

	if remote == nil {
		return errors.New("llp: no remote address known yet")
	}
	if drop {
		return nil
	}
	_, err := e.conn.WriteToUDP(b, remote)
	return errors.Wrap(err, "udp write")
}

// Recv blocks for the next datagram. When no remote address was
// configured, the source of the first datagram becomes the peer.
func (e *Endpoint) Recv() ([]byte, error) {
	buffer := make([]byte, MaxDatagramSize)
	n, addr, err := e.conn.ReadFromUDP(buffer)
	if err != nil {
		if stderrors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, errors.Wrap(err, "udp read")
	}
	e.mu.Lock()
	if e.remote == nil {
		e.remote = addr
	}
	e.mu.Unlock()
	return buffer[:n], nil
}

// Close shuts the socket down; a blocked Recv returns ErrClosed.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// LocalAddr reports the bound address, useful when the local port was
// ephemeral.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}
