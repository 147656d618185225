package swpstack

import (
	"sync"
	"testing"
	"time"

	"swp/pkg/swppacket"
)

// memLink is one end of an in-memory datagram link. Datagrams sent by
// one end arrive at the other unless the drop hook discards them; a full
// link loses datagrams silently, like UDP.
type memLink struct {
	out chan []byte
	in  chan []byte

	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	drop func(b []byte) bool
}

func newLinkPair() (*memLink, *memLink) {
	ab := make(chan []byte, 1024)
	ba := make(chan []byte, 1024)
	a := &memLink{out: ab, in: ba, done: make(chan struct{})}
	b := &memLink{out: ba, in: ab, done: make(chan struct{})}
	return a, b
}

func (l *memLink) setDrop(f func(b []byte) bool) {
	l.mu.Lock()
	l.drop = f
	l.mu.Unlock()
}

func (l *memLink) Send(b []byte) error {
	l.mu.Lock()
	drop := l.drop != nil && l.drop(b)
	l.mu.Unlock()
	if drop {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	select {
	case l.out <- c:
	default:
	}
	return nil
}

func (l *memLink) Recv() ([]byte, error) {
	select {
	case b := <-l.in:
		return b, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *memLink) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// recvDatagram reads the next raw datagram arriving at l, failing the
// test after the timeout.
func recvDatagram(t *testing.T, l *memLink, timeout time.Duration) []byte {
	t.Helper()
	select {
	case b := <-l.in:
		return b
	case <-time.After(timeout):
		t.Fatalf("no datagram within %v", timeout)
		return nil
	}
}

// expectNoDatagram asserts nothing arrives at l for the full duration.
func expectNoDatagram(t *testing.T, l *memLink, d time.Duration) {
	t.Helper()
	select {
	case b := <-l.in:
		pkt, err := swppacket.DeserializePacket(b)
		if err != nil {
			t.Fatalf("unexpected datagram (%d bytes)", len(b))
		}
		t.Fatalf("unexpected %v", pkt)
	case <-time.After(d):
	}
}

func mustDecode(t *testing.T, raw []byte) *swppacket.Packet {
	t.Helper()
	pkt, err := swppacket.DeserializePacket(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return pkt
}

// sendData injects a DATA segment into the peer side of the link.
func sendData(t *testing.T, l *memLink, seq uint32, payload []byte) {
	t.Helper()
	pkt := swppacket.Packet{Type: swppacket.TypeData, SeqNum: seq, Data: payload}
	if err := l.Send(swppacket.SerializePacket(&pkt)); err != nil {
		t.Fatalf("send DATA %d: %v", seq, err)
	}
}

// sendAckRaw injects an ACK into the peer side of the link.
func sendAckRaw(t *testing.T, l *memLink, seq uint32) {
	t.Helper()
	pkt := swppacket.Packet{Type: swppacket.TypeAck, SeqNum: seq}
	if err := l.Send(swppacket.SerializePacket(&pkt)); err != nil {
		t.Fatalf("send ACK %d: %v", seq, err)
	}
}

// expectAck asserts the next datagram at l is an ACK for seq.
func expectAck(t *testing.T, l *memLink, seq uint32) {
	t.Helper()
	pkt := mustDecode(t, recvDatagram(t, l, time.Second))
	if pkt.Type != swppacket.TypeAck {
		t.Fatalf("expected ACK, got %v", pkt)
	}
	if pkt.SeqNum != seq {
		t.Fatalf("expected ACK %d, got ACK %d", seq, pkt.SeqNum)
	}
}

// recvChunk pops the next delivered chunk, failing after the timeout.
func recvChunk(t *testing.T, r *Receiver, timeout time.Duration) []byte {
	t.Helper()
	type result struct {
		chunk []byte
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		chunk, err := r.Recv()
		ch <- result{chunk, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("recv: %v", res.err)
		}
		return res.chunk
	case <-time.After(timeout):
		t.Fatalf("no chunk within %v", timeout)
		return nil
	}
}
