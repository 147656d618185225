package swpstack

import (
	"sync"

	"github.com/google/btree"
	"github.com/google/netstack/tcpip/seqnum"

	"swp/pkg/swppacket"
)

// recvSegment is one out-of-order payload parked in the reorder buffer.
type recvSegment struct {
	seq  seqnum.Value
	data []byte
}

// Receiver is the receiving half of the sliding window protocol. A
// single goroutine consumes DATA segments from the link, reorders
// out-of-order arrivals, delivers contiguous payloads to the application
// in ascending sequence order, and emits cumulative ACKs.
type Receiver struct {
	link Link
	cfg  Config

	// Receive-loop private state. LAF is always lastFrameReceived + RWS.
	lastFrameReceived seqnum.Value
	reorder           *btree.BTreeG[recvSegment]

	ready     *deliveryQueue
	done      chan struct{}
	closeOnce sync.Once
}

// NewReceiver starts a receiver on the given link.
func NewReceiver(link Link, cfg Config) (*Receiver, error) {
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Receiver{
		link: link,
		cfg:  cfg,
		reorder: btree.NewG(2, func(a, b recvSegment) bool {
			return a.seq.LessThan(b.seq)
		}),
		ready: newDeliveryQueue(),
		done:  make(chan struct{}),
	}
	go r.recvLoop()
	return r, nil
}

// Recv blocks until the next in-order chunk is available and returns it.
// One call returns exactly one sender-side chunk. After Close, buffered
// chunks drain first and then Recv returns ErrClosed.
func (r *Receiver) Recv() ([]byte, error) {
	return r.ready.Pop()
}

func (r *Receiver) recvLoop() {
	for {
		select {
		case <-r.done:
			return
		default:
		}
		raw, err := r.link.Recv()
		if err != nil {
			r.ready.Close()
			return
		}
		if raw == nil {
			// Nothing this iteration.
			continue
		}
		pkt, err := swppacket.DeserializePacket(raw)
		if err != nil || pkt.Type != swppacket.TypeData {
			continue
		}
		r.handleData(pkt)
	}
}

func (r *Receiver) handleData(pkt *swppacket.Packet) {
	seq := seqnum.Value(pkt.SeqNum)
	rws := seqnum.Size(r.cfg.RecvWindowSize)

	// Admissible sequence numbers are (LFR, LFR+RWS]: anything at or
	// below LFR is a duplicate, anything above LAF is too far ahead.
	// Both are dropped silently, without acknowledgment.
	if !seq.InWindow(r.lastFrameReceived.Add(1), rws) {
		r.cfg.logf("dropped DATA %d outside window (LFR=%d)", seq, r.lastFrameReceived)
		return
	}

	if r.cfg.EagerAck {
		// Echo the pre-update cumulative mark on every accepted arrival.
		r.sendAck(r.lastFrameReceived)
	}

	r.reorder.ReplaceOrInsert(recvSegment{seq: seq, data: pkt.Data})

	// Advance the contiguous high-water mark through the reorder buffer.
	ackTo := r.lastFrameReceived
	for r.reorder.Has(recvSegment{seq: ackTo.Add(1)}) {
		ackTo = ackTo.Add(1)
	}

	// Hand the contiguous prefix to the application in ascending
	// sequence order, whatever order the segments arrived in.
	for {
		min, ok := r.reorder.Min()
		if !ok || !min.seq.LessThanEq(ackTo) {
			break
		}
		r.reorder.DeleteMin()
		r.ready.Push(min.data)
	}

	r.lastFrameReceived = ackTo
	r.sendAck(ackTo)
}

func (r *Receiver) sendAck(seq seqnum.Value) {
	pkt := swppacket.Packet{Type: swppacket.TypeAck, SeqNum: uint32(seq)}
	if err := r.link.Send(swppacket.SerializePacket(&pkt)); err != nil {
		// A lost ACK is recovered by the sender's retransmission.
		r.cfg.logf("send ACK %d: %v", seq, err)
	}
}

// Close stops the receive loop and closes the delivery queue. Chunks
// already delivered remain readable until the queue drains.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.ready.Close()
	})
	return nil
}
