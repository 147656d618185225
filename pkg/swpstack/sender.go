package swpstack

import (
	"sync"
	"time"

	"github.com/google/netstack/tcpip/seqnum"

	"swp/pkg/swppacket"
)

// sendEntry tracks one DATA segment that has been transmitted but not yet
// cumulatively acknowledged.
type sendEntry struct {
	data    []byte
	timer   *time.Timer
	retries int
	rto     time.Duration
}

// Sender is the sending half of the sliding window protocol. It segments
// outbound data, enforces the send window, buffers unacknowledged
// segments for retransmission, and retires them as cumulative ACKs
// arrive on the link.
//
// Send may be called from the application thread while a dedicated
// goroutine consumes ACKs; the buffer and window pointers are guarded by
// a single mutex.
type Sender struct {
	link Link
	cfg  Config

	// permits holds one token per in-flight segment; sending into it
	// blocks while the window is full.
	permits chan struct{}

	mu              sync.Mutex
	idle            *sync.Cond // signaled when the buffer drains
	lastAckReceived seqnum.Value
	lastFrameSent   seqnum.Value
	buffer          map[seqnum.Value]*sendEntry
	closed          bool

	done chan struct{}
}

// NewSender starts a sender on the given link. The ACK-processing
// goroutine runs until the link is closed by its owner.
func NewSender(link Link, cfg Config) (*Sender, error) {
	cfg.fillDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Sender{
		link:    link,
		cfg:     cfg,
		permits: make(chan struct{}, cfg.SendWindowSize),
		buffer:  make(map[seqnum.Value]*sendEntry),
		done:    make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.ackLoop()
	return s, nil
}

// Send splits data into segments of at most MaxDataSize bytes and hands
// each to the link in order. It returns once every segment has been
// transmitted, not once they are acknowledged, and blocks whenever the
// send window is full.
func (s *Sender) Send(data []byte) error {
	max := s.cfg.MaxDataSize
	for i := 0; i < len(data); i += max {
		end := i + max
		if end > len(data) {
			end = len(data)
		}
		if err := s.sendSegment(data[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) sendSegment(chunk []byte) error {
	// Flow control: one window slot per in-flight segment.
	select {
	case s.permits <- struct{}{}:
	case <-s.done:
		return ErrClosed
	}

	// Assigning the sequence number, inserting the buffer entry, and
	// transmitting happen as one critical section so the ACK goroutine
	// never observes a half-applied send.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	seq := s.lastFrameSent.Add(1)
	s.lastFrameSent = seq

	data := make([]byte, len(chunk))
	copy(data, chunk)
	entry := &sendEntry{data: data, rto: s.cfg.RetransmitTimeout}
	s.buffer[seq] = entry

	pkt := swppacket.Packet{Type: swppacket.TypeData, SeqNum: uint32(seq), Data: data}
	if err := s.link.Send(swppacket.SerializePacket(&pkt)); err != nil {
		// Treat a failed transmit like a lost datagram; the timer below
		// covers it.
		s.cfg.logf("send DATA %d: %v", seq, err)
	}
	entry.timer = time.AfterFunc(entry.rto, func() { s.retransmit(seq) })
	s.mu.Unlock()

	s.cfg.logf("sent DATA %d (%d bytes)", seq, len(data))
	return nil
}

// retransmit fires when a segment's timer expires without having been
// canceled by an ACK. If the entry has already been purged the timer
// lost the race and this is a no-op.
func (s *Sender) retransmit(seq seqnum.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.buffer[seq]
	if !ok || s.closed {
		return
	}

	if s.cfg.MaxRetries > 0 && entry.retries >= s.cfg.MaxRetries {
		s.cfg.logf("abandoning DATA %d after %d retries", seq, entry.retries)
		delete(s.buffer, seq)
		s.releasePermitsLocked(1)
		return
	}
	entry.retries++

	pkt := swppacket.Packet{Type: swppacket.TypeData, SeqNum: uint32(seq), Data: entry.data}
	if err := s.link.Send(swppacket.SerializePacket(&pkt)); err != nil {
		s.cfg.logf("retransmit DATA %d: %v", seq, err)
	} else {
		s.cfg.logf("retransmitted DATA %d (attempt %d)", seq, entry.retries)
	}

	if s.cfg.BackoffFactor > 1 {
		entry.rto = time.Duration(float64(entry.rto) * s.cfg.BackoffFactor)
		if entry.rto > s.cfg.MaxRetryInterval {
			entry.rto = s.cfg.MaxRetryInterval
		}
	}
	entry.timer = time.AfterFunc(entry.rto, func() { s.retransmit(seq) })
}

// ackLoop consumes datagrams from the link, discarding anything that is
// not a decodable ACK. It exits when the link reports closed.
func (s *Sender) ackLoop() {
	for {
		raw, err := s.link.Recv()
		if err != nil {
			return
		}
		if raw == nil {
			// Nothing this iteration.
			continue
		}
		pkt, err := swppacket.DeserializePacket(raw)
		if err != nil || pkt.Type != swppacket.TypeAck {
			continue
		}
		s.handleAck(seqnum.Value(pkt.SeqNum))
	}
}

// handleAck retires every buffered segment at or below the acknowledged
// sequence number (ACKs are cumulative) and restores one window slot per
// retired segment. ACKs for sequence numbers no longer buffered are
// stale and dropped.
func (s *Sender) handleAck(ack seqnum.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffer[ack]; !ok {
		return
	}

	retired := 0
	for seq, entry := range s.buffer {
		if seq.LessThanEq(ack) {
			// Stopping the timer and removing the entry happen under the
			// same lock the timer callback takes, so a concurrent fire
			// ends up a no-op.
			entry.timer.Stop()
			delete(s.buffer, seq)
			retired++
		}
	}
	s.lastAckReceived = ack
	s.cfg.logf("ACK %d retired %d segment(s)", ack, retired)
	s.releasePermitsLocked(retired)
}

func (s *Sender) releasePermitsLocked(n int) {
	for i := 0; i < n; i++ {
		select {
		case <-s.permits:
		default:
		}
	}
	if len(s.buffer) == 0 {
		s.idle.Broadcast()
	}
}

// InFlight reports how many segments have been sent but not yet
// cumulatively acknowledged.
func (s *Sender) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Flush blocks until every sent segment has been acknowledged or
// abandoned by the retry cap, or the sender is closed.
func (s *Sender) Flush() {
	s.mu.Lock()
	for len(s.buffer) > 0 && !s.closed {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// Close tears the sender down: every outstanding retransmission timer is
// stopped, blocked Send calls return ErrClosed, and so does every later
// call. The ACK goroutine exits once the link owner closes the link.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for seq, entry := range s.buffer {
		entry.timer.Stop()
		delete(s.buffer, seq)
	}
	s.idle.Broadcast()
	s.mu.Unlock()
	close(s.done)
	return nil
}
