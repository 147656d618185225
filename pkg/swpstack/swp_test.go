package swpstack

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"swp/pkg/swppacket"
)

// lossyDrop returns a drop hook that discards datagrams with probability
// p, deterministically seeded. The hook is shared across goroutines.
func lossyDrop(seed int64, p float64) func([]byte) bool {
	rng := rand.New(rand.NewSource(seed))
	var mu sync.Mutex
	return func([]byte) bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < p
	}
}

func TestEndToEndInOrder(t *testing.T) {
	a, b := newLinkPair()
	defer a.Close()
	defer b.Close()

	cfg := DefaultConfig()
	s, err := NewSender(a, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer s.Close()
	r, err := NewReceiver(b, cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer r.Close()

	// 3000 bytes split as 1400/1400/200: one recv per segment,
	// concatenating back to the original.
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	if err := s.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got []byte
	for _, want := range []int{1400, 1400, 200} {
		chunk := recvChunk(t, r, time.Second)
		if len(chunk) != want {
			t.Fatalf("chunk of %d bytes, want %d", len(chunk), want)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("received stream differs from sent payload")
	}

	s.Flush()
	if n := s.InFlight(); n != 0 {
		t.Fatalf("in flight = %d after delivery", n)
	}
}

func TestEndToEndDropSingleSegment(t *testing.T) {
	a, b := newLinkPair()
	defer a.Close()
	defer b.Close()

	// Drop the DATA segment with seq 2 exactly once; the retransmission
	// timer must recover it.
	var mu sync.Mutex
	dropped := false
	a.setDrop(func(raw []byte) bool {
		pkt, err := swppacket.DeserializePacket(raw)
		if err != nil || pkt.Type != swppacket.TypeData || pkt.SeqNum != 2 {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if dropped {
			return false
		}
		dropped = true
		return true
	})

	cfg := DefaultConfig()
	cfg.RetransmitTimeout = 30 * time.Millisecond
	s, err := NewSender(a, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer s.Close()
	r, err := NewReceiver(b, cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer r.Close()

	payload := bytes.Repeat([]byte{0x5a}, 3000)
	if err := s.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got []byte
	for i := 0; i < 3; i++ {
		got = append(got, recvChunk(t, r, 2*time.Second)...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("received stream differs from sent payload")
	}
	mu.Lock()
	defer mu.Unlock()
	if !dropped {
		t.Fatal("the loss hook never fired")
	}
}

func TestEndToEndLossyLink(t *testing.T) {
	a, b := newLinkPair()
	defer a.Close()
	defer b.Close()

	// 30% loss in both directions; retransmission must still deliver
	// everything exactly once and in order.
	a.setDrop(lossyDrop(1, 0.3))
	b.setDrop(lossyDrop(2, 0.3))

	cfg := DefaultConfig()
	cfg.MaxDataSize = 64
	cfg.RetransmitTimeout = 20 * time.Millisecond
	s, err := NewSender(a, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer s.Close()
	r, err := NewReceiver(b, cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	defer r.Close()

	payload := make([]byte, 8*1024)
	rng := rand.New(rand.NewSource(99))
	rng.Read(payload)

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- s.Send(payload)
	}()

	var got []byte
	for len(got) < len(payload) {
		got = append(got, recvChunk(t, r, 10*time.Second)...)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("send: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("received stream differs from sent payload")
	}
}

func TestConfigValidation(t *testing.T) {
	a, b := newLinkPair()
	defer a.Close()
	defer b.Close()

	bad := []Config{
		{MaxDataSize: swppacket.MaxDataSize + 1},
		{MaxDataSize: -1},
		{SendWindowSize: -1},
		{RecvWindowSize: -2},
		{RetransmitTimeout: -time.Second},
		{MaxRetries: -1},
		{BackoffFactor: 0.5},
	}
	for i, cfg := range bad {
		if _, err := NewSender(a, cfg); err == nil {
			t.Errorf("config %d: sender accepted invalid config", i)
		}
		if _, err := NewReceiver(b, cfg); err == nil {
			t.Errorf("config %d: receiver accepted invalid config", i)
		}
	}

	// The zero config means defaults.
	s, err := NewSender(a, Config{})
	if err != nil {
		t.Fatalf("zero config: %v", err)
	}
	defer s.Close()
	if s.cfg.MaxDataSize != swppacket.MaxDataSize ||
		s.cfg.SendWindowSize != DefaultSendWindowSize ||
		s.cfg.RetransmitTimeout != DefaultRetransmitTimeout {
		t.Fatalf("defaults not applied: %+v", s.cfg)
	}
}
