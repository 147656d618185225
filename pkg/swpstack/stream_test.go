package swpstack

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestStreamRoundTrip(t *testing.T) {
	a, b := newLinkPair()
	defer a.Close()
	defer b.Close()

	cfg := DefaultConfig()
	cfg.MaxDataSize = 8
	s, err := NewSender(a, cfg)
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	defer s.Close()
	r, err := NewReceiver(b, cfg)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	message := []byte("the quick brown fox jumps over the lazy dog")
	if n, err := NewStreamWriter(s).Write(message); err != nil || n != len(message) {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	s.Flush()
	r.Close() // end of stream once buffered chunks drain

	// Read through a buffer smaller than the chunk size to exercise the
	// partial-chunk path.
	reader := NewStreamReader(r)
	var got bytes.Buffer
	buf := make([]byte, 3)
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("stream read did not finish")
		}
		n, err := reader.Read(buf)
		got.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if !bytes.Equal(got.Bytes(), message) {
		t.Fatalf("stream = %q, want %q", got.Bytes(), message)
	}
}
