package swpstack

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/smallnest/ringbuffer"
)

// StreamWriter adapts a Sender to io.Writer. Write returns once every
// segment of p has been handed to the link.
type StreamWriter struct {
	s *Sender
}

func NewStreamWriter(s *Sender) *StreamWriter {
	return &StreamWriter{s: s}
}

func (w *StreamWriter) Write(p []byte) (int, error) {
	if err := w.s.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// StreamReader adapts a Receiver to io.Reader. Chunks larger than the
// caller's buffer are parked in a ring buffer and drained across reads,
// so callers are not forced to read whole sender-side chunks at once.
type StreamReader struct {
	r  *Receiver
	rb *ringbuffer.RingBuffer
}

func NewStreamReader(r *Receiver) *StreamReader {
	return &StreamReader{
		r:  r,
		rb: ringbuffer.New(r.cfg.MaxDataSize),
	}
}

func (sr *StreamReader) Read(p []byte) (int, error) {
	for sr.rb.Length() == 0 {
		chunk, err := sr.r.Recv()
		if err != nil {
			// A closed receiver ends the stream.
			return 0, io.EOF
		}
		if len(chunk) == 0 {
			continue
		}
		if sr.rb.Free() < len(chunk) {
			return 0, errors.Errorf("chunk of %d bytes exceeds stream buffer", len(chunk))
		}
		if _, err := sr.rb.Write(chunk); err != nil {
			return 0, errors.Wrap(err, "buffer received chunk")
		}
	}
	return sr.rb.Read(p)
}

// SendFile streams the file at path through the sender and reports the
// number of bytes handed to the link.
func SendFile(s *Sender, path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open file")
	}
	defer file.Close()
	return io.Copy(NewStreamWriter(s), file)
}

// ReceiveFile drains the receiver into the file at path until the
// receiver is closed, and reports the number of bytes written.
func ReceiveFile(r *Receiver, path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrap(err, "create file")
	}
	defer file.Close()
	return io.Copy(file, NewStreamReader(r))
}
