package swpstack

import "github.com/pkg/errors"

// ErrClosed is returned once a Sender or Receiver has been torn down.
var ErrClosed = errors.New("swp: endpoint closed")

// Link is the unreliable datagram link SWP rides on. It transmits opaque
// byte blobs between two endpoints and may silently drop any of them; it
// performs no framing, ordering, or deduplication.
//
// Send is best effort. Recv blocks for the next datagram; it may return
// (nil, nil) when the link has nothing to hand over this iteration, and
// an error once the link has been closed by its owner. The SWP core does
// not own the link.
type Link interface {
	Send(b []byte) error
	Recv() ([]byte, error)
}
