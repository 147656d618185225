package swpstack

import (
	"time"

	"github.com/pkg/errors"

	"swp/pkg/swppacket"
)

// Protocol defaults. Window sizes and the retransmission timeout are
// fixed at construction time, not negotiated.
const (
	DefaultSendWindowSize    = 5
	DefaultRecvWindowSize    = 5
	DefaultRetransmitTimeout = 1 * time.Second
	DefaultMaxRetryInterval  = 60 * time.Second
)

// Config carries the construction-time parameters for a Sender or
// Receiver. The zero value means "use the defaults".
type Config struct {
	// MaxDataSize bounds a single DATA payload. At most
	// swppacket.MaxDataSize.
	MaxDataSize int

	// SendWindowSize (SWS) is the maximum number of unacknowledged
	// segments a Sender keeps in flight.
	SendWindowSize int

	// RecvWindowSize (RWS) is the number of segments past the last
	// in-order frame a Receiver will admit.
	RecvWindowSize int

	// RetransmitTimeout is the per-segment timer interval.
	RetransmitTimeout time.Duration

	// MaxRetries caps retransmissions per segment. 0 retries forever.
	// When the cap is hit the segment is abandoned and its window slot
	// released, so a permanently lossy link cannot pin resources.
	MaxRetries int

	// BackoffFactor multiplies the retransmit interval after each retry,
	// capped at MaxRetryInterval. 1.0 keeps the interval fixed.
	BackoffFactor float64

	// MaxRetryInterval caps the backed-off retransmit interval.
	MaxRetryInterval time.Duration

	// EagerAck makes the Receiver echo the current cumulative frame
	// before processing each accepted segment, in addition to the ACK
	// sent after. Only needed for wire compatibility with receivers that
	// expect the double acknowledgment.
	EagerAck bool

	// Logf, when set, receives protocol debug lines. Nil disables all
	// logging.
	Logf func(format string, args ...interface{})
}

// DefaultConfig returns the reference protocol parameters.
func DefaultConfig() Config {
	return Config{
		MaxDataSize:       swppacket.MaxDataSize,
		SendWindowSize:    DefaultSendWindowSize,
		RecvWindowSize:    DefaultRecvWindowSize,
		RetransmitTimeout: DefaultRetransmitTimeout,
		BackoffFactor:     1.0,
		MaxRetryInterval:  DefaultMaxRetryInterval,
	}
}

func (c *Config) fillDefaults() {
	if c.MaxDataSize == 0 {
		c.MaxDataSize = swppacket.MaxDataSize
	}
	if c.SendWindowSize == 0 {
		c.SendWindowSize = DefaultSendWindowSize
	}
	if c.RecvWindowSize == 0 {
		c.RecvWindowSize = DefaultRecvWindowSize
	}
	if c.RetransmitTimeout == 0 {
		c.RetransmitTimeout = DefaultRetransmitTimeout
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 1.0
	}
	if c.MaxRetryInterval == 0 {
		c.MaxRetryInterval = DefaultMaxRetryInterval
	}
}

func (c *Config) validate() error {
	if c.MaxDataSize < 0 || c.MaxDataSize > swppacket.MaxDataSize {
		return errors.Errorf("max data size %d out of range (1..%d)", c.MaxDataSize, swppacket.MaxDataSize)
	}
	if c.SendWindowSize < 0 {
		return errors.Errorf("send window size %d is negative", c.SendWindowSize)
	}
	if c.RecvWindowSize < 0 {
		return errors.Errorf("recv window size %d is negative", c.RecvWindowSize)
	}
	if c.RetransmitTimeout < 0 {
		return errors.Errorf("retransmit timeout %v is negative", c.RetransmitTimeout)
	}
	if c.MaxRetries < 0 {
		return errors.Errorf("max retries %d is negative", c.MaxRetries)
	}
	if c.BackoffFactor != 0 && c.BackoffFactor < 1 {
		return errors.Errorf("backoff factor %v must be at least 1", c.BackoffFactor)
	}
	return nil
}

func (c *Config) logf(format string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}
