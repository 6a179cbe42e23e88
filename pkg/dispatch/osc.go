package dispatch

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

// AddressMouth is the OSC address every control value is sent to.
const AddressMouth = "/mouth"

// OSCSender sends control values as single-argument OSC messages over UDP.
type OSCSender struct {
	client  *osc.Client
	address string
	target  string
}

// NewOSCSender creates a sender targeting host:port.
func NewOSCSender(host string, port int) *OSCSender {
	return &OSCSender{
		client:  osc.NewClient(host, port),
		address: AddressMouth,
		target:  fmt.Sprintf("%s:%d", host, port),
	}
}

// Message builds the OSC message for a control value.
func Message(value int) *osc.Message {
	msg := osc.NewMessage(AddressMouth)
	msg.Append(int32(value))
	return msg
}

// Send transmits value as "/mouth <int32>".
func (s *OSCSender) Send(value int) error {
	if err := s.client.Send(Message(value)); err != nil {
		return fmt.Errorf("osc send to %s: %w", s.target, err)
	}
	return nil
}

// Target returns the host:port this sender writes to.
func (s *OSCSender) Target() string {
	return s.target
}

var _ Sender = (*OSCSender)(nil)
