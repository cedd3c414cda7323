package pipeline

import (
	"github.com/logicmill/armi-go/pkg/errcode"
	"github.com/logicmill/armi-go/reactor"
)

// Stack is a fully assembled Anchor -> Framer -> Driver pipeline, the
// concrete instantiation spec.md section 4.3 describes as "assembled
// bottom-up by mating adjacent surfaces."
type Stack struct {
	Anchor *Anchor
	Framer *Framer
	Driver *Driver
}

// Assemble mates an Anchor, a Framer above it, and a Driver above that,
// wiring each layer's upstream to the layer above in bottom-up order. TLS,
// when used, is applied earlier by wrapping the ByteChannel passed to
// NewAnchor (see NewTLSChannel) rather than as a step here, since it
// operates below the Anchor on the raw connection.
func Assemble(anchor *Anchor, errs *errcode.Registry) *Stack {
	framer := NewFramer(anchor)
	anchor.SetUpstream(framer)

	driver := NewDriver(framer, errs)
	framer.SetFrameUpstream(driver)

	return &Stack{Anchor: anchor, Framer: framer, Driver: driver}
}

// NewStack is a convenience constructor assembling a full stack directly
// from a channel and loop.
func NewStack(ch ByteChannel, loop *reactor.Loop, errs *errcode.Registry, opts ...AnchorOption) *Stack {
	return Assemble(NewAnchor(ch, loop, opts...), errs)
}

// Close tears the whole stack down from the top.
func (s *Stack) Close() error {
	return s.Driver.Close()
}
