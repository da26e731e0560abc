package bootstrap

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-worklet/errors"
	"github.com/wippyai/wasm-worklet/processor"
)

// Message is anything carried by a Port.
type Message interface {
	message()
}

// SetupMessage registers a processor type and fixes its operating
// parameters. It is sent once per unit, before any audio is processed.
type SetupMessage struct {
	ProcessorType  string
	Params         processor.ParamSet
	EntryPoint     uint32
	UserData       uint32
	ChannelHint    uint32
	AckCallback    uint32
	FramesPerBlock uint32
}

// CallbackMessage asks the receiver to invoke the function with handle
// Callback, passing Args as u32 arguments.
type CallbackMessage struct {
	Callback uint32
	Args     []uint64
}

// FailureMessage reports a setup that did not reach Ready.
type FailureMessage struct {
	ProcessorType string
	Err           error
}

func (SetupMessage) message()    {}
func (CallbackMessage) message() {}
func (FailureMessage) message()  {}

// ErrClosed is returned by Port operations after the peer closed.
var ErrClosed = errors.New(errors.PhaseSetup, errors.KindProtocol).
	Detail("port closed").
	Build()

// Port is one end of an in-process message channel pair.
type Port struct {
	in        <-chan Message
	out       chan<- Message
	closeOnce sync.Once
	closeOut  func()
}

// NewPortPair returns two connected ports, each with a send buffer of size
// buffer. Messages posted on one are received on the other.
func NewPortPair(buffer int) (*Port, *Port) {
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)
	a := &Port{in: ba, out: ab, closeOut: func() { close(ab) }}
	b := &Port{in: ab, out: ba, closeOut: func() { close(ba) }}
	return a, b
}

// Post sends msg to the peer.
func (p *Port) Post(ctx context.Context, msg Message) error {
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next message from the peer.
func (p *Port) Receive(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, ErrClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops sending. The peer's Receive returns ErrClosed once buffered
// messages are drained. Post after Close panics.
func (p *Port) Close() {
	p.closeOnce.Do(p.closeOut)
}
