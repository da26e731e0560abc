package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-worklet/engine"
	"github.com/wippyai/wasm-worklet/errors"
)

// Controller is the main side of the handshake. Callbacks it receives are
// resolved in its own table.
type Controller struct {
	port  *Port
	table *engine.Table
}

// NewController creates a controller posting on port and dispatching
// callbacks through table.
func NewController(port *Port, table *engine.Table) *Controller {
	return &Controller{port: port, table: table}
}

// Table returns the table callbacks are dispatched through.
func (c *Controller) Table() *engine.Table {
	return c.table
}

// Setup sends msg and waits for the result. The acknowledgment callback is
// dispatched before Setup returns. Other callbacks arriving meanwhile are
// dispatched too.
func (c *Controller) Setup(ctx context.Context, msg SetupMessage) error {
	if err := c.port.Post(ctx, msg); err != nil {
		return err
	}
	for {
		in, err := c.port.Receive(ctx)
		if err != nil {
			return err
		}
		switch m := in.(type) {
		case FailureMessage:
			return m.Err
		case CallbackMessage:
			err := c.Dispatch(ctx, m)
			if m.Callback == msg.AckCallback {
				return err
			}
			if err != nil {
				Logger().Warn("callback failed", zap.Uint32("callback", m.Callback), zap.Error(err))
			}
		default:
			return errors.Protocol(fmt.Sprintf("unexpected %T on main port", in))
		}
	}
}

// Dispatch invokes a callback locally.
func (c *Controller) Dispatch(ctx context.Context, m CallbackMessage) error {
	return invoke(ctx, c.table, m)
}

// Post asks the worklet side to invoke a callback.
func (c *Controller) Post(ctx context.Context, m CallbackMessage) error {
	return c.port.Post(ctx, m)
}

// Serve dispatches callbacks until ctx is done or the worklet side closes.
// Failures are logged and do not stop the loop.
func (c *Controller) Serve(ctx context.Context) error {
	for {
		in, err := c.port.Receive(ctx)
		if err != nil {
			if stderrors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		switch m := in.(type) {
		case CallbackMessage:
			if err := c.Dispatch(ctx, m); err != nil {
				Logger().Warn("callback failed", zap.Uint32("callback", m.Callback), zap.Error(err))
			}
		case FailureMessage:
			Logger().Error("worklet failure", zap.String("type", m.ProcessorType), zap.Error(m.Err))
		default:
			Logger().Warn("unexpected message", zap.String("type", fmt.Sprintf("%T", in)))
		}
	}
}
