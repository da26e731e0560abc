// Package bootstrap implements the one-time setup handshake between the
// main side, which owns the engine's configuration, and the worklet side,
// which runs processing units.
//
// The main side sends a SetupMessage naming the processor type, its
// parameter set, the entry point handle, a user context handle, a channel
// count hint and the handle of an acknowledgment callback. The worklet side
// resolves the entry point, registers the type, moves to StateReady and
// posts back a CallbackMessage asking for ack(channels, 1, user-data).
//
//	workletPort, mainPort := bootstrap.NewPortPair(4)
//	boot := bootstrap.New(inst, workletPort, bootstrap.Options{})
//	go boot.Serve(ctx)
//
//	ctl := bootstrap.NewController(mainPort, inst.Table())
//	err := ctl.Setup(ctx, bootstrap.SetupMessage{...})
//
// A first setup that fails moves the worklet side to StateFailed. The
// cause is reported on Errors and returned from Controller.Setup.
// StateReady and StateFailed are terminal: a later setup is refused with a
// protocol error and changes nothing. Processors created before Ready, or
// after a failure, produce no audio.
package bootstrap
