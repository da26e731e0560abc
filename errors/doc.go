// Package errors defines the single error type shared by the bridge packages.
//
// An Error records the Phase that raised it (setup, encode, decode, invoke,
// arena, load, host, render) and a Kind. errors.Is compares those two fields
// only, so the package sentinels double as category checks:
//
//	if errors.Is(err, errors.ErrConfiguration) {
//		// the processing unit will never become ready
//	}
//
// Errors are built with the Builder or one of the shorthand constructors:
//
//	err := errors.New(errors.PhaseEncode, errors.KindInvalidInput).
//		Path("inputs", "0", "1").
//		Detail("channel has %d frames, block is %d", n, frames).
//		Build()
//
// Only configuration errors stop a processing unit. Failures on the audio
// path end up in the unit's counters and never cross the real-time boundary.
package errors
