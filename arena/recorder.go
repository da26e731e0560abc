package arena

import (
	worklet "github.com/wippyai/wasm-worklet"
)

// Recorder wraps an Arena and records every request made through it.
// It allocates on every call and is meant for tests and diagnostics, not
// for the audio path.
type Recorder struct {
	worklet.Arena

	// OnAlloc, if set, is called after each successful allocation.
	OnAlloc func(ptr, size uint32)

	requests []uint32
	failed   int
	live     uint64
	peak     uint64
	marks    []recordedMark
}

type recordedMark struct {
	mark worklet.Mark
	live uint64
}

// NewRecorder wraps a.
func NewRecorder(a worklet.Arena) *Recorder {
	return &Recorder{Arena: a}
}

func (r *Recorder) Mark() worklet.Mark {
	m := r.Arena.Mark()
	r.marks = append(r.marks, recordedMark{mark: m, live: r.live})
	return m
}

func (r *Recorder) Alloc(size uint32) (uint32, error) {
	r.requests = append(r.requests, size)
	ptr, err := r.Arena.Alloc(size)
	if err != nil {
		r.failed++
		return 0, err
	}
	r.live += uint64(size)
	if r.live > r.peak {
		r.peak = r.live
	}
	if r.OnAlloc != nil {
		r.OnAlloc(ptr, size)
	}
	return ptr, nil
}

func (r *Recorder) Reset(m worklet.Mark) error {
	if err := r.Arena.Reset(m); err != nil {
		return err
	}
	for i := len(r.marks) - 1; i >= 0; i-- {
		if r.marks[i].mark == m {
			r.live = r.marks[i].live
			r.marks = r.marks[:i]
			break
		}
	}
	return nil
}

// Requests returns the sizes passed to Alloc, in call order.
func (r *Recorder) Requests() []uint32 { return r.requests }

// Requested returns the sum of all requested sizes.
func (r *Recorder) Requested() uint64 {
	var sum uint64
	for _, n := range r.requests {
		sum += uint64(n)
	}
	return sum
}

// Failed returns how many requests the wrapped arena refused.
func (r *Recorder) Failed() int { return r.failed }

// Live returns the requested bytes not yet released by Reset.
func (r *Recorder) Live() uint64 { return r.live }

// Peak returns the largest Live value seen.
func (r *Recorder) Peak() uint64 { return r.peak }

// Forget clears recorded requests. Live accounting is kept.
func (r *Recorder) Forget() {
	r.requests = r.requests[:0]
	r.failed = 0
}
