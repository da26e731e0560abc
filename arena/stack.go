package arena

import (
	"context"

	worklet "github.com/wippyai/wasm-worklet"
	"github.com/wippyai/wasm-worklet/errors"
)

// Emscripten stack helper export names.
const (
	SaveExport    = "stackSave"
	AllocExport   = "stackAlloc"
	RestoreExport = "stackRestore"
)

// StackFuncs are the guest stack helpers.
//
//	stackSave() -> i32
//	stackAlloc(size i32) -> i32
//	stackRestore(sp i32)
type StackFuncs struct {
	Save    worklet.EntryPoint
	Alloc   worklet.EntryPoint
	Restore worklet.EntryPoint
}

// Stack allocates from the engine's own downward-growing shadow stack.
// Mark saves the guest stack pointer, Alloc moves it down and Reset
// restores it, so scratch memory lives where the engine's compiler already
// reserved room for it.
type Stack struct {
	ctx   context.Context
	fns   StackFuncs
	id    uint64
	start uint32
	limit uint32
	sp    uint32
	high  uint32
	err   error
	buf   []uint64
}

var _ worklet.Arena = (*Stack)(nil)

// NewStack binds fns and records the current guest stack pointer as the
// arena origin. limit is the lowest stack pointer allocations may reach;
// zero leaves overflow detection to the guest.
//
// Helpers run with ctx stripped of its cancellation until UseContext
// supplies the context of the call in progress.
func NewStack(ctx context.Context, fns StackFuncs, limit uint32) (*Stack, error) {
	if fns.Save == nil || fns.Alloc == nil || fns.Restore == nil {
		return nil, errors.New(errors.PhaseArena, errors.KindNotFound).
			Detail("stack helpers %s/%s/%s are required", SaveExport, AllocExport, RestoreExport).
			Build()
	}
	s := &Stack{
		ctx:   context.WithoutCancel(ctx),
		fns:   fns,
		id:    nextID(),
		limit: limit,
		buf:   make([]uint64, 1),
	}
	sp, err := s.call(fns.Save, 0)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseArena, errors.KindInvalidData, err, SaveExport+" failed")
	}
	if limit > sp {
		return nil, errors.New(errors.PhaseArena, errors.KindInvalidInput).
			Detail("stack limit 0x%x above stack pointer 0x%x", limit, sp).
			Build()
	}
	s.start, s.sp = sp, sp
	return s, nil
}

// UseContext sets the context the stack helpers run with from now on.
// Processors call it at the start of every block.
func (s *Stack) UseContext(ctx context.Context) {
	s.ctx = ctx
}

func (s *Stack) call(fn worklet.EntryPoint, arg uint32) (uint32, error) {
	s.buf[0] = uint64(arg)
	if err := fn.CallWithStack(s.ctx, s.buf); err != nil {
		return 0, err
	}
	return uint32(s.buf[0]), nil
}

// Mark saves the guest stack pointer.
func (s *Stack) Mark() worklet.Mark {
	sp, err := s.call(s.fns.Save, 0)
	if err != nil {
		s.err = err
		return worklet.Mark{Top: s.sp, Owner: s.id}
	}
	s.sp = sp
	return worklet.Mark{Top: sp, Owner: s.id}
}

// Alloc moves the guest stack pointer down by size rounded to Align.
// The guest may round further to its own stack alignment.
func (s *Stack) Alloc(size uint32) (uint32, error) {
	if s.err != nil {
		err := s.err
		s.err = nil
		return 0, errors.AllocationFailed(errors.PhaseArena, size, err)
	}
	n, ok := alignUp(size)
	if !ok || (s.limit > 0 && n > s.sp-s.limit) {
		return 0, errors.ArenaExhausted(size, s.sp-s.limit)
	}
	ptr, err := s.call(s.fns.Alloc, n)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseArena, size, err)
	}
	if ptr > s.sp || (s.limit > 0 && ptr < s.limit) {
		return 0, errors.New(errors.PhaseArena, errors.KindAllocation).
			Detail("%s returned 0x%x outside [0x%x, 0x%x]", AllocExport, ptr, s.limit, s.sp).
			Build()
	}
	s.sp = ptr
	if used := s.start - ptr; used > s.high {
		s.high = used
	}
	return ptr, nil
}

// Reset restores the guest stack pointer saved by m.
func (s *Stack) Reset(m worklet.Mark) error {
	if m.Owner != s.id {
		return errors.New(errors.PhaseArena, errors.KindInvalidInput).
			Detail("mark belongs to another arena").
			Build()
	}
	if m.Top < s.sp || m.Top > s.start {
		return errors.New(errors.PhaseArena, errors.KindInvalidInput).
			Detail("mark sp 0x%x outside live stack [0x%x, 0x%x]", m.Top, s.sp, s.start).
			Build()
	}
	if _, err := s.call(s.fns.Restore, m.Top); err != nil {
		return errors.Wrap(errors.PhaseArena, errors.KindInvalidData, err, RestoreExport+" failed")
	}
	s.sp = m.Top
	return nil
}

// Used returns the bytes between the origin and the current stack pointer.
func (s *Stack) Used() uint32 { return s.start - s.sp }

// HighWater returns the largest Used value seen.
func (s *Stack) HighWater() uint32 { return s.high }

// Capacity returns the room between the origin and the limit, or zero when
// no limit was given.
func (s *Stack) Capacity() uint32 {
	if s.limit == 0 {
		return 0
	}
	return s.start - s.limit
}
