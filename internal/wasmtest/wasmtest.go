// Package wasmtest assembles tiny core wasm modules for tests.
//
// Only what the bridge tests need is supported: function imports, one
// funcref table, one memory, i32 globals, exports, active element segments
// and raw instruction bodies.
package wasmtest

// Value types.
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
	F32 byte = 0x7D
	F64 byte = 0x7C
)

const (
	exportFunc   byte = 0x00
	exportMemory byte = 0x02
)

// FuncType is a function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

// Import is an imported function.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Local is a run of Count locals of one type.
type Local struct {
	Count uint32
	Type  byte
}

// Func is a defined function. Body excludes the trailing end opcode.
type Func struct {
	Export string
	Type   uint32
	Locals []Local
	Body   []byte
}

// Global is a mutable or immutable i32 global.
type Global struct {
	Init    int32
	Mutable bool
}

// Module describes a module to assemble. Function indices count imports
// first, then Funcs in order.
type Module struct {
	Types        []FuncType
	Imports      []Import
	Funcs        []Func
	Globals      []Global
	Table        []uint32
	MemoryPages  uint32
	MemoryExport string
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.Types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.Types)))
		for _, t := range m.Types {
			s = append(s, 0x60)
			s = appendU32(s, uint32(len(t.Params)))
			s = append(s, t.Params...)
			s = appendU32(s, uint32(len(t.Results)))
			s = append(s, t.Results...)
		}
		out = appendSection(out, 1, s)
	}

	if len(m.Imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			s = appendName(s, imp.Module)
			s = appendName(s, imp.Name)
			s = append(s, exportFunc)
			s = appendU32(s, imp.Type)
		}
		out = appendSection(out, 2, s)
	}

	if len(m.Funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			s = appendU32(s, f.Type)
		}
		out = appendSection(out, 3, s)
	}

	if len(m.Table) > 0 {
		s := []byte{0x01, 0x70, 0x00}
		s = appendU32(s, uint32(len(m.Table)))
		out = appendSection(out, 4, s)
	}

	if m.MemoryPages > 0 {
		s := []byte{0x01, 0x00}
		s = appendU32(s, m.MemoryPages)
		out = appendSection(out, 5, s)
	}

	if len(m.Globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.Globals)))
		for _, g := range m.Globals {
			mut := byte(0)
			if g.Mutable {
				mut = 1
			}
			s = append(s, I32, mut)
			s = append(s, I32Const(g.Init)...)
			s = append(s, 0x0B)
		}
		out = appendSection(out, 6, s)
	}

	var exports []byte
	var exportCount uint32
	base := uint32(len(m.Imports))
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		exports = appendName(exports, f.Export)
		exports = append(exports, exportFunc)
		exports = appendU32(exports, base+uint32(i))
		exportCount++
	}
	if m.MemoryPages > 0 && m.MemoryExport != "" {
		exports = appendName(exports, m.MemoryExport)
		exports = append(exports, exportMemory, 0x00)
		exportCount++
	}
	if exportCount > 0 {
		s := appendU32(nil, exportCount)
		out = appendSection(out, 7, append(s, exports...))
	}

	if len(m.Table) > 0 {
		s := []byte{0x01, 0x00}
		s = append(s, I32Const(0)...)
		s = append(s, 0x0B)
		s = appendU32(s, uint32(len(m.Table)))
		for _, idx := range m.Table {
			s = appendU32(s, idx)
		}
		out = appendSection(out, 9, s)
	}

	if len(m.Funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			var body []byte
			body = appendU32(body, uint32(len(f.Locals)))
			for _, l := range f.Locals {
				body = appendU32(body, l.Count)
				body = append(body, l.Type)
			}
			body = append(body, f.Body...)
			body = append(body, 0x0B)
			s = appendU32(s, uint32(len(body)))
			s = append(s, body...)
		}
		out = appendSection(out, 10, s)
	}

	return out
}

func appendSection(out []byte, id byte, data []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(data)))
	return append(out, data...)
}

func appendName(out []byte, name string) []byte {
	out = appendU32(out, uint32(len(name)))
	return append(out, name...)
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func appendS32(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// Code concatenates instruction sequences.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func LocalGet(i uint32) []byte  { return appendU32([]byte{0x20}, i) }
func LocalSet(i uint32) []byte  { return appendU32([]byte{0x21}, i) }
func LocalTee(i uint32) []byte  { return appendU32([]byte{0x22}, i) }
func GlobalGet(i uint32) []byte { return appendU32([]byte{0x23}, i) }
func GlobalSet(i uint32) []byte { return appendU32([]byte{0x24}, i) }
func I32Const(v int32) []byte   { return appendS32([]byte{0x41}, v) }
func Call(f uint32) []byte      { return appendU32([]byte{0x10}, f) }

// CallIndirect calls through table 0 with the given type index.
func CallIndirect(typeIdx uint32) []byte {
	return append(appendU32([]byte{0x11}, typeIdx), 0x00)
}

func memarg(op byte, offset uint32) []byte {
	return appendU32([]byte{op, 0x02}, offset)
}

func I32Load(offset uint32) []byte  { return memarg(0x28, offset) }
func F32Load(offset uint32) []byte  { return memarg(0x2A, offset) }
func I32Store(offset uint32) []byte { return memarg(0x36, offset) }
func F32Store(offset uint32) []byte { return memarg(0x38, offset) }

var (
	I32Add     = []byte{0x6A}
	I32Sub     = []byte{0x6B}
	I32Mul     = []byte{0x6C}
	I32And     = []byte{0x71}
	I32Shl     = []byte{0x74}
	I32GeU     = []byte{0x4F}
	F32Mul     = []byte{0x94}
	Drop       = []byte{0x1A}
	End        = []byte{0x0B}
	Block      = []byte{0x02, 0x40}
	Loop       = []byte{0x03, 0x40}
	MemoryCopy = []byte{0xFC, 0x0A, 0x00, 0x00}
)

// Br branches to the enclosing label depth.
func Br(depth uint32) []byte { return appendU32([]byte{0x0C}, depth) }

// BrIf branches to depth when the top of stack is non-zero.
func BrIf(depth uint32) []byte { return appendU32([]byte{0x0D}, depth) }

// MemoryOnly is a module with one page of memory exported as "memory".
func MemoryOnly() []byte {
	m := &Module{MemoryPages: 1, MemoryExport: "memory"}
	return m.Encode()
}

// Function table handles of the stub engine.
const (
	HandleSilent      = 0
	HandlePassthrough = 1
	HandleGain        = 2
	HandleAck         = 3
)

// AckMailbox is where the stub ack callback stores its three arguments,
// followed by a call counter at AckMailbox+12.
const AckMailbox = 0

// StubStackTop is the initial value of the stub engine's stack pointer.
const StubStackTop = 2 * 65536

// StubEngine assembles an engine module with two pages of exported memory
// and these exports:
//
//	silent, passthrough, gain   (7 x i32) -> i32 processing entry points
//	ack                         (3 x i32) -> () stores args at AckMailbox
//	dynCall_iiiiiiii            table trampoline for processing entries
//	dynCall_viii                table trampoline for ack callbacks
//	stackSave, stackRestore, stackAlloc
//	crash                       calls the imported env.abort
//
// passthrough copies input group 0 into output group 0. gain writes input
// group 0 scaled by the first value of parameter 0 into output group 0.
// silent returns 0 without touching memory.
func StubEngine() []byte {
	procParams := []byte{I32, I32, I32, I32, I32, I32, I32}

	m := &Module{
		// process, ack, dyn process, dyn ack, stackSave, stackRestore,
		// stackAlloc, abort
		Types: []FuncType{
			{Params: procParams, Results: []byte{I32}},
			{Params: []byte{I32, I32, I32}},
			{Params: append([]byte{I32}, procParams...), Results: []byte{I32}},
			{Params: []byte{I32, I32, I32, I32}},
			{Results: []byte{I32}},
			{Params: []byte{I32}},
			{Params: []byte{I32}, Results: []byte{I32}},
			{},
		},
		Imports: []Import{{Module: "env", Name: "abort", Type: 7}},
		Funcs: []Func{
			{Export: "silent", Type: 0, Body: I32Const(0)},
			{Export: "passthrough", Type: 0, Body: passthroughBody()},
			{Export: "gain", Type: 0, Locals: []Local{{Count: 4, Type: I32}, {Count: 1, Type: F32}}, Body: gainBody()},
			{Export: "ack", Type: 1, Body: ackBody()},
			{Export: "dynCall_iiiiiiii", Type: 2, Body: Code(
				LocalGet(1), LocalGet(2), LocalGet(3), LocalGet(4),
				LocalGet(5), LocalGet(6), LocalGet(7), LocalGet(0),
				CallIndirect(0),
			)},
			{Export: "dynCall_viii", Type: 3, Body: Code(
				LocalGet(1), LocalGet(2), LocalGet(3), LocalGet(0),
				CallIndirect(1),
			)},
			{Export: "stackSave", Type: 4, Body: GlobalGet(0)},
			{Export: "stackRestore", Type: 5, Body: Code(LocalGet(0), GlobalSet(0))},
			{Export: "stackAlloc", Type: 6, Locals: []Local{{Count: 1, Type: I32}}, Body: Code(
				GlobalGet(0), LocalGet(0), I32Sub,
				I32Const(-16), I32And,
				LocalTee(1), GlobalSet(0),
				LocalGet(1),
			)},
			{Export: "crash", Type: 0, Body: Code(Call(0), I32Const(1))},
		},
		Globals:      []Global{{Init: StubStackTop, Mutable: true}},
		Table:        []uint32{1, 2, 3, 4},
		MemoryPages:  2,
		MemoryExport: "memory",
	}
	return m.Encode()
}

func passthroughBody() []byte {
	return Code(
		LocalGet(3), I32Load(8), // dst: outputs[0].data_offset
		LocalGet(1), I32Load(8), // src: inputs[0].data_offset
		LocalGet(1), I32Load(0),
		LocalGet(1), I32Load(4),
		I32Mul, I32Const(2), I32Shl, // channels * frames * 4
		MemoryCopy,
		I32Const(1),
	)
}

func gainBody() []byte {
	const (
		i   = 7
		n   = 8
		src = 9
		dst = 10
		g   = 11
	)
	return Code(
		LocalGet(1), I32Load(0), LocalGet(1), I32Load(4), I32Mul, LocalSet(n),
		LocalGet(1), I32Load(8), LocalSet(src),
		LocalGet(3), I32Load(8), LocalSet(dst),
		LocalGet(5), I32Load(4), F32Load(0), LocalSet(g),
		Block, Loop,
		LocalGet(i), LocalGet(n), I32GeU, BrIf(1),
		LocalGet(dst), LocalGet(i), I32Const(2), I32Shl, I32Add,
		LocalGet(src), LocalGet(i), I32Const(2), I32Shl, I32Add, F32Load(0),
		LocalGet(g), F32Mul,
		F32Store(0),
		LocalGet(i), I32Const(1), I32Add, LocalSet(i),
		Br(0),
		End, End,
		I32Const(1),
	)
}

func ackBody() []byte {
	return Code(
		I32Const(AckMailbox), LocalGet(0), I32Store(0),
		I32Const(AckMailbox), LocalGet(1), I32Store(4),
		I32Const(AckMailbox), LocalGet(2), I32Store(8),
		I32Const(AckMailbox),
		I32Const(AckMailbox), I32Load(12), I32Const(1), I32Add,
		I32Store(12),
	)
}
