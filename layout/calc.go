package layout

import (
	"fmt"

	"go.bytecodealliance.org/wit"
)

// recordLayout is the flat placement of a WIT record of scalar fields.
type recordLayout struct {
	size    uint32
	align   uint32
	offsets map[string]uint32
}

func (r recordLayout) offset(field string) uint32 {
	off, ok := r.offsets[field]
	if !ok {
		panic(fmt.Sprintf("layout: record has no field %q", field))
	}
	return off
}

// scalarSize returns the size of a fixed-width WIT primitive, which is also
// its alignment.
func scalarSize(t wit.Type) (uint32, error) {
	switch t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return 1, nil
	case wit.U16, wit.S16:
		return 2, nil
	case wit.U32, wit.S32, wit.F32:
		return 4, nil
	case wit.U64, wit.S64, wit.F64:
		return 8, nil
	}
	return 0, fmt.Errorf("layout: %T is not a fixed-width scalar", t)
}

// layoutRecord places each field at the next offset aligned to its size and
// pads the total to the widest field.
func layoutRecord(def *wit.TypeDef) (recordLayout, error) {
	rec, ok := def.Kind.(*wit.Record)
	if !ok {
		return recordLayout{}, fmt.Errorf("layout: %T is not a record", def.Kind)
	}
	out := recordLayout{align: 1, offsets: make(map[string]uint32, len(rec.Fields))}
	var at uint32
	for _, f := range rec.Fields {
		n, err := scalarSize(f.Type)
		if err != nil {
			return recordLayout{}, fmt.Errorf("field %s: %w", f.Name, err)
		}
		at = align(at, n)
		out.offsets[f.Name] = at
		at += n
		out.align = max(out.align, n)
	}
	out.size = align(at, out.align)
	return out, nil
}

func mustLayout(def *wit.TypeDef) recordLayout {
	l, err := layoutRecord(def)
	if err != nil {
		panic(err)
	}
	return l
}

func align(off, to uint32) uint32 {
	return (off + to - 1) &^ (to - 1)
}
