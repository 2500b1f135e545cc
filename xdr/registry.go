package xdr

import (
	"fmt"
	"sync"
)

// FieldKind labels what a FieldDef's closures operate on, purely for the
// benefit of generic tooling (printers choosing a numeric vs. string
// rendering); the actual work is always done by the closures themselves.
type FieldKind int

const (
	KindInt32 FieldKind = iota
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindBytes
	KindString
	KindStruct
	KindArray
)

// FieldDef describes one member of a registered struct: a name, a kind,
// optional unit-scaling for human display, and the function-pointer-style
// closures that do the actual encode/decode/print/scan work against a
// concrete Go value. This mirrors the original schema's
// encoder/decoder/printer/scanner function pointers without requiring
// reflection: each closure is written by the code registering the struct,
// which is the only place that needs to know the concrete Go type.
type FieldDef struct {
	Name   string
	Key    string // key= name used by KVP printing and scanning
	Kind   FieldKind
	Divisor float64 // human print shows (raw/Divisor)+Offset; 0 means 1
	Offset  float64

	Encode func(w *Writer, obj any) error
	Decode func(r *Reader, obj any) error

	PrintHuman func(obj any) string
	PrintKVP   func(obj any) string
	PrintCSV   func(obj any) string // one CSV-data cell

	Scan func(obj any, text string) error
}

func (f *FieldDef) divisor() float64 {
	if f.Divisor == 0 {
		return 1
	}
	return f.Divisor
}

// humanScale applies (raw/Divisor)+Offset, the shared unit-scaling rule
// numeric PrintHuman closures can call.
func (f *FieldDef) humanScale(raw float64) float64 {
	return raw/f.divisor() + f.Offset
}

// StructDef describes one registered wire struct: its type id, its field
// list in wire order, and a constructor for fresh decode targets.
type StructDef struct {
	TypeID uint32
	Name   string
	Fields []FieldDef
	New    func() any
}

// Encode writes obj's fields, in declaration order, to w.
func (d *StructDef) Encode(w *Writer, obj any) error {
	for i := range d.Fields {
		if err := d.Fields[i].Encode(w, obj); err != nil {
			return fmt.Errorf("xdr: encode %s.%s: %w", d.Name, d.Fields[i].Name, err)
		}
	}
	return nil
}

// Decode reads obj's fields, in declaration order, from r.
func (d *StructDef) Decode(r *Reader, obj any) error {
	for i := range d.Fields {
		if err := d.Fields[i].Decode(r, obj); err != nil {
			return fmt.Errorf("xdr: decode %s.%s: %w", d.Name, d.Fields[i].Name, err)
		}
	}
	return nil
}

// PopulatorFunc produces a value of the registered struct type on demand,
// for the data-request compound command (see the cmdproto package).
type PopulatorFunc func() (value any, err error)

// Registry is a process-wide keyed table of struct definitions and
// populators, addressed by numeric type id exactly like the original's
// static registration tables.
type Registry struct {
	mu         sync.RWMutex
	byID       map[uint32]*StructDef
	populators map[uint32]PopulatorFunc
}

// NewRegistry constructs an empty Registry. Most callers use the
// package-level default registry (Register, DefinitionFor,
// RegisterPopulator) instead; NewRegistry exists for isolated tests.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[uint32]*StructDef),
		populators: make(map[uint32]PopulatorFunc),
	}
}

// Register inserts def into the registry, keyed by its TypeID. A second
// registration for the same TypeID replaces the first.
func (r *Registry) Register(def *StructDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[def.TypeID] = def
}

// DefinitionFor looks up a previously registered struct by type id.
func (r *Registry) DefinitionFor(typeID uint32) (*StructDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[typeID]
	return d, ok
}

// RegisterPopulator attaches a data-producer for typeID, used by the
// command engine's data-request compound command.
func (r *Registry) RegisterPopulator(typeID uint32, fn PopulatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.populators[typeID] = fn
}

// PopulatorFor looks up a previously registered populator by type id.
func (r *Registry) PopulatorFor(typeID uint32) (PopulatorFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.populators[typeID]
	return fn, ok
}

// defaultRegistry is the process-wide registry most applications use,
// matching the original's single set of static registration tables.
var defaultRegistry = NewRegistry()

// Default returns the process-wide Registry.
func Default() *Registry { return defaultRegistry }

// Register registers def with the default Registry.
func Register(def *StructDef) { defaultRegistry.Register(def) }

// DefinitionFor looks up typeID in the default Registry.
func DefinitionFor(typeID uint32) (*StructDef, bool) { return defaultRegistry.DefinitionFor(typeID) }

// RegisterPopulator attaches a populator for typeID in the default Registry.
func RegisterPopulator(typeID uint32, fn PopulatorFunc) { defaultRegistry.RegisterPopulator(typeID, fn) }
