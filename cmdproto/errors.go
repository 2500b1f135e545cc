package cmdproto

import (
	"fmt"
	"sync"
)

// Result is the wire-level u32 result code carried in every Response.
type Result uint32

const (
	// Success indicates a normal response.
	Success Result = iota
	// Unsupported means no handler is registered for the command (or the
	// command is legacy and flagged protected).
	Unsupported
	// IncorrectParameterType means the parameters' type tag disagreed with
	// the handler's expectation.
	IncorrectParameterType
	// AllocationError means the server ran out of resources preparing a
	// response.
	AllocationError

	// firstCustom is the first result code an application may register a
	// custom name for via RegisterError.
	firstCustom Result = 1000
)

// String renders the built-in result codes by name and falls back to a
// registered custom name, or the bare numeric value.
func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case Unsupported:
		return "Unsupported"
	case IncorrectParameterType:
		return "IncorrectParameterType"
	case AllocationError:
		return "AllocationError"
	}
	if name, ok := defaultErrorNames.lookup(r); ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", r)
}

// errorNameTable is the engine's registered-custom-error name lookup,
// populated by the embedding application during the registration phase.
type errorNameTable struct {
	mu    sync.RWMutex
	names map[Result]string
}

func newErrorNameTable() *errorNameTable {
	return &errorNameTable{names: make(map[Result]string)}
}

func (t *errorNameTable) register(code Result, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[code] = name
}

func (t *errorNameTable) lookup(code Result) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[code]
	return name, ok
}

// defaultErrorNames backs the package-level RegisterError/Result.String.
var defaultErrorNames = newErrorNameTable()

// RegisterError attaches a human-readable name to a custom result code
// (code must be >= 1000; the first 1000 values are reserved for this
// package's own codes and future built-ins).
func RegisterError(code Result, name string) error {
	if code < firstCustom {
		return fmt.Errorf("cmdproto: custom result codes must be >= %d, got %d", firstCustom, code)
	}
	defaultErrorNames.register(code, name)
	return nil
}

// PopulatorError is embedded in a data-request array response entry when
// the populator registered for that type returned an error.
type PopulatorError struct {
	TypeID uint32
	Error  string
}
