package xdr

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	def := newTelemetrySampleDef()
	reg.Register(def)

	got, ok := reg.DefinitionFor(42)
	if !ok {
		t.Fatal("expected type 42 to be registered")
	}
	if got.Name != "telemetrySample" {
		t.Fatalf("got.Name = %q", got.Name)
	}
	if _, ok := reg.DefinitionFor(99); ok {
		t.Fatal("expected type 99 to be unregistered")
	}
}

func TestStructDefEncodeDecodeRoundTrip(t *testing.T) {
	def := newTelemetrySampleDef()
	orig := &telemetrySample{RawTemp: 2150, Label: "bus-a", Payload: []byte{0xAB, 0xCD, 0xEF}}

	w := NewWriter(0)
	if err := def.Encode(w, orig); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got := def.New().(*telemetrySample)
	r := NewReader(w.Bytes())
	if err := def.Decode(r, got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 0 {
		t.Fatalf("expected reader exhausted after decode, %d bytes left", r.Len())
	}
}

func TestUnionEncodeDecodeRoundTrip(t *testing.T) {
	reg := NewRegistry()
	reg.Register(newTelemetrySampleDef())

	u := Union{Tag: 42, Value: &telemetrySample{RawTemp: -50, Label: "cold", Payload: []byte{0x00}}}
	w := NewWriter(0)
	if err := EncodeUnion(reg, w, u); err != nil {
		t.Fatalf("EncodeUnion: %v", err)
	}

	r := NewReader(w.Bytes())
	got, err := DecodeUnion(reg, r)
	if err != nil {
		t.Fatalf("DecodeUnion: %v", err)
	}
	if got.Tag != 42 {
		t.Fatalf("Tag = %d", got.Tag)
	}
	if diff := cmp.Diff(u.Value, got.Value); diff != "" {
		t.Fatalf("union value mismatch (-want +got):\n%s", diff)
	}
}

func TestUnionEncodeUnknownType(t *testing.T) {
	reg := NewRegistry()
	if err := EncodeUnion(reg, NewWriter(0), Union{Tag: 7}); err == nil {
		t.Fatal("expected error for unregistered type")
	}
}

func TestRegistryPopulator(t *testing.T) {
	reg := NewRegistry()
	want := &telemetrySample{RawTemp: 1}
	reg.RegisterPopulator(42, func() (any, error) { return want, nil })

	fn, ok := reg.PopulatorFor(42)
	if !ok {
		t.Fatal("expected populator for type 42")
	}
	got, err := fn()
	if err != nil {
		t.Fatalf("populator: %v", err)
	}
	if got != want {
		t.Fatal("populator returned unexpected value")
	}
	if _, ok := reg.PopulatorFor(99); ok {
		t.Fatal("expected no populator for type 99")
	}
}

func TestDefaultRegistryPackageFuncs(t *testing.T) {
	Register(newTelemetrySampleDef())
	if _, ok := DefinitionFor(42); !ok {
		t.Fatal("expected default registry to hold type 42")
	}
}
