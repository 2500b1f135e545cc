package xdr

import "fmt"

// telemetrySample is a minimal registered struct used across this
// package's tests: a scaled integer, a string, and a byte array, which
// together exercise every FieldKind the printers and scanner care about.
type telemetrySample struct {
	RawTemp int32 // raw units; human form divides by 100
	Label   string
	Payload []byte
}

func newTelemetrySampleDef() *StructDef {
	return &StructDef{
		TypeID: 42,
		Name:   "telemetrySample",
		New:    func() any { return &telemetrySample{} },
		Fields: []FieldDef{
			{
				Name:    "RawTemp",
				Key:     "temp",
				Kind:    KindInt32,
				Divisor: 100,
				Encode: func(w *Writer, obj any) error {
					w.PutInt32(obj.(*telemetrySample).RawTemp)
					return nil
				},
				Decode: func(r *Reader, obj any) error {
					v, err := r.GetInt32()
					if err != nil {
						return err
					}
					obj.(*telemetrySample).RawTemp = v
					return nil
				},
				PrintHuman: func(obj any) string {
					f := FieldDef{Divisor: 100}
					return fmt.Sprintf("%.2f", f.humanScale(float64(obj.(*telemetrySample).RawTemp)))
				},
				PrintKVP: func(obj any) string {
					return fmt.Sprintf("%d", obj.(*telemetrySample).RawTemp)
				},
				PrintCSV: func(obj any) string {
					return fmt.Sprintf("%d", obj.(*telemetrySample).RawTemp)
				},
				Scan: func(obj any, text string) error {
					var v int32
					if _, err := fmt.Sscanf(text, "%d", &v); err != nil {
						return err
					}
					obj.(*telemetrySample).RawTemp = v
					return nil
				},
			},
			{
				Name: "Label",
				Key:  "label",
				Kind: KindString,
				Encode: func(w *Writer, obj any) error {
					w.PutString(obj.(*telemetrySample).Label)
					return nil
				},
				Decode: func(r *Reader, obj any) error {
					s, err := r.GetString()
					if err != nil {
						return err
					}
					obj.(*telemetrySample).Label = s
					return nil
				},
				PrintHuman: func(obj any) string { return obj.(*telemetrySample).Label },
				PrintKVP:   func(obj any) string { return obj.(*telemetrySample).Label },
				PrintCSV:   func(obj any) string { return obj.(*telemetrySample).Label },
				Scan: func(obj any, text string) error {
					obj.(*telemetrySample).Label = text
					return nil
				},
			},
			{
				Name: "Payload",
				Key:  "payload",
				Kind: KindBytes,
				Encode: func(w *Writer, obj any) error {
					p := obj.(*telemetrySample).Payload
					w.PutUint32(uint32(len(p)))
					w.PutVarBytes(p)
					return nil
				},
				Decode: func(r *Reader, obj any) error {
					n, err := r.GetUint32()
					if err != nil {
						return err
					}
					b, err := r.GetVarBytes(int(n))
					if err != nil {
						return err
					}
					obj.(*telemetrySample).Payload = b
					return nil
				},
				PrintHuman: func(obj any) string { return FormatHexBytes(obj.(*telemetrySample).Payload) },
				PrintKVP:   func(obj any) string { return FormatHexBytes(obj.(*telemetrySample).Payload) },
				PrintCSV:   func(obj any) string { return FormatHexBytes(obj.(*telemetrySample).Payload) },
				Scan: func(obj any, text string) error {
					b, err := ParseHexBytes(text)
					if err != nil {
						return err
					}
					obj.(*telemetrySample).Payload = b
					return nil
				},
			},
		},
	}
}
