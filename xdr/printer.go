package xdr

import "strings"

// PrintStyle selects one of the four text renderings a registered struct
// supports.
type PrintStyle int

const (
	StyleHuman PrintStyle = iota
	StyleKVP
	StyleCSVHeader
	StyleCSVData
)

// Print renders obj using def's fields in the requested style. CSVHeader
// ignores obj (it may be nil) since it only emits field keys.
func (d *StructDef) Print(style PrintStyle, obj any) string {
	switch style {
	case StyleHuman:
		return d.printHuman(obj)
	case StyleKVP:
		return d.printKVP(obj)
	case StyleCSVHeader:
		return d.printCSVHeader()
	case StyleCSVData:
		return d.printCSVData(obj)
	default:
		return ""
	}
}

func (d *StructDef) printHuman(obj any) string {
	var b strings.Builder
	for i := range d.Fields {
		f := &d.Fields[i]
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		if f.PrintHuman != nil {
			b.WriteString(f.PrintHuman(obj))
		}
	}
	return b.String()
}

func (d *StructDef) printKVP(obj any) string {
	var b strings.Builder
	for i := range d.Fields {
		f := &d.Fields[i]
		if i > 0 {
			b.WriteString(" ")
		}
		key := f.Key
		if key == "" {
			key = f.Name
		}
		b.WriteString(key)
		b.WriteString("=")
		if f.PrintKVP != nil {
			b.WriteString(f.PrintKVP(obj))
		}
	}
	return b.String()
}

func (d *StructDef) printCSVHeader() string {
	keys := make([]string, len(d.Fields))
	for i := range d.Fields {
		key := d.Fields[i].Key
		if key == "" {
			key = d.Fields[i].Name
		}
		keys[i] = key
	}
	return strings.Join(keys, ",")
}

func (d *StructDef) printCSVData(obj any) string {
	cells := make([]string, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.PrintCSV != nil {
			cells[i] = f.PrintCSV(obj)
		}
	}
	return strings.Join(cells, ",")
}
