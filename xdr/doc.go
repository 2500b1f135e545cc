// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package xdr implements the wire codec and type registry the command
// engine builds on: fixed network-byte-order primitives with 4-byte
// alignment, a reflection-free struct/field registry addressed by numeric
// type id (the Go equivalent of the original's function-pointer-table
// schema description), and four text renderings of any registered value
// (human-readable, key=value pairs, and CSV header/data rows) plus the
// scanner that reverses the key=value form for CLI-style input.
package xdr
