// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package critstate implements the redundant, checksum-protected critical
// state store: a small (up to 224 byte) payload a process wants to survive
// its own crash and a reboot, persisted across two file-name-prefixed slots
// with four on-disk copies of each record per slot.
//
// A [Store] keeps the current payload and its sequence number in memory.
// [Store.Save] bumps the sequence, writes the record to every slot, and
// opportunistically sweeps stale files in a slot every few generations.
// [Store.Read] serves the in-memory copy, transparently reloading from disk
// first if the store was marked dirty (by a partial save, or by a load that
// found slot files but no valid record) or its in-memory checksum no longer
// matches.
package critstate
