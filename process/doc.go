// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package process is the outermost façade a satellite daemon embeds: it
// owns the event loop, the command engine, the critical-state store, and a
// table of supervised child processes, and handles the process-lifecycle
// bookkeeping (PID/identity files, signal registration, startup resource
// tuning) every daemon built on this runtime needs.
package process
