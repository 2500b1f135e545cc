// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop implements the single-threaded reactor at the core of
// the process runtime: a monotonic-time scheduled-timer priority queue and a
// file-descriptor multiplexer, driven entirely from the goroutine that calls
// [Loop.Run].
//
// # Execution model
//
// Unlike a general-purpose task queue, Loop has no Submit from foreign
// goroutines. The only thing that ever crosses a goroutine boundary is the
// signal bridge (see [NewSignalBridge]), and it does so with a single
// non-blocking pipe write, not a queue - exactly the async-signal-safe
// "self-pipe" pattern the runtime this library replaces relies on.
//
// Every tick runs, in order: due timers (earliest nextFireAt first, ties
// broken by insertion order), then blocks in the platform poller (through
// the loop's clock) for up to the next timer's deadline, then a round-robin
// pass over the ready file descriptors so no single fd or slot can starve
// the others.
package eventloop
