// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package cmdproto implements the command/response engine: a single UDP
// socket multiplexed through an eventloop.Loop that speaks two datagram
// formats — legacy single-byte commands addressed through a 256-slot
// table, and XDR-encoded commands/responses addressed through a type
// registry — plus response correlation with timeouts and a
// reference-counted multicast layer built on the same socket family.
package cmdproto
