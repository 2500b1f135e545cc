package xdr

import "errors"

var (
	// ErrUnknownType is returned when a type id has no registered StructDef.
	ErrUnknownType = errors.New("xdr: unknown type id")
	// ErrUnknownPopulator is returned when a type id has no registered
	// populator for the data-request compound command.
	ErrUnknownPopulator = errors.New("xdr: unknown populator")
)
