package cmdproto

// Built-in legacy command numbers every process on the bus recognizes,
// shared ambient knowledge the way original_source/cmd.h is a shared
// header rather than any one handler's private detail. This package
// exports the numbers; registering handlers for them (status reporting,
// watchdog registration) is left to the embedding application.
const (
	CmdStatusRequest   byte = 0x01
	CmdStatusResponse  byte = 0xF1
	CmdWdtRegister     byte = 0x03
	CmdWdtTempReg      byte = 0x04
	CmdWdtTempCancel   byte = 0x05
	CmdWdtValidate     byte = 0x06
	CmdWdtTempTimeout  byte = 0xAA
)

// DataRequestTag is the reserved XDR command tag for the data-request
// compound command (see datarequest.go).
const DataRequestTag uint32 = 0xFFFFFFFE

// responseTag is the reserved XDR command tag marking a datagram as a
// Response rather than a Command; it can never collide with an
// application-registered command tag since callers are expected to
// register small, sequential tag values.
const responseTag uint32 = 0xFFFFFFFF
