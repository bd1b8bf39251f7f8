package bridge

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure.
type Kind int

const (
	// KindValidation marks caller input rejected before any native call.
	KindValidation Kind = iota + 1
	// KindNative marks a non-zero result code from the native node.
	KindNative
	// KindDecode marks a native reply that could not be decoded.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNative:
		return "native"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error codes assigned by the bridge itself. Native failures carry the code
// reported by the node.
const (
	CodeNativeError     = "NativeError"
	CodeInvalidArgument = "InvalidArgument"
	CodeStatusParse     = "StatusParseError"
)

// Validation messages.
const (
	MsgDestinationRequired = "destinationHex is required."
	MsgBytesRequired       = "bytesBase64 is required."
	MsgCapabilityRequired  = "capabilityString is required."
)

// Fallback messages used when the node reports no error detail.
const (
	MsgStartFailed        = "Failed to start native Reticulum node."
	MsgStopFailed         = "Failed to stop native Reticulum node."
	MsgRestartFailed      = "Failed to restart native Reticulum node."
	MsgStatusFailed       = "Failed to fetch node status."
	MsgStatusParseFailed  = "Native status JSON parse failed."
	MsgConnectFailed      = "Failed to connect peer."
	MsgDisconnectFailed   = "Failed to disconnect peer."
	MsgSendFailed         = "Failed to send bytes."
	MsgBroadcastFailed    = "Failed to broadcast bytes."
	MsgCapabilitiesFailed = "Failed to set announce capabilities."
	MsgLogLevelFailed     = "Failed to set log level."
	MsgHubRefreshFailed   = "Failed to refresh hub directory."
)

// Error is returned by every failing bridge operation.
type Error struct {
	Kind    Kind
	Op      string
	Code    string
	Message string
	// CallID correlates the failure with the bridge's log lines for the same call.
	CallID string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or "" when err is not a bridge error.
func CodeOf(err error) string {
	if be, ok := AsError(err); ok {
		return be.Code
	}
	return ""
}

// IsKind reports whether err is a bridge error of kind k.
func IsKind(err error, k Kind) bool {
	be, ok := AsError(err)
	return ok && be.Kind == k
}

func validationError(op, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Code:    CodeInvalidArgument,
		Message: message,
	}
}
