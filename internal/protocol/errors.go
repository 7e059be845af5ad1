// ABOUTME: Error taxonomy for framing, decoding, and dispatch failures.
// ABOUTME: Maps each kind onto a JSON-RPC error code for the wire.

package protocol

import "fmt"

// Kind classifies a protocol failure.
type Kind uint8

const (
	KindFrameTooLarge Kind = iota + 1
	KindMalformedSyntax
	KindMissingField
	KindUnknownMessageKind
	KindDuplicateRequestID
	KindMethodNotFound
	KindInvalidParams
	KindHandlerFailure
	KindResultTooLarge
	KindTimeout
	KindTransportClosed
)

// JSON-RPC error codes. The -32000..-32099 range is reserved for
// implementation-defined server errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeDuplicateRequestID = -32000
	CodeResultTooLarge     = -32001
	CodeTimeout            = -32002
	CodeFrameTooLarge      = -32003
	CodeTransportClosed    = -32004
)

var kindNames = map[Kind]string{
	KindFrameTooLarge:      "FrameTooLarge",
	KindMalformedSyntax:    "MalformedSyntax",
	KindMissingField:       "MissingField",
	KindUnknownMessageKind: "UnknownMessageKind",
	KindDuplicateRequestID: "DuplicateRequestId",
	KindMethodNotFound:     "MethodNotFound",
	KindInvalidParams:      "InvalidParams",
	KindHandlerFailure:     "HandlerFailure",
	KindResultTooLarge:     "ResultTooLarge",
	KindTimeout:            "Timeout",
	KindTransportClosed:    "TransportClosed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Code returns the JSON-RPC error code reported for this kind.
func (k Kind) Code() int {
	switch k {
	case KindMalformedSyntax:
		return CodeParseError
	case KindMissingField, KindUnknownMessageKind:
		return CodeInvalidRequest
	case KindMethodNotFound:
		return CodeMethodNotFound
	case KindInvalidParams:
		return CodeInvalidParams
	case KindDuplicateRequestID:
		return CodeDuplicateRequestID
	case KindResultTooLarge:
		return CodeResultTooLarge
	case KindTimeout:
		return CodeTimeout
	case KindFrameTooLarge:
		return CodeFrameTooLarge
	case KindTransportClosed:
		return CodeTransportClosed
	default:
		return CodeInternalError
	}
}

// Error is a classified protocol failure carrying a peer-visible message.
type Error struct {
	Kind    Kind
	Message string
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrFrameTooLarge      = &Error{Kind: KindFrameTooLarge}
	ErrMalformedSyntax    = &Error{Kind: KindMalformedSyntax}
	ErrMissingField       = &Error{Kind: KindMissingField}
	ErrUnknownMessageKind = &Error{Kind: KindUnknownMessageKind}
	ErrDuplicateRequestID = &Error{Kind: KindDuplicateRequestID}
	ErrMethodNotFound     = &Error{Kind: KindMethodNotFound}
	ErrInvalidParams      = &Error{Kind: KindInvalidParams}
	ErrHandlerFailure     = &Error{Kind: KindHandlerFailure}
	ErrResultTooLarge     = &Error{Kind: KindResultTooLarge}
	ErrTimeout            = &Error{Kind: KindTimeout}
	ErrTransportClosed    = &Error{Kind: KindTransportClosed}
)

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Object converts the error into its wire representation.
func (e *Error) Object() *ErrorObject {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	return &ErrorObject{Code: e.Kind.Code(), Message: msg}
}

// DecodeError describes why a frame could not become a Message.
type DecodeError struct {
	Kind  Kind
	Field string
	// ID is set when the identifier could be recovered from the frame.
	ID ID
	// Reply reports whether the peer expects an error response. Malformed
	// notifications and responses are dropped silently.
	Reply bool
	Err   error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.String()
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches the *Error sentinel of the same kind.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// AsError converts the decode failure into a peer-visible protocol error.
func (e *DecodeError) AsError() *Error {
	switch e.Kind {
	case KindMalformedSyntax:
		if e.Field != "" {
			return Errorf(e.Kind, "parse error: invalid %s", e.Field)
		}
		return Errorf(e.Kind, "parse error")
	case KindMissingField:
		return Errorf(e.Kind, "invalid request: missing %s", e.Field)
	default:
		return Errorf(e.Kind, "invalid request: unknown message kind")
	}
}
