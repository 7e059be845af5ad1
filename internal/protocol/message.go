// ABOUTME: Tagged-union message model: Request, Response, and Notification.
// ABOUTME: Identifiers are kept in canonical JSON form so they compare and hash exactly.

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Message is one of *Request, *Response, or *Notification.
type Message interface {
	isMessage()
}

// Request expects exactly one Response carrying the same ID.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
	// JSONRPC records whether the peer sent "jsonrpc":"2.0".
	JSONRPC bool
}

// Notification is a Request without an identifier. It is never answered.
type Notification struct {
	Method  string
	Params  json.RawMessage
	JSONRPC bool
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	ID      ID
	Result  json.RawMessage
	Error   *ErrorObject
	JSONRPC bool
}

// ErrorObject is the wire form of a failed Response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (*Request) isMessage()      {}
func (*Notification) isMessage() {}
func (*Response) isMessage()     {}

// ID is a request identifier: an integer or a string. The zero ID is the
// JSON null used when a request's identifier could not be recovered.
type ID struct {
	raw string
}

var (
	errIDType   = errors.New("id must be an integer or a string")
	errIDLength = fmt.Errorf("id exceeds %d bytes", MaxIDLength)
)

// IntID returns a numeric identifier.
func IntID(n int64) ID {
	return ID{raw: strconv.FormatInt(n, 10)}
}

// StringID returns a string identifier.
func StringID(s string) ID {
	return ID{raw: string(appendQuoted(nil, s))}
}

// IsZero reports whether the identifier is absent.
func (id ID) IsZero() bool { return id.raw == "" }

// String returns the canonical JSON text of the identifier.
func (id ID) String() string {
	if id.raw == "" {
		return "null"
	}
	return id.raw
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// parseID canonicalises a raw JSON identifier.
func parseID(raw json.RawMessage) (ID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ID{}, errIDType
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ID{}, err
		}
		if len(s) > MaxIDLength {
			return ID{}, errIDLength
		}
		return StringID(s), nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return ID{}, errIDType
	}
	return IntID(n), nil
}
