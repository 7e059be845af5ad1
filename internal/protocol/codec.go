// ABOUTME: Decodes frames into Messages and encodes Messages into a fixed buffer.
// ABOUTME: Decoding is all-or-nothing; encoding never emits more than MaxMessageSize bytes.

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var emptyObject = json.RawMessage("{}")

// wireMessage keeps every member raw so absent and null can be told apart.
type wireMessage struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  json.RawMessage `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func isNull(raw json.RawMessage) bool { return string(raw) == "null" }

func present(raw json.RawMessage) bool { return raw != nil && !isNull(raw) }

// Decode parses a frame into a Message. Failures are returned as *DecodeError.
func Decode(frame []byte) (Message, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Kind: KindMalformedSyntax, Reply: true, Err: errors.New("frame is not a JSON object")}
	}

	var w wireMessage
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, &DecodeError{Kind: KindMalformedSyntax, Reply: true, Err: err}
	}

	jsonrpc := false
	if w.JSONRPC != nil {
		var v string
		if err := json.Unmarshal(w.JSONRPC, &v); err != nil || v != JSONRPCVersion {
			return nil, &DecodeError{Kind: KindMalformedSyntax, Field: "jsonrpc", Reply: true}
		}
		jsonrpc = true
	}

	var id ID
	if present(w.ID) {
		parsed, err := parseID(w.ID)
		if err != nil {
			return nil, &DecodeError{Kind: KindMalformedSyntax, Field: "id", Reply: true, Err: err}
		}
		id = parsed
	}

	switch {
	case w.Method != nil:
		return decodeCall(&w, id, jsonrpc)
	case w.Result != nil || w.Error != nil:
		return decodeResponse(&w, id, jsonrpc)
	default:
		return nil, &DecodeError{Kind: KindUnknownMessageKind, ID: id, Reply: true}
	}
}

func decodeCall(w *wireMessage, id ID, jsonrpc bool) (Message, error) {
	notification := id.IsZero()
	fail := func(kind Kind, field string, err error) error {
		return &DecodeError{Kind: kind, Field: field, ID: id, Reply: !notification, Err: err}
	}

	if isNull(w.Method) {
		return nil, fail(KindMissingField, "method", nil)
	}
	var method string
	if err := json.Unmarshal(w.Method, &method); err != nil {
		return nil, fail(KindMalformedSyntax, "method", err)
	}
	if method == "" {
		return nil, fail(KindMissingField, "method", nil)
	}
	if w.Result != nil || w.Error != nil {
		return nil, fail(KindMalformedSyntax, "result", errors.New("call carries a result"))
	}

	params := emptyObject
	if present(w.Params) {
		p := bytes.TrimSpace(w.Params)
		if p[0] != '{' && p[0] != '[' {
			return nil, fail(KindMalformedSyntax, "params", errors.New("params must be an object or array"))
		}
		params = w.Params
	}

	if notification {
		return &Notification{Method: method, Params: params, JSONRPC: jsonrpc}, nil
	}
	return &Request{ID: id, Method: method, Params: params, JSONRPC: jsonrpc}, nil
}

func decodeResponse(w *wireMessage, id ID, jsonrpc bool) (Message, error) {
	fail := func(kind Kind, field string, err error) error {
		return &DecodeError{Kind: kind, Field: field, ID: id, Err: err}
	}

	if id.IsZero() {
		return nil, fail(KindMissingField, "id", nil)
	}
	if w.Result != nil && w.Error != nil {
		return nil, fail(KindMalformedSyntax, "error", errors.New("result and error are exclusive"))
	}

	resp := &Response{ID: id, JSONRPC: jsonrpc}
	if w.Result != nil {
		resp.Result = w.Result
		return resp, nil
	}

	var raw struct {
		Code    *int            `json:"code"`
		Message *string         `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Error, &raw); err != nil {
		return nil, fail(KindMalformedSyntax, "error", err)
	}
	if raw.Code == nil {
		return nil, fail(KindMissingField, "error.code", nil)
	}
	if raw.Message == nil {
		return nil, fail(KindMissingField, "error.message", nil)
	}
	resp.Error = &ErrorObject{Code: *raw.Code, Message: *raw.Message, Data: raw.Data}
	return resp, nil
}

// Encoder serializes Messages into a statically sized buffer. The returned
// frame aliases that buffer and is valid until the next call.
type Encoder struct {
	buf      [MaxMessageSize]byte
	n        int
	overflow bool
	invalid  error
}

// Encode serializes m. Messages that do not fit yield ErrFrameTooLarge, or
// ErrResultTooLarge for responses. Embedded params, results, or error data
// that are not valid JSON yield ErrHandlerFailure.
func (e *Encoder) Encode(m Message) ([]byte, error) {
	e.n, e.overflow, e.invalid = 0, false, nil

	switch m := m.(type) {
	case *Request:
		e.open(m.JSONRPC)
		e.writeString(`"id":`)
		e.writeString(m.ID.String())
		e.writeString(`,"method":`)
		e.writeQuoted(m.Method)
		e.writeString(`,"params":`)
		e.writeRaw(m.Params, emptyObject)
	case *Notification:
		e.open(m.JSONRPC)
		e.writeString(`"method":`)
		e.writeQuoted(m.Method)
		e.writeString(`,"params":`)
		e.writeRaw(m.Params, emptyObject)
	case *Response:
		e.open(m.JSONRPC)
		e.writeString(`"id":`)
		e.writeString(m.ID.String())
		if m.Error != nil {
			e.writeString(`,"error":{"code":`)
			var num [20]byte
			e.writeBytes(strconv.AppendInt(num[:0], int64(m.Error.Code), 10))
			e.writeString(`,"message":`)
			e.writeQuoted(m.Error.Message)
			if len(m.Error.Data) > 0 {
				e.writeString(`,"data":`)
				e.writeRaw(m.Error.Data, nil)
			}
			e.writeByte('}')
		} else {
			e.writeString(`,"result":`)
			e.writeRaw(m.Result, json.RawMessage("null"))
		}
	default:
		return nil, Errorf(KindUnknownMessageKind, "cannot encode %T", m)
	}
	e.writeByte('}')

	if e.invalid != nil {
		return nil, Errorf(KindHandlerFailure, "embedded value is not valid JSON: %v", e.invalid)
	}
	if e.overflow {
		if _, ok := m.(*Response); ok {
			return nil, ErrResultTooLarge
		}
		return nil, ErrFrameTooLarge
	}
	return e.buf[:e.n], nil
}

// EncodeResponse encodes r, substituting an error response when r does not
// fit or carries invalid JSON. It never returns a truncated frame; the
// substitution is reported alongside the substitute frame.
func (e *Encoder) EncodeResponse(r *Response) ([]byte, error) {
	frame, err := e.Encode(r)
	var substitute *Error
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, ErrResultTooLarge):
		substitute = Errorf(KindResultTooLarge, "result exceeds %d-byte message limit", MaxMessageSize)
	case errors.Is(err, ErrHandlerFailure):
		substitute = Errorf(KindHandlerFailure, "result is not valid JSON")
	default:
		return nil, err
	}
	frame, serr := e.Encode(&Response{ID: r.ID, JSONRPC: r.JSONRPC, Error: substitute.Object()})
	if serr != nil {
		return nil, serr
	}
	return frame, err
}

func (e *Encoder) open(jsonrpc bool) {
	e.writeByte('{')
	if jsonrpc {
		e.writeString(`"jsonrpc":"2.0",`)
	}
}

func (e *Encoder) writeByte(c byte) {
	if e.overflow {
		return
	}
	if e.n >= len(e.buf) {
		e.overflow = true
		return
	}
	e.buf[e.n] = c
	e.n++
}

func (e *Encoder) writeString(s string) {
	if e.overflow {
		return
	}
	if e.n+len(s) > len(e.buf) {
		e.overflow = true
		return
	}
	e.n += copy(e.buf[e.n:], s)
}

func (e *Encoder) writeBytes(b []byte) {
	if e.overflow {
		return
	}
	if e.n+len(b) > len(e.buf) {
		e.overflow = true
		return
	}
	e.n += copy(e.buf[e.n:], b)
}

func (e *Encoder) writeQuoted(s string) {
	if e.overflow {
		return
	}
	if e.n >= len(e.buf) {
		e.overflow = true
		return
	}
	// appendQuoted reallocates once the fixed buffer is exhausted.
	start := &e.buf[e.n]
	out := appendQuoted(e.buf[e.n:e.n], s)
	if &out[0] != start {
		e.overflow = true
		return
	}
	e.n += len(out)
}

// writeRaw copies embedded JSON with insignificant whitespace removed, so
// the frame never contains a newline and the output is canonical.
func (e *Encoder) writeRaw(raw, fallback json.RawMessage) {
	if e.overflow || e.invalid != nil {
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = fallback
	}
	rest := e.buf[e.n:]
	// Compact grows out past rest only when raw is longer than the room left.
	out := bytes.NewBuffer(rest[:0])
	if err := json.Compact(out, raw); err != nil {
		e.invalid = err
		return
	}
	if out.Len() > len(rest) {
		e.overflow = true
		return
	}
	e.n += copy(rest, out.Bytes())
}

const hexDigits = "0123456789abcdef"

// appendQuoted appends s as a JSON string literal.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			dst = append(dst, '\\', c)
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
