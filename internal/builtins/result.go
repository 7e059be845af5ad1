// ABOUTME: Shared result envelope and input decoding for built-in tool handlers
// ABOUTME: Every tool answers {"status":"success","message":...,"data":{...}}

package builtins

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ok builds the success envelope.
func ok(message string, data any) (json.RawMessage, error) {
	return json.Marshal(result{Status: "success", Message: message, Data: data})
}

// decodeInput unmarshals tool arguments. Absent arguments leave v untouched.
func decodeInput(input json.RawMessage, v any) error {
	input = bytes.TrimSpace(input)
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}
