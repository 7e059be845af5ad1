// ABOUTME: Build-time process limits and protocol constants for the MCP engine.
// ABOUTME: None of these are negotiable over the wire.

package protocol

const (
	// MaxMessageSize is the largest serialized frame accepted or emitted.
	MaxMessageSize = 4096

	// WorkerStackSize is the stack budget of the per-connection worker.
	// The worker path is kept recursion-free so it stays inside this budget.
	WorkerStackSize = 8192

	// MaxIDLength bounds string identifiers so an error response can always
	// be encoded for any accepted request.
	MaxIDLength = 256

	// JSONRPCVersion is the value of the optional "jsonrpc" member.
	JSONRPCVersion = "2.0"

	// ProtocolVersion is the MCP revision reported by initialize.
	ProtocolVersion = "2024-11-05"
)
