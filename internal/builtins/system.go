// ABOUTME: System pack provides echo and board information tools.
// ABOUTME: system_info reports chip details, runtime stats, and handles restart requests.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/2389/tinymcp/internal/device"
	"github.com/2389/tinymcp/internal/packs"
)

// restartDelay gives the response time to reach the client before the
// restart hook fires.
const restartDelay = 500 * time.Millisecond

// SystemPack creates the system pack.
func SystemPack(board *device.Board) *packs.BuiltinPack {
	s := &systemHandlers{board: board}
	return &packs.BuiltinPack{
		ID: "builtin:system",
		Tools: []*packs.BuiltinTool{
			{
				Definition: packs.ToolDefinition{
					Name:        "echo",
					Description: "Echo a message back to the caller",
					Schema: packs.Schema{Params: []packs.Param{
						{Name: "message", Type: packs.TypeString, Description: "Text to echo"},
					}},
				},
				Handler: s.Echo,
			},
			{
				Definition: packs.ToolDefinition{
					Name:        "system_info",
					Description: "Get board information and runtime statistics, or request a restart",
					Schema: packs.Schema{Params: []packs.Param{
						{
							Name:        "action",
							Type:        packs.TypeString,
							Required:    true,
							Enum:        []string{"get_info", "get_stats", "restart"},
							Description: "System action to perform",
						},
					}},
				},
				Handler: s.Info,
			},
		},
	}
}

type systemHandlers struct {
	board *device.Board
}

type echoInput struct {
	Message string `json:"message"`
}

func (s *systemHandlers) Echo(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := echoInput{Message: "Hello from tinymcp"}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	return ok("Echo successful", map[string]string{"echo": in.Message})
}

type systemInput struct {
	Action string `json:"action"`
}

func (s *systemHandlers) Info(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in systemInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	switch in.Action {
	case "get_info":
		info := s.board.Info()
		return ok("System information retrieved", map[string]any{
			"chip_model":       info.Model,
			"chip_revision":    info.Revision,
			"cores":            info.Cores,
			"firmware_version": info.FirmwareBuild,
			"cpu_freq_mhz":     info.CPUFreqMHz,
			"go_version":       runtime.Version(),
			"uptime_ms":        s.board.Uptime().Milliseconds(),
		})
	case "get_stats":
		mem := s.board.Memory()
		return ok("System statistics retrieved", map[string]any{
			"free_heap":     mem.FreeHeap,
			"min_free_heap": mem.MinFreeHeap,
			"heap_in_use":   mem.HeapInUse,
			"goroutines":    runtime.NumGoroutine(),
			"uptime_ms":     s.board.Uptime().Milliseconds(),
			"error_count":   s.board.ErrorCount(),
			"restarts":      s.board.Restarts(),
		})
	case "restart":
		s.board.RequestRestart(restartDelay)
		return ok("Restart scheduled", map[string]any{"delay_ms": restartDelay.Milliseconds()})
	default:
		return nil, fmt.Errorf("unknown system action %q", in.Action)
	}
}
