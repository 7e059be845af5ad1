// ABOUTME: Status pack reports device health, sensor readings, and transport links.
// ABOUTME: run_diagnostics exercises memory, display, GPIO, sensor, timer, and scheduler paths.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/tinymcp/internal/device"
	"github.com/2389/tinymcp/internal/display"
	"github.com/2389/tinymcp/internal/packs"
)

// Link describes one transport the device can be reached over.
type Link struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Connected bool   `json:"connected"`
}

// LinkReporter lists the device's transports.
type LinkReporter interface {
	Links() []Link
}

// LinkReporterFunc adapts a function to LinkReporter.
type LinkReporterFunc func() []Link

func (f LinkReporterFunc) Links() []Link { return f() }

// Temperatures outside this range fail the health check.
const (
	minHealthyTemp = 0.0
	maxHealthyTemp = 85.0
)

// StatusPack creates the status pack. links may be nil.
func StatusPack(board *device.Board, sink display.Sink, links LinkReporter) *packs.BuiltinPack {
	s := &statusHandlers{board: board, sink: sink, links: links}
	return &packs.BuiltinPack{
		ID: "builtin:status",
		Tools: []*packs.BuiltinTool{
			{
				Definition: packs.ToolDefinition{
					Name:        "device_status",
					Description: "Get device health, sensor readings, and connection status, or run diagnostics",
					Schema: packs.Schema{Params: []packs.Param{
						{
							Name:        "action",
							Type:        packs.TypeString,
							Required:    true,
							Enum:        []string{"get_health", "get_sensors", "get_connections", "run_diagnostics"},
							Description: "Status action to perform",
						},
						{Name: "include_sensors", Type: packs.TypeBoolean, Description: "Include sensor readings in get_health"},
					}},
					Timeout: 3 * time.Second,
				},
				Handler: s.Status,
			},
		},
	}
}

type statusHandlers struct {
	board *device.Board
	sink  display.Sink
	links LinkReporter
}

type statusInput struct {
	Action         string `json:"action"`
	IncludeSensors bool   `json:"include_sensors"`
}

func (s *statusHandlers) Status(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in statusInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	switch in.Action {
	case "get_health":
		return s.health(in.IncludeSensors)
	case "get_sensors":
		return ok("Sensor readings retrieved", s.sensors())
	case "get_connections":
		var links []Link
		if s.links != nil {
			links = s.links.Links()
		}
		return ok("Connection status retrieved", map[string]any{"links": links})
	case "run_diagnostics":
		return s.diagnostics(ctx)
	default:
		return nil, fmt.Errorf("unknown status action %q", in.Action)
	}
}

func (s *statusHandlers) health(includeSensors bool) (json.RawMessage, error) {
	mem := s.board.Memory()
	temp := s.board.Temperature()
	errs := s.board.ErrorCount()

	memoryOK := mem.FreeHeap > 0 || mem.HeapInUse > 0
	displayOK := s.sink != nil && s.sink.Width() > 0 && s.sink.Height() > 0
	tempOK := temp > minHealthyTemp && temp < maxHealthyTemp

	status := "healthy"
	if !memoryOK || !displayOK || !tempOK {
		status = "degraded"
	}

	data := map[string]any{
		"health_status": status,
		"error_count":   errs,
		"memory_ok":     memoryOK,
		"display_ok":    displayOK,
		"gpio_ok":       true,
		"temperature":   temp,
		"free_heap":     mem.FreeHeap,
		"min_free_heap": mem.MinFreeHeap,
	}
	if includeSensors {
		data["sensors"] = s.sensors()
	}
	return ok("Health check complete", data)
}

func (s *statusHandlers) sensors() map[string]any {
	_, count := s.board.Button()
	return map[string]any{
		"internal_temperature": s.board.Temperature(),
		"button_count":         count,
		"uptime_ms":            s.board.Uptime().Milliseconds(),
	}
}

// diagnostics runs each check in turn. ctx bounds the timer and scheduler
// checks, which are the only ones that wait.
func (s *statusHandlers) diagnostics(ctx context.Context) (json.RawMessage, error) {
	checks := []struct {
		name string
		run  func(context.Context) bool
	}{
		{"memory_test", s.memoryCheck},
		{"display_test", s.displayCheck},
		{"gpio_test", s.gpioCheck},
		{"temperature_test", s.temperatureCheck},
		{"timer_test", timerCheck},
		{"scheduler_test", schedulerCheck},
	}

	results := make(map[string]any, len(checks)+3)
	passed := 0
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		okay := c.run(ctx)
		results[c.name] = okay
		if okay {
			passed++
		} else {
			s.board.RecordError()
		}
	}
	results["total_tests"] = len(checks)
	results["passed_tests"] = passed
	results["success_rate"] = float64(passed) * 100 / float64(len(checks))

	return ok("Diagnostics complete", results)
}

func (s *statusHandlers) memoryCheck(context.Context) bool {
	buf := make([]byte, 1024)
	for i := range buf {
		buf[i] = 0xA5
	}
	for _, b := range buf {
		if b != 0xA5 {
			return false
		}
	}
	return true
}

func (s *statusHandlers) displayCheck(context.Context) bool {
	return s.sink != nil && s.sink.Width() > 0 && s.sink.Refresh() == nil
}

// gpioCheck toggles the LED and restores it.
func (s *statusHandlers) gpioCheck(context.Context) bool {
	prev := s.board.LED()
	s.board.SetLED(!prev)
	flipped := s.board.LED() == !prev
	s.board.SetLED(prev)
	return flipped && s.board.LED() == prev
}

func (s *statusHandlers) temperatureCheck(context.Context) bool {
	t := s.board.Temperature()
	return t > minHealthyTemp && t < maxHealthyTemp
}

func timerCheck(ctx context.Context) bool {
	const want = 10 * time.Millisecond
	start := time.Now()
	t := time.NewTimer(want)
	defer t.Stop()
	select {
	case <-t.C:
		return time.Since(start) >= want
	case <-ctx.Done():
		return false
	}
}

func schedulerCheck(ctx context.Context) bool {
	done := make(chan struct{})
	go close(done)
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
