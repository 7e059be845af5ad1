// ABOUTME: Tests for the built-in tool packs.
// ABOUTME: Uses the real SQLite store, a simulated board, and an in-memory framebuffer.

package builtins

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tinymcp/internal/device"
	"github.com/2389/tinymcp/internal/display"
	"github.com/2389/tinymcp/internal/packs"
	"github.com/2389/tinymcp/internal/store"
)

func findHandler(pack *packs.BuiltinPack, name string) packs.ToolHandler {
	for _, tool := range pack.Tools {
		if tool.Definition.Name == name {
			return tool.Handler
		}
	}
	return nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type envelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// call invokes a tool handler and decodes the success envelope.
func call(t *testing.T, pack *packs.BuiltinPack, name, args string) envelope {
	t.Helper()
	handler := findHandler(pack, name)
	require.NotNil(t, handler, "%s handler not found", name)

	out, err := handler(context.Background(), json.RawMessage(args))
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, "success", env.Status)
	return env
}

func TestAllPacksRegisterWithoutCollision(t *testing.T) {
	board := device.NewBoard("test")
	fb := display.NewFramebuffer(0, 0)
	registry, err := packs.NewRegistry(slog.Default(),
		SystemPack(board),
		DisplayPack(fb),
		GPIOPack(board),
		StatusPack(board, fb, nil),
		ConfigPack(store.NewMockStore()),
	)
	require.NoError(t, err)
	assert.Equal(t, 8, registry.Len())

	for _, tool := range registry.Tools() {
		assert.True(t, json.Valid(tool.InputSchema()), tool.Definition.Name)
	}
}

func TestEcho(t *testing.T) {
	pack := SystemPack(device.NewBoard("test"))

	env := call(t, pack, "echo", `{"message":"hi"}`)
	assert.Equal(t, "hi", env.Data["echo"])

	env = call(t, pack, "echo", `{}`)
	assert.Equal(t, "Hello from tinymcp", env.Data["echo"])
}

func TestSystemInfo(t *testing.T) {
	pack := SystemPack(device.NewBoard("1.2.3"))

	env := call(t, pack, "system_info", `{"action":"get_info"}`)
	assert.Equal(t, "1.2.3", env.Data["firmware_version"])
	assert.Equal(t, "tinymcp-sim", env.Data["chip_model"])

	env = call(t, pack, "system_info", `{"action":"get_stats"}`)
	assert.Contains(t, env.Data, "free_heap")
	assert.Contains(t, env.Data, "goroutines")
}

func TestSystemRestartIncrementsCounter(t *testing.T) {
	board := device.NewBoard("test")
	pack := SystemPack(board)

	call(t, pack, "system_info", `{"action":"restart"}`)
	assert.Equal(t, uint32(1), board.Restarts())
}

func TestDisplayShowTextPlain(t *testing.T) {
	fb := display.NewFramebuffer(0, 0)
	pack := DisplayPack(fb)

	env := call(t, pack, "display_control", `{"action":"show_text","text":"hello\nworld","x":8,"y":16,"color":"green"}`)
	assert.Equal(t, float64(2), env.Data["lines"])
	assert.Equal(t, false, env.Data["truncated"])

	runs := fb.Text()
	require.Len(t, runs, 2)
	assert.Equal(t, display.TextRun{X: 8, Y: 16, Text: "hello", FG: display.Green, BG: display.Black}, runs[0])
	assert.Equal(t, 32, runs[1].Y)
}

func TestDisplayShowTextMarkdown(t *testing.T) {
	fb := display.NewFramebuffer(0, 0)
	pack := DisplayPack(fb)

	call(t, pack, "display_control", `{"action":"show_text","format":"markdown","text":"# Title\n\n- one\n- two"}`)
	var texts []string
	for _, r := range fb.Text() {
		texts = append(texts, r.Text)
	}
	assert.Equal(t, []string{"# Title", "- one", "- two"}, texts)
}

func TestDisplayShowTextTruncatesAtBottom(t *testing.T) {
	fb := display.NewFramebuffer(0, 0)
	pack := DisplayPack(fb)

	env := call(t, pack, "display_control", `{"action":"show_text","text":"a\nb\nc","y":150}`)
	assert.Equal(t, float64(2), env.Data["lines"])
	assert.Equal(t, true, env.Data["truncated"])
}

func TestDisplayDrawing(t *testing.T) {
	fb := display.NewFramebuffer(0, 0)
	pack := DisplayPack(fb)

	call(t, pack, "display_control", `{"action":"draw_rect","x":0,"y":0,"width":4,"height":4,"color":"red"}`)
	assert.Equal(t, display.Red, fb.Pixel(3, 3))

	call(t, pack, "display_control", `{"action":"draw_pixel","x":100,"y":100,"color":"blue"}`)
	assert.Equal(t, display.Blue, fb.Pixel(100, 100))

	call(t, pack, "display_control", `{"action":"clear","bg_color":"white"}`)
	assert.Equal(t, display.White, fb.Pixel(100, 100))

	call(t, pack, "display_control", `{"action":"refresh"}`)
	assert.Equal(t, 1, fb.Refreshes())
}

func TestDisplayRectOutOfBoundsFails(t *testing.T) {
	pack := DisplayPack(display.NewFramebuffer(0, 0))
	handler := findHandler(pack, "display_control")

	_, err := handler(context.Background(), json.RawMessage(`{"action":"draw_rect","x":300,"y":0,"width":50,"height":4}`))
	assert.ErrorIs(t, err, display.ErrOutOfBounds)
}

func TestDisplayBrightness(t *testing.T) {
	fb := display.NewFramebuffer(0, 0)
	pack := DisplayPack(fb)

	env := call(t, pack, "display_control", `{"action":"set_brightness","brightness":25}`)
	assert.Equal(t, float64(25), env.Data["brightness"])
	assert.Equal(t, 25, fb.Brightness())

	_, err := findHandler(pack, "display_control")(context.Background(), json.RawMessage(`{"action":"set_brightness"}`))
	assert.Error(t, err)
}

func TestDisplayGetInfo(t *testing.T) {
	pack := DisplayPack(display.NewFramebuffer(0, 0))

	env := call(t, pack, "display_control", `{"action":"get_info"}`)
	assert.Equal(t, float64(320), env.Data["display_width"])
	assert.Equal(t, float64(172), env.Data["display_height"])
	assert.Equal(t, "RGB565", env.Data["color_format"])
}

func TestGPIO(t *testing.T) {
	board := device.NewBoard("test")
	pack := GPIOPack(board)

	env := call(t, pack, "gpio_control", `{"action":"set_led","state":true}`)
	assert.Equal(t, true, env.Data["pin_state"])
	assert.True(t, board.LED())

	board.Press()
	env = call(t, pack, "gpio_control", `{"action":"read_button"}`)
	assert.Equal(t, true, env.Data["button_pressed"])
	assert.Equal(t, float64(0), env.Data["pin_value"])
	assert.Equal(t, float64(1), env.Data["button_count"])

	board.Release()
	env = call(t, pack, "gpio_control", `{"action":"get_status"}`)
	assert.Equal(t, true, env.Data["led_state"])
	assert.Equal(t, false, env.Data["button_pressed"])
}

func TestDeviceStatus(t *testing.T) {
	board := device.NewBoard("test")
	fb := display.NewFramebuffer(0, 0)
	links := LinkReporterFunc(func() []Link {
		return []Link{{Name: "tcp", Available: true, Connected: true}}
	})
	pack := StatusPack(board, fb, links)

	env := call(t, pack, "device_status", `{"action":"get_health","include_sensors":true}`)
	assert.Equal(t, "healthy", env.Data["health_status"])
	assert.Contains(t, env.Data, "sensors")

	env = call(t, pack, "device_status", `{"action":"get_sensors"}`)
	assert.Contains(t, env.Data, "internal_temperature")

	env = call(t, pack, "device_status", `{"action":"get_connections"}`)
	require.Len(t, env.Data["links"], 1)
}

func TestDeviceStatusDiagnostics(t *testing.T) {
	board := device.NewBoard("test")
	board.SetLED(true)
	pack := StatusPack(board, display.NewFramebuffer(0, 0), nil)

	env := call(t, pack, "device_status", `{"action":"run_diagnostics"}`)
	assert.Equal(t, float64(6), env.Data["total_tests"])
	assert.Equal(t, float64(6), env.Data["passed_tests"])
	assert.Equal(t, float64(100), env.Data["success_rate"])
	assert.True(t, board.LED(), "LED state restored")
}

func TestConfigPack(t *testing.T) {
	s := newTestStore(t)
	pack := ConfigPack(s)

	env := call(t, pack, "config_set", `{"key":"device_name","value":"bench-1"}`)
	assert.Equal(t, "device_name", env.Data["key"])

	env = call(t, pack, "config_get", `{"key":"device_name"}`)
	assert.Equal(t, "bench-1", env.Data["value"])

	call(t, pack, "config_set", `{"key":"brightness","value":"80"}`)
	env = call(t, pack, "config_list", `{}`)
	assert.Equal(t, float64(2), env.Data["count"])
	assert.Equal(t, map[string]any{"device_name": "bench-1", "brightness": "80"}, env.Data["values"])
}

func TestConfigGetNotFound(t *testing.T) {
	pack := ConfigPack(newTestStore(t))

	_, err := findHandler(pack, "config_get")(context.Background(), json.RawMessage(`{"key":"nonexistent"}`))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
