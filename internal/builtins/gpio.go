// ABOUTME: GPIO pack exposes the status LED and the user button.
// ABOUTME: The button is active low; press counts come from the board.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/tinymcp/internal/device"
	"github.com/2389/tinymcp/internal/packs"
)

// GPIOPack creates the GPIO pack.
func GPIOPack(board *device.Board) *packs.BuiltinPack {
	g := &gpioHandlers{board: board}
	return &packs.BuiltinPack{
		ID: "builtin:gpio",
		Tools: []*packs.BuiltinTool{
			{
				Definition: packs.ToolDefinition{
					Name:        "gpio_control",
					Description: "Control the LED and read the button",
					Schema: packs.Schema{Params: []packs.Param{
						{
							Name:        "action",
							Type:        packs.TypeString,
							Required:    true,
							Enum:        []string{"set_led", "read_button", "get_status"},
							Description: "Action to perform on GPIO",
						},
						{Name: "state", Type: packs.TypeBoolean, Description: "LED state for set_led (true=on)"},
					}},
				},
				Handler: g.Control,
			},
		},
	}
}

type gpioHandlers struct {
	board *device.Board
}

type gpioInput struct {
	Action string `json:"action"`
	State  bool   `json:"state"`
}

func (g *gpioHandlers) Control(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in gpioInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	switch in.Action {
	case "set_led":
		g.board.SetLED(in.State)
		return ok("LED updated", map[string]any{
			"pin":       device.LEDPin,
			"pin_state": in.State,
			"pin_value": level(in.State),
		})
	case "read_button":
		pressed, count := g.board.Button()
		return ok("Button read", map[string]any{
			"pin":            device.ButtonPin,
			"pin_value":      level(!pressed),
			"button_pressed": pressed,
			"button_count":   count,
		})
	case "get_status":
		led := g.board.LED()
		pressed, count := g.board.Button()
		return ok("GPIO status retrieved", map[string]any{
			"led_state":      led,
			"led_value":      level(led),
			"button_pressed": pressed,
			"button_count":   count,
		})
	default:
		return nil, fmt.Errorf("unknown gpio action %q", in.Action)
	}
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
