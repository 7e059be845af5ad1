// ABOUTME: Display pack drives the panel: text, shapes, pixels, and brightness.
// ABOUTME: show_text accepts plain text or markdown, which is flattened to wrapped lines.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/tinymcp/internal/display"
	"github.com/2389/tinymcp/internal/packs"
)

// DisplayPack creates the display pack over sink.
func DisplayPack(sink display.Sink) *packs.BuiltinPack {
	d := &displayHandlers{sink: sink}
	w, h := float64(sink.Width()), float64(sink.Height())
	colors := display.ColorNames()
	return &packs.BuiltinPack{
		ID: "builtin:display",
		Tools: []*packs.BuiltinTool{
			{
				Definition: packs.ToolDefinition{
					Name:        "display_control",
					Description: "Control the device display",
					Schema: packs.Schema{Params: []packs.Param{
						{
							Name:        "action",
							Type:        packs.TypeString,
							Required:    true,
							Enum:        []string{"show_text", "clear", "set_brightness", "draw_rect", "draw_pixel", "get_info", "refresh"},
							Description: "Action to perform on the display",
						},
						{Name: "text", Type: packs.TypeString, Description: "Text to display (for show_text)"},
						{Name: "format", Type: packs.TypeString, Enum: []string{"plain", "markdown"}, Description: "Text format (for show_text)"},
						{Name: "x", Type: packs.TypeInteger, Minimum: packs.Bound(0), Maximum: packs.Bound(w - 1), Description: "X coordinate"},
						{Name: "y", Type: packs.TypeInteger, Minimum: packs.Bound(0), Maximum: packs.Bound(h - 1), Description: "Y coordinate"},
						{Name: "width", Type: packs.TypeInteger, Minimum: packs.Bound(1), Maximum: packs.Bound(w), Description: "Width in pixels (for draw_rect)"},
						{Name: "height", Type: packs.TypeInteger, Minimum: packs.Bound(1), Maximum: packs.Bound(h), Description: "Height in pixels (for draw_rect)"},
						{Name: "color", Type: packs.TypeString, Enum: colors, Description: "Color name"},
						{Name: "bg_color", Type: packs.TypeString, Enum: colors, Description: "Background color name"},
						{Name: "brightness", Type: packs.TypeInteger, Minimum: packs.Bound(0), Maximum: packs.Bound(100), Description: "Brightness percentage (for set_brightness)"},
					}},
				},
				Handler: d.Control,
			},
		},
	}
}

type displayHandlers struct {
	sink display.Sink
}

type displayInput struct {
	Action     string `json:"action"`
	Text       string `json:"text"`
	Format     string `json:"format"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Color      string `json:"color"`
	BgColor    string `json:"bg_color"`
	Brightness *int   `json:"brightness"`
}

func (d *displayHandlers) Control(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	in := displayInput{Color: "white", BgColor: "black", Format: "plain"}
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}
	fg, okFG := display.ParseColor(in.Color)
	bg, okBG := display.ParseColor(in.BgColor)
	if !okFG || !okBG {
		return nil, fmt.Errorf("unknown color %q/%q", in.Color, in.BgColor)
	}

	switch in.Action {
	case "show_text":
		return d.showText(in, fg, bg)
	case "clear":
		if err := d.sink.Clear(bg); err != nil {
			return nil, err
		}
		return ok("Display cleared", map[string]any{"bg_color": in.BgColor})
	case "set_brightness":
		if in.Brightness == nil {
			return nil, fmt.Errorf("set_brightness requires brightness")
		}
		if err := d.sink.SetBrightness(*in.Brightness); err != nil {
			return nil, err
		}
		return ok("Brightness updated", map[string]any{"brightness": d.sink.Brightness()})
	case "draw_rect":
		if err := d.sink.FillRect(in.X, in.Y, in.Width, in.Height, fg); err != nil {
			return nil, err
		}
		return ok("Rectangle drawn", map[string]any{"x": in.X, "y": in.Y, "width": in.Width, "height": in.Height})
	case "draw_pixel":
		if err := d.sink.SetPixel(in.X, in.Y, fg); err != nil {
			return nil, err
		}
		return ok("Pixel drawn", map[string]any{"x": in.X, "y": in.Y})
	case "get_info":
		return ok("Display information retrieved", map[string]any{
			"display_width":  d.sink.Width(),
			"display_height": d.sink.Height(),
			"brightness":     d.sink.Brightness(),
			"columns":        display.Columns(d.sink),
			"rows":           display.Rows(d.sink),
			"color_format":   "RGB565",
		})
	case "refresh":
		if err := d.sink.Refresh(); err != nil {
			return nil, err
		}
		return ok("Display refreshed", nil)
	default:
		return nil, fmt.Errorf("unknown display action %q", in.Action)
	}
}

// showText lays lines out from (x, y) downwards and reports how many fit.
func (d *displayHandlers) showText(in displayInput, fg, bg display.Color) (json.RawMessage, error) {
	cols := (d.sink.Width() - in.X) / display.CellWidth
	var lines []string
	if in.Format == "markdown" {
		lines = display.RenderMarkdown([]byte(in.Text), cols)
	} else {
		lines = display.PlainLines(in.Text, cols)
	}

	drawn := 0
	for i, line := range lines {
		y := in.Y + i*display.CellHeight
		if y >= d.sink.Height() {
			break
		}
		if err := d.sink.DrawText(in.X, y, line, fg, bg); err != nil {
			return nil, err
		}
		drawn++
	}
	return ok("Text displayed", map[string]any{
		"lines":     drawn,
		"truncated": drawn < len(lines),
		"format":    in.Format,
	})
}
