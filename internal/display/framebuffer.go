// ABOUTME: Display sink abstraction and an in-memory RGB565 framebuffer
// ABOUTME: The framebuffer stands in for the panel and records text runs for inspection

package display

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

// Panel geometry of the reference board.
const (
	DefaultWidth  = 320
	DefaultHeight = 172

	// Text is laid out on a fixed grid of character cells.
	CellWidth  = 8
	CellHeight = 16
)

// ErrOutOfBounds is returned when a drawing operation leaves the panel.
var ErrOutOfBounds = errors.New("outside display bounds")

// Color is an RGB565 pixel value.
type Color uint16

// Named colors accepted by the display tool.
const (
	Black   Color = 0x0000
	White   Color = 0xFFFF
	Red     Color = 0xF800
	Green   Color = 0x07E0
	Blue    Color = 0x001F
	Yellow  Color = 0xFFE0
	Cyan    Color = 0x07FF
	Magenta Color = 0xF81F
)

var colorNames = map[string]Color{
	"black":   Black,
	"white":   White,
	"red":     Red,
	"green":   Green,
	"blue":    Blue,
	"yellow":  Yellow,
	"cyan":    Cyan,
	"magenta": Magenta,
}

// ColorNames lists the accepted color names in a stable order.
func ColorNames() []string {
	return []string{"black", "white", "red", "green", "blue", "yellow", "cyan", "magenta"}
}

// ParseColor maps a color name to its RGB565 value.
func ParseColor(name string) (Color, bool) {
	c, ok := colorNames[name]
	return c, ok
}

// TextRun is one line of text drawn on the panel.
type TextRun struct {
	X, Y int
	Text string
	FG   Color
	BG   Color
}

// Sink is the display collaborator used by the display tool.
type Sink interface {
	Width() int
	Height() int
	Clear(bg Color) error
	FillRect(x, y, w, h int, c Color) error
	SetPixel(x, y int, c Color) error
	DrawText(x, y int, text string, fg, bg Color) error
	SetBrightness(percent int) error
	Brightness() int
	Refresh() error
}

// Framebuffer is an in-memory Sink.
type Framebuffer struct {
	mu         sync.Mutex
	width      int
	height     int
	pix        []Color
	text       []TextRun
	brightness int
	refreshes  int
}

// NewFramebuffer allocates a width by height panel. Zero dimensions select
// the reference panel size.
func NewFramebuffer(width, height int) *Framebuffer {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &Framebuffer{
		width:      width,
		height:     height,
		pix:        make([]Color, width*height),
		brightness: 100,
	}
}

func (f *Framebuffer) Width() int  { return f.width }
func (f *Framebuffer) Height() int { return f.height }

func (f *Framebuffer) Clear(bg Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pix {
		f.pix[i] = bg
	}
	f.text = f.text[:0]
	return nil
}

func (f *Framebuffer) FillRect(x, y, w, h int, c Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkRect(x, y, w, h); err != nil {
		return err
	}
	f.fill(x, y, w, h, c)
	return nil
}

func (f *Framebuffer) SetPixel(x, y int, c Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkRect(x, y, 1, 1); err != nil {
		return err
	}
	f.pix[y*f.width+x] = c
	return nil
}

// DrawText paints the background of each character cell and records the run.
// Text that runs past the right edge is clipped.
func (f *Framebuffer) DrawText(x, y int, text string, fg, bg Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkRect(x, y, 1, 1); err != nil {
		return err
	}

	cols := (f.width - x) / CellWidth
	if n := utf8.RuneCountInString(text); n > cols {
		text = truncateRunes(text, cols)
	}
	w := utf8.RuneCountInString(text) * CellWidth
	h := min(CellHeight, f.height-y)
	if w > 0 {
		f.fill(x, y, w, h, bg)
	}
	f.text = append(f.text, TextRun{X: x, Y: y, Text: text, FG: fg, BG: bg})
	return nil
}

func (f *Framebuffer) SetBrightness(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("brightness %d: must be 0-100", percent)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brightness = percent
	return nil
}

func (f *Framebuffer) Brightness() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.brightness
}

func (f *Framebuffer) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

// Pixel returns the color at (x, y).
func (f *Framebuffer) Pixel(x, y int) Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pix[y*f.width+x]
}

// Text returns a copy of the text runs drawn since the last Clear.
func (f *Framebuffer) Text() []TextRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TextRun, len(f.text))
	copy(out, f.text)
	return out
}

// Refreshes counts Refresh calls.
func (f *Framebuffer) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// Columns is how many character cells fit across the panel.
func Columns(s Sink) int { return s.Width() / CellWidth }

// Rows is how many text lines fit down the panel.
func Rows(s Sink) int { return s.Height() / CellHeight }

func (f *Framebuffer) checkRect(x, y, w, h int) error {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > f.width || y+h > f.height {
		return fmt.Errorf("%w: rect (%d,%d %dx%d) on %dx%d", ErrOutOfBounds, x, y, w, h, f.width, f.height)
	}
	return nil
}

func (f *Framebuffer) fill(x, y, w, h int, c Color) {
	for row := y; row < y+h; row++ {
		line := f.pix[row*f.width+x : row*f.width+x+w]
		for i := range line {
			line[i] = c
		}
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
