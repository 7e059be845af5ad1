// ABOUTME: Simulated board peripherals backing the GPIO, status, and system tools
// ABOUTME: Tracks LED and button state, press counts, uptime, and a synthetic temperature

package device

import (
	"runtime"
	"sync"
	"time"
)

// Pin assignments mirror the reference board.
const (
	LEDPin    = 15
	ButtonPin = 9
)

// Info identifies the board.
type Info struct {
	Model         string `json:"chip_model"`
	Revision      int    `json:"chip_revision"`
	Cores         int    `json:"cores"`
	FirmwareBuild string `json:"firmware_version"`
	CPUFreqMHz    int    `json:"cpu_freq_mhz"`
}

// MemoryStats is a coarse heap snapshot.
type MemoryStats struct {
	FreeHeap    uint64 `json:"free_heap"`
	MinFreeHeap uint64 `json:"min_free_heap"`
	HeapInUse   uint64 `json:"heap_in_use"`
}

// Board is a simulated device. It is safe for concurrent use.
type Board struct {
	mu          sync.Mutex
	info        Info
	started     time.Time
	led         bool
	pressed     bool
	presses     uint32
	errorCount  uint32
	restarts    uint32
	minFreeHeap uint64
	onRestart   func()
	now         func() time.Time
}

// Option configures a Board.
type Option func(*Board)

// WithRestartHook is called when a restart is requested.
func WithRestartHook(fn func()) Option {
	return func(b *Board) { b.onRestart = fn }
}

// WithClock replaces the board clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// NewBoard creates a board reporting the given firmware version.
func NewBoard(version string, opts ...Option) *Board {
	b := &Board{
		info: Info{
			Model:         "tinymcp-sim",
			Revision:      1,
			Cores:         runtime.NumCPU(),
			FirmwareBuild: version,
			CPUFreqMHz:    160,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.started = b.now()
	return b
}

func (b *Board) Info() Info {
	return b.info
}

// SetLED drives the status LED.
func (b *Board) SetLED(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.led = on
}

func (b *Board) LED() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.led
}

// Press simulates the button going down. Each press increments the counter.
func (b *Board) Press() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pressed {
		b.presses++
	}
	b.pressed = true
}

// Release simulates the button coming up.
func (b *Board) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressed = false
}

// Button reports whether the button is held and how many presses were seen.
func (b *Board) Button() (pressed bool, count uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed, b.presses
}

// Uptime is the time since the board was created.
func (b *Board) Uptime() time.Duration {
	return b.now().Sub(b.started)
}

// Temperature returns a synthetic internal temperature in Celsius that drifts
// slowly with uptime.
func (b *Board) Temperature() float64 {
	minutes := b.Uptime().Minutes()
	drift := minutes / 10
	if drift > 8 {
		drift = 8
	}
	return 32.5 + drift
}

// Memory returns the current heap snapshot and tracks the low-water mark.
func (b *Board) Memory() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	free := ms.HeapSys - ms.HeapInuse

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.minFreeHeap == 0 || free < b.minFreeHeap {
		b.minFreeHeap = free
	}
	return MemoryStats{
		FreeHeap:    free,
		MinFreeHeap: b.minFreeHeap,
		HeapInUse:   ms.HeapInuse,
	}
}

// RecordError bumps the error counter reported by the health check.
func (b *Board) RecordError() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount++
}

func (b *Board) ErrorCount() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorCount
}

// RequestRestart records a restart request and invokes the restart hook.
// The hook runs after the caller's response has had a chance to be sent.
func (b *Board) RequestRestart(delay time.Duration) {
	b.mu.Lock()
	b.restarts++
	hook := b.onRestart
	b.mu.Unlock()

	if hook != nil {
		time.AfterFunc(delay, hook)
	}
}

func (b *Board) Restarts() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restarts
}
