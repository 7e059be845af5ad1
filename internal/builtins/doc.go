// Package builtins provides the built-in tool packs served by the device.
//
// # Tool Packs
//
// System Pack (builtin:system):
//
//   - echo: Echo a message back
//   - system_info: Board details, runtime stats, restart
//
// Display Pack (builtin:display):
//
//   - display_control: Text (plain or markdown), rectangles, pixels, brightness
//
// GPIO Pack (builtin:gpio):
//
//   - gpio_control: Status LED and user button
//
// Status Pack (builtin:status):
//
//   - device_status: Health, sensors, transport links, diagnostics
//
// Config Pack (builtin:config):
//
//   - config_get: Read a persisted value
//   - config_set: Write a persisted value
//   - config_list: List all persisted values
//
// # Results
//
// Every tool returns the same envelope:
//
//	{"status":"success","message":"...","data":{...}}
//
// Failures are returned as Go errors and become HandlerFailure responses.
//
// # Usage
//
//	registry, err := packs.NewRegistry(logger,
//	    builtins.SystemPack(board),
//	    builtins.DisplayPack(fb),
//	    builtins.GPIOPack(board),
//	    builtins.StatusPack(board, fb, links),
//	    builtins.ConfigPack(kv),
//	)
package builtins
